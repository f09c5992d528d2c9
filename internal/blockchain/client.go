package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"auction-oracle/internal/logger"

	"github.com/tonkeeper/tonapi-go"
	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
	"go.uber.org/zap"
)

var ErrMalformedStack = errors.New("malformed get-method stack")

// Client reads auction, NFT and transaction state through tonapi.
type Client struct {
	api        *tonapi.Client
	auction    ton.AccountID
	collection ton.AccountID
	timeout    time.Duration
}

func NewClient(api *tonapi.Client, auctionAddress, collectionAddress string, timeout time.Duration) (*Client, error) {
	auction, err := ton.ParseAccountID(auctionAddress)
	if err != nil {
		return nil, fmt.Errorf("parse auction address %q: %w", auctionAddress, err)
	}

	// the auction contract doubles as the collection when none is configured
	collection := auction
	if collectionAddress != "" {
		collection, err = ton.ParseAccountID(collectionAddress)
		if err != nil {
			return nil, fmt.Errorf("parse collection address %q: %w", collectionAddress, err)
		}
	}

	return &Client{
		api:        api,
		auction:    auction,
		collection: collection,
		timeout:    timeout,
	}, nil
}

func (c *Client) AuctionAddress() ton.AccountID {
	return c.auction
}

func (c *Client) GetBlockHeight(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	head, err := rateLimitRetry(ctx, func() (*tonapi.BlockchainBlock, error) {
		return c.api.GetBlockchainMasterchainHead(ctx)
	})
	if err != nil {
		return 0, fmt.Errorf("get masterchain head: %w", err)
	}

	return uint64(head.Seqno), nil
}

func (c *Client) GetAuctionCount(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.execGetMethod(ctx, c.auction, getMethodAuctionCounter)
	if err != nil {
		return 0, err
	}

	stack := result.GetStack()
	if len(stack) < 1 {
		return 0, fmt.Errorf("%s: %w", getMethodAuctionCounter, ErrMalformedStack)
	}

	return stackUint(stack[0])
}

// GetAuction decodes get_auction(id). Stack layout: host, start block, end
// block, reserve price, highest bid, highest bidder, ended, meeting
// scheduled, meeting duration, nft token id.
func (c *Client) GetAuction(ctx context.Context, id uint64) (*AuctionSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.execGetMethod(ctx, c.auction, getMethodAuction, strconv.FormatUint(id, 10))
	if err != nil {
		return nil, err
	}

	auction, err := decodeAuctionStack(id, result.GetStack())
	if err != nil {
		return nil, fmt.Errorf("get auction %d: %w", id, err)
	}

	logger.Debug("get auction... done",
		zap.Uint64("auction id", id),
		zap.Uint64("end block", auction.EndBlock),
		zap.Bool("ended", auction.Ended),
	)
	return auction, nil
}

// GetTransactionReceipt returns nil, nil when the transaction is unknown.
func (c *Client) GetTransactionReceipt(ctx context.Context, hash string) (*Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	transaction, err := rateLimitRetry(ctx, func() (*tonapi.Transaction, error) {
		return c.api.GetBlockchainTransaction(ctx, tonapi.GetBlockchainTransactionParams{TransactionID: hash})
	})
	if err != nil {
		if hasStatus(err, http.StatusNotFound) {
			logger.Debug("get transaction receipt: transaction not found", zap.String("hash", hash))
			return nil, nil
		}
		return nil, fmt.Errorf("get transaction %s: %w", hash, err)
	}

	return receiptFromTransaction(transaction), nil
}

// OwnerOf resolves the NFT item address by index through the collection and
// returns its current owner in raw form.
func (c *Client) OwnerOf(ctx context.Context, tokenID uint64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.execGetMethod(ctx, c.collection, getMethodNftAddressByIndex, strconv.FormatUint(tokenID, 10))
	if err != nil {
		return "", err
	}

	stack := result.GetStack()
	if len(stack) < 1 {
		return "", fmt.Errorf("%s: %w", getMethodNftAddressByIndex, ErrMalformedStack)
	}

	itemAddress, err := stackAddress(stack[0])
	if err != nil || itemAddress == "" {
		return "", fmt.Errorf("nft item address for token %d: %w", tokenID, ErrMalformedStack)
	}

	item, err := rateLimitRetry(ctx, func() (*tonapi.NftItem, error) {
		return c.api.GetNftItemByAddress(ctx, tonapi.GetNftItemByAddressParams{AccountID: itemAddress})
	})
	if err != nil {
		return "", fmt.Errorf("get nft item %s: %w", itemAddress, err)
	}

	owner, ok := item.GetOwner().Get()
	if !ok {
		return "", nil
	}

	return NormalizeAddress(owner.GetAddress())
}

func (c *Client) CanBurnForMeeting(ctx context.Context, tokenID uint64, wallet string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	walletID, err := ton.ParseAccountID(wallet)
	if err != nil {
		return false, nil
	}

	result, err := rateLimitRetry(ctx, func() (*tonapi.MethodExecutionResult, error) {
		return c.api.ExecGetMethodWithBodyForBlockchainAccount(ctx,
			tonapi.OptExecGetMethodWithBodyForBlockchainAccountReq{
				Value: tonapi.ExecGetMethodWithBodyForBlockchainAccountReq{
					Args: []tonapi.ExecGetMethodArg{
						{Value: strconv.FormatUint(tokenID, 10), Type: "tinyint"},
						{Value: walletID.ToRaw(), Type: "slice"},
					},
				},
				Set: true,
			},
			tonapi.ExecGetMethodWithBodyForBlockchainAccountParams{
				AccountID:  c.auction.ToRaw(),
				MethodName: getMethodCanBurnForMeeting,
			},
		)
	})
	if err != nil {
		return false, fmt.Errorf("%s: %w", getMethodCanBurnForMeeting, err)
	}

	if !result.GetSuccess() {
		return false, nil
	}

	stack := result.GetStack()
	if len(stack) < 1 {
		return false, fmt.Errorf("%s: %w", getMethodCanBurnForMeeting, ErrMalformedStack)
	}

	return stackBool(stack[0])
}

func (c *Client) execGetMethod(ctx context.Context, account ton.AccountID, method string, args ...string) (*tonapi.MethodExecutionResult, error) {
	if args == nil {
		args = make([]string, 0)
	}

	result, err := rateLimitRetry(ctx, func() (*tonapi.MethodExecutionResult, error) {
		return c.api.ExecGetMethodForBlockchainAccount(ctx, tonapi.ExecGetMethodForBlockchainAccountParams{
			AccountID:  account.ToRaw(),
			MethodName: method,
			Args:       args,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	if !result.GetSuccess() {
		return nil, fmt.Errorf("%s: exit code %d", method, result.GetExitCode())
	}

	return result, nil
}

func decodeAuctionStack(id uint64, stack []tonapi.TvmStackRecord) (*AuctionSnapshot, error) {
	if len(stack) < 10 {
		return nil, ErrMalformedStack
	}

	host, err := stackAddress(stack[0])
	if err != nil {
		return nil, err
	}

	var numbers [4]uint64
	for i := range numbers {
		if numbers[i], err = stackUint(stack[i+1]); err != nil {
			return nil, err
		}
	}

	bidder, err := stackAddress(stack[5])
	if err != nil {
		return nil, err
	}

	ended, err := stackBool(stack[6])
	if err != nil {
		return nil, err
	}

	scheduled, err := stackBool(stack[7])
	if err != nil {
		return nil, err
	}

	duration, err := stackUint(stack[8])
	if err != nil {
		return nil, err
	}

	tokenID, err := stackUint(stack[9])
	if err != nil {
		return nil, err
	}

	return &AuctionSnapshot{
		ID:               id,
		Host:             host,
		StartBlock:       numbers[0],
		EndBlock:         numbers[1],
		ReservePrice:     numbers[2],
		HighestBid:       numbers[3],
		HighestBidder:    bidder,
		Ended:            ended,
		MeetingScheduled: scheduled,
		MeetingDuration:  int(duration),
		NFTTokenID:       tokenID,
	}, nil
}

func receiptFromTransaction(transaction *tonapi.Transaction) *Receipt {
	receipt := &Receipt{
		Hash:    transaction.GetHash(),
		Success: transaction.GetSuccess(),
	}
	if hash, err := NormalizeTxHash(receipt.Hash); err == nil {
		receipt.Hash = hash
	}

	account := transaction.GetAccount()
	receipt.Account = account.GetAddress()
	if address, err := NormalizeAddress(receipt.Account); err == nil {
		receipt.Account = address
	}

	// an external inbound message means the wallet itself sent the transaction
	receipt.Sender = receipt.Account
	if inMessage, ok := transaction.GetInMsg().Get(); ok {
		if source, ok := inMessage.GetSource().Get(); ok {
			receipt.Sender = source.GetAddress()
		}
	}
	if sender, err := NormalizeAddress(receipt.Sender); err == nil {
		receipt.Sender = sender
	}

	for _, message := range transaction.GetOutMsgs() {
		if message.GetMsgType() != tonapi.MessageMsgTypeExtOutMsg {
			continue
		}
		if body, ok := message.GetRawBody().Get(); ok {
			receipt.Logs = append(receipt.Logs, Log{Body: body})
		}
	}

	return receipt
}

func parseStackNum(value string) (*big.Int, error) {
	negative := strings.HasPrefix(value, "-")
	digits := strings.TrimPrefix(strings.TrimPrefix(value, "-"), "0x")

	number, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return nil, fmt.Errorf("%w: bad number %q", ErrMalformedStack, value)
	}
	if negative {
		number.Neg(number)
	}
	return number, nil
}

func stackUint(record tonapi.TvmStackRecord) (uint64, error) {
	value, ok := record.GetNum().Get()
	if !ok {
		return 0, fmt.Errorf("%w: expected num", ErrMalformedStack)
	}

	number, err := parseStackNum(value)
	if err != nil {
		return 0, err
	}
	if number.Sign() < 0 || !number.IsUint64() {
		return 0, fmt.Errorf("%w: %q out of range", ErrMalformedStack, value)
	}
	return number.Uint64(), nil
}

// stackBool follows TVM convention: zero is false, anything else (usually -1)
// is true.
func stackBool(record tonapi.TvmStackRecord) (bool, error) {
	value, ok := record.GetNum().Get()
	if !ok {
		return false, fmt.Errorf("%w: expected num", ErrMalformedStack)
	}

	number, err := parseStackNum(value)
	if err != nil {
		return false, err
	}
	return number.Sign() != 0, nil
}

// stackAddress decodes a slice holding a MsgAddress. addr_none yields "".
func stackAddress(record tonapi.TvmStackRecord) (string, error) {
	value, ok := record.GetCell().Get()
	if !ok {
		return "", fmt.Errorf("%w: expected cell", ErrMalformedStack)
	}

	cells, err := boc.DeserializeBocHex(value)
	if err != nil || len(cells) == 0 {
		return "", fmt.Errorf("%w: bad slice", ErrMalformedStack)
	}

	var address tlb.MsgAddress
	if err := tlb.Unmarshal(cells[0], &address); err != nil {
		return "", fmt.Errorf("%w: bad address", ErrMalformedStack)
	}

	accountID, err := ton.AccountIDFromTlb(address)
	if err != nil {
		return "", fmt.Errorf("%w: bad address", ErrMalformedStack)
	}
	if accountID == nil {
		return "", nil
	}
	return accountID.ToRaw(), nil
}
