package blockchain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"auction-oracle/internal/logger"

	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/liteapi"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
	"github.com/tonkeeper/tongo/wallet"
	"go.uber.org/zap"
)

var ErrConfirmationTimeout = errors.New("transaction not confirmed in time")

type messageSender interface {
	SendV2(ctx context.Context, waitingConfirmation time.Duration, messages ...wallet.Sendable) (ton.Bits256, error)
}

type auctionReader interface {
	GetAuction(ctx context.Context, id uint64) (*AuctionSnapshot, error)
}

// OracleWallet submits auction transactions from the single oracle signer.
// Sends are serialized so the wallet seqno is never raced.
type OracleWallet struct {
	mu             sync.Mutex
	sender         messageSender
	reader         auctionReader
	auction        ton.AccountID
	amount         uint64
	confirmTimeout time.Duration
	pollInterval   time.Duration
}

type WalletConfiguration struct {
	Mnemonic       string
	Version        string
	Testnet        bool
	MessageAmount  uint64
	ConfirmTimeout time.Duration
}

// NewOracleWallet connects a lite client and derives the signer from the
// mnemonic.
func NewOracleWallet(configuration WalletConfiguration, reader *Client) (*OracleWallet, error) {
	logger.Debug("oracle wallet initialization: lite client...")
	var (
		clientLite *liteapi.Client
		err        error
	)
	if configuration.Testnet {
		clientLite, err = liteapi.NewClientWithDefaultTestnet()
	} else {
		clientLite, err = liteapi.NewClientWithDefaultMainnet()
	}
	if err != nil {
		return nil, fmt.Errorf("connect lite client: %w", err)
	}

	pk, err := wallet.SeedToPrivateKey(configuration.Mnemonic)
	if err != nil {
		return nil, fmt.Errorf("derive private key: %w", err)
	}

	version, ok := WalletMap[configuration.Version]
	if !ok {
		return nil, fmt.Errorf("unknown wallet version %q", configuration.Version)
	}

	logger.Debug("oracle wallet initialization: wallet info", zap.String("version", configuration.Version), zap.Int("version index", version))
	oracleWallet, err := wallet.New(pk, wallet.Version(version), clientLite)
	if err != nil {
		return nil, fmt.Errorf("create wallet: %w", err)
	}

	logger.Debug("oracle wallet initialization... done", zap.String("address", oracleWallet.GetAddress().ToRaw()))
	return newOracleWallet(&oracleWallet, reader, reader.AuctionAddress(), configuration.MessageAmount, configuration.ConfirmTimeout), nil
}

func newOracleWallet(sender messageSender, reader auctionReader, auction ton.AccountID, amount uint64, confirmTimeout time.Duration) *OracleWallet {
	if amount == 0 {
		amount = DefaultMessageAmount
	}
	return &OracleWallet{
		sender:         sender,
		reader:         reader,
		auction:        auction,
		amount:         amount,
		confirmTimeout: confirmTimeout,
		pollInterval:   confirmPollInterval,
	}
}

// EndAuction ends the auction unless the contract already reports it ended,
// in which case the receipt is marked AlreadyDone. It returns once the
// contract state shows the auction ended.
func (w *OracleWallet) EndAuction(ctx context.Context, id uint64) (*TxReceipt, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	state, err := w.reader.GetAuction(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("read auction before end: %w", err)
	}
	if state.Ended {
		logger.Debug("end auction: already ended", zap.Uint64("auction id", id))
		return &TxReceipt{AlreadyDone: true}, nil
	}

	body, err := EndAuctionMessageBody{QueryID: queryID(), AuctionID: id}.Cell()
	if err != nil {
		return nil, err
	}

	// sending and confirming share one deadline
	confirmCtx, cancel := context.WithTimeout(ctx, w.confirmTimeout)
	defer cancel()

	logger.Debug("end auction: sending to blockchain...", zap.Uint64("auction id", id))
	hash, sendErr := w.send(confirmCtx, body)
	if sendErr != nil {
		// another signer or an earlier attempt may have ended it meanwhile
		if state, err := w.reader.GetAuction(ctx, id); err == nil && state.Ended {
			return &TxReceipt{AlreadyDone: true}, nil
		}
		return nil, fmt.Errorf("send end auction: %w", sendErr)
	}

	if err := w.awaitEnded(confirmCtx, id); err != nil {
		return nil, err
	}

	logger.Debug("end auction: sending to blockchain... done", zap.Uint64("auction id", id), zap.String("hash", hash))
	return &TxReceipt{Hash: hash}, nil
}

func (w *OracleWallet) ScheduleMeeting(ctx context.Context, id uint64, roomID string) (*TxReceipt, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	body, err := ScheduleMeetingMessageBody{QueryID: queryID(), AuctionID: id, RoomID: roomID}.Cell()
	if err != nil {
		return nil, err
	}

	logger.Debug("schedule meeting: sending to blockchain...", zap.Uint64("auction id", id), zap.String("room id", roomID))
	hash, err := w.send(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("send schedule meeting: %w", err)
	}

	logger.Debug("schedule meeting: sending to blockchain... done", zap.Uint64("auction id", id), zap.String("hash", hash))
	return &TxReceipt{Hash: hash}, nil
}

func (w *OracleWallet) send(ctx context.Context, body *boc.Cell) (string, error) {
	message := wallet.Message{
		Amount:  tlb.Grams(w.amount),
		Address: w.auction,
		Bounce:  true,
		Mode:    wallet.DefaultMessageMode,
		Body:    body,
	}

	hash, err := w.sender.SendV2(ctx, w.confirmTimeout, message)
	if err != nil {
		return "", err
	}
	return hash.Hex(), nil
}

// awaitEnded polls until the auction reads ended or ctx is done.
func (w *OracleWallet) awaitEnded(ctx context.Context, id uint64) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		state, err := w.reader.GetAuction(ctx, id)
		if err == nil && state.Ended {
			return nil
		}
		if err != nil {
			logger.Debug("end auction: confirmation poll failed", zap.Uint64("auction id", id), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("auction %d: %w", id, ErrConfirmationTimeout)
		case <-ticker.C:
		}
	}
}

func queryID() uint64 {
	return uint64(time.Now().UnixNano())
}
