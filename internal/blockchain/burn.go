package blockchain

import (
	"encoding/hex"
	"errors"
	"fmt"

	"auction-oracle/internal/logger"

	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
	"go.uber.org/zap"
)

var ErrNotBurnEvent = errors.New("log is not a burn event")

// BurnEvent is emitted by the auction contract as an external log when a
// winner burns the meeting NFT.
type BurnEvent struct {
	NFTTokenID uint64
	AuctionID  uint64
	Burner     string
}

// BurnClaim is what the caller asserts about a burn transaction.
type BurnClaim struct {
	AuctionID  uint64
	NFTTokenID uint64
	Wallet     string
}

func (e BurnEvent) Cell() (*boc.Cell, error) {
	burner, err := ton.ParseAccountID(e.Burner)
	if err != nil {
		return nil, err
	}

	cell := boc.NewCell()
	if err := cell.WriteUint(BurnEventOpCode, 32); err != nil {
		return nil, err
	}

	if err := cell.WriteUint(e.NFTTokenID, 64); err != nil {
		return nil, err
	}

	if err := cell.WriteUint(e.AuctionID, 64); err != nil {
		return nil, err
	}

	if err := tlb.Marshal(cell, burner.ToMsgAddress()); err != nil {
		return nil, err
	}

	return cell, nil
}

// Hex returns the event as a hex encoded BoC, the form tonapi reports
// message bodies in.
func (e BurnEvent) Hex() (string, error) {
	cell, err := e.Cell()
	if err != nil {
		return "", err
	}
	raw, err := cell.ToBoc()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

func DecodeBurnEvent(body string) (*BurnEvent, error) {
	cells, err := boc.DeserializeBocHex(body)
	if err != nil {
		return nil, fmt.Errorf("deserialize burn log: %w", err)
	}
	if len(cells) == 0 {
		return nil, ErrNotBurnEvent
	}

	bodyCell := cells[0]
	opCode, err := bodyCell.ReadUint(32)
	if err != nil || opCode != BurnEventOpCode {
		return nil, ErrNotBurnEvent
	}

	tokenID, err := bodyCell.ReadUint(64)
	if err != nil {
		return nil, fmt.Errorf("read burn token id: %w", err)
	}

	auctionID, err := bodyCell.ReadUint(64)
	if err != nil {
		return nil, fmt.Errorf("read burn auction id: %w", err)
	}

	var burnerAddress tlb.MsgAddress
	if err := tlb.Unmarshal(bodyCell, &burnerAddress); err != nil {
		return nil, fmt.Errorf("read burner address: %w", err)
	}

	burner, err := ton.AccountIDFromTlb(burnerAddress)
	if err != nil || burner == nil {
		return nil, fmt.Errorf("invalid burner address")
	}

	return &BurnEvent{
		NFTTokenID: tokenID,
		AuctionID:  auctionID,
		Burner:     burner.ToRaw(),
	}, nil
}

// BurnEventVerifier accepts a receipt only when the transaction ran on the
// auction contract and one of its logs decodes to a burn event matching the
// claim. Receipts without a decodable burn event are rejected.
type BurnEventVerifier struct {
	contract ton.AccountID
}

func NewBurnEventVerifier(contract ton.AccountID) BurnEventVerifier {
	return BurnEventVerifier{contract: contract}
}

func (v BurnEventVerifier) Verify(receipt *Receipt, claim BurnClaim) bool {
	if receipt == nil {
		return false
	}

	account, err := ton.ParseAccountID(receipt.Account)
	if err != nil || account != v.contract {
		logger.Debug("burn verifier: logs not emitted by the auction contract",
			zap.String("hash", receipt.Hash),
			zap.String("account", receipt.Account),
		)
		return false
	}

	for _, log := range receipt.Logs {
		event, err := DecodeBurnEvent(log.Body)
		if err != nil {
			if !errors.Is(err, ErrNotBurnEvent) {
				logger.Debug("burn verifier: undecodable log... skip", zap.String("hash", receipt.Hash), zap.Error(err))
			}
			continue
		}

		if event.NFTTokenID == claim.NFTTokenID &&
			event.AuctionID == claim.AuctionID &&
			SameAddress(event.Burner, claim.Wallet) {
			return true
		}

		logger.Debug("burn verifier: burn event does not match claim",
			zap.String("hash", receipt.Hash),
			zap.Uint64("event token", event.NFTTokenID),
			zap.Uint64("event auction", event.AuctionID),
		)
	}

	return false
}
