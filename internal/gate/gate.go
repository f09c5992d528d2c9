package gate

import (
	"context"
	"errors"
	"time"

	"auction-oracle/internal/blockchain"
	"auction-oracle/internal/logger"
	"auction-oracle/internal/metrics"
	"auction-oracle/internal/room"
	"auction-oracle/internal/storage"

	"go.uber.org/zap"
)

type ChainReader interface {
	GetTransactionReceipt(ctx context.Context, hash string) (*blockchain.Receipt, error)
	OwnerOf(ctx context.Context, tokenID uint64) (string, error)
	CanBurnForMeeting(ctx context.Context, tokenID uint64, wallet string) (bool, error)
}

type BurnProofVerifier interface {
	Verify(receipt *blockchain.Receipt, claim blockchain.BurnClaim) bool
}

type Storage interface {
	GetMeetingByAuctionID(ctx context.Context, auctionID uint64) (*storage.Meeting, error)
	TransactionHashUsed(ctx context.Context, txHash string) (bool, error)
	RedeemAccess(ctx context.Context, event *storage.AccessEvent) error
	CreateGatePass(ctx context.Context, pass *storage.GatePass) error
	GetGatePass(ctx context.Context, nonce string) (*storage.GatePass, error)
	DeleteExpiredGatePasses(ctx context.Context, now time.Time) (int64, error)
}

// Signer signs gate pass payloads. It is optional.
type Signer interface {
	Sign(payload []byte) ([]byte, error)
	Verify(payload, signature []byte) bool
}

type Configuration struct {
	ChainTimeout time.Duration
	GatePassTTL  time.Duration
}

type RedeemRequest struct {
	AuctionID     uint64 `json:"auctionId"`
	NFTTokenID    uint64 `json:"nftTokenId"`
	Wallet        string `json:"walletAddress"`
	TxHash        string `json:"txHash"`
	CallerID      string `json:"callerId"`
	GatePassNonce string `json:"gatePassNonce,omitempty"`
}

// Credential is the winner's meeting access handed out on a successful
// redeem.
type Credential struct {
	Token     string    `json:"token"`
	RoomID    string    `json:"roomId"`
	RoomURL   string    `json:"roomUrl"`
	JoinURL   string    `json:"joinUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
	Role      room.Role `json:"role"`
}

// Gate verifies NFT burn proofs and releases the winner credential once per
// burn transaction. It keeps no state between calls; replay protection is
// the unique transaction hash in storage.
type Gate struct {
	chain    ChainReader
	verifier BurnProofVerifier
	storage  Storage
	signer   Signer
	metrics  *metrics.Metrics
	config   Configuration
	now      func() time.Time
}

func NewGate(chain ChainReader, verifier BurnProofVerifier, store Storage, signer Signer, m *metrics.Metrics, config Configuration) *Gate {
	if config.ChainTimeout <= 0 {
		config.ChainTimeout = 30 * time.Second
	}
	if config.GatePassTTL <= 0 {
		config.GatePassTTL = 24 * time.Hour
	}

	return &Gate{
		chain:    chain,
		verifier: verifier,
		storage:  store,
		signer:   signer,
		metrics:  m,
		config:   config,
		now:      time.Now,
	}
}

// VerifyAndRedeem fails closed: any failed check returns a *GateError and
// writes nothing.
func (g *Gate) VerifyAndRedeem(ctx context.Context, request RedeemRequest) (*Credential, error) {
	credential, err := g.verifyAndRedeem(ctx, request)

	fields := []zap.Field{
		zap.Uint64("auction id", request.AuctionID),
		zap.Uint64("nft id", request.NFTTokenID),
		zap.String("wallet", request.Wallet),
		zap.String("hash", request.TxHash),
		zap.String("caller", request.CallerID),
	}
	if err != nil {
		reason := ReasonOf(err)
		g.metrics.GateDecision(string(reason))
		if reason == ReasonUpstreamUnavailable {
			logger.Warn("gate: redeem failed upstream", append(fields, zap.Error(err))...)
		} else {
			logger.Info("gate: redeem rejected", append(fields, zap.String("reason", string(reason)), zap.Error(err))...)
		}
		return nil, err
	}

	g.metrics.GateDecision("granted")
	logger.Info("gate: redeem granted", fields...)
	return credential, nil
}

func (g *Gate) verifyAndRedeem(ctx context.Context, request RedeemRequest) (*Credential, error) {
	wallet, err := blockchain.NormalizeAddress(request.Wallet)
	if err != nil {
		return nil, newError(ReasonWalletMismatch, "invalid wallet address %q", request.Wallet)
	}
	txHash, err := blockchain.NormalizeTxHash(request.TxHash)
	if err != nil {
		return nil, newError(ReasonInvalidTransaction, "malformed transaction hash %q", request.TxHash)
	}

	meeting, err := g.storage.GetMeetingByAuctionID(ctx, request.AuctionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newError(ReasonNotFound, "no meeting for auction %d", request.AuctionID)
	}
	if err != nil {
		return nil, &GateError{Reason: ReasonUpstreamUnavailable, Err: err}
	}
	if g.now().After(meeting.ExpiresAt) {
		return nil, newError(ReasonExpired, "meeting expired at %s", meeting.ExpiresAt.Format(time.RFC3339))
	}
	if request.NFTTokenID != meeting.NFTTokenID {
		return nil, newError(ReasonProofMismatch, "nft %d is not the meeting nft of auction %d", request.NFTTokenID, request.AuctionID)
	}

	used, err := g.storage.TransactionHashUsed(ctx, txHash)
	if err != nil {
		return nil, &GateError{Reason: ReasonUpstreamUnavailable, Err: err}
	}
	if used {
		return nil, newError(ReasonConflict, "transaction %s already redeemed", txHash)
	}

	receiptCtx, cancel := context.WithTimeout(ctx, g.config.ChainTimeout)
	receipt, err := g.chain.GetTransactionReceipt(receiptCtx, txHash)
	cancel()
	if err != nil {
		return nil, &GateError{Reason: ReasonUpstreamUnavailable, Err: err}
	}
	if receipt == nil {
		return nil, newError(ReasonInvalidTransaction, "transaction %s not found", txHash)
	}
	if !receipt.Success {
		return nil, newError(ReasonInvalidTransaction, "transaction %s failed", txHash)
	}
	// the ledger keys on the hash the chain reports, not on caller input
	receiptHash, err := blockchain.NormalizeTxHash(receipt.Hash)
	if err != nil || receiptHash != txHash {
		return nil, newError(ReasonInvalidTransaction, "transaction %s resolved to %q", txHash, receipt.Hash)
	}

	if !blockchain.SameAddress(receipt.Sender, wallet) {
		return nil, newError(ReasonWalletMismatch, "transaction sent by %s", receipt.Sender)
	}

	claim := blockchain.BurnClaim{AuctionID: request.AuctionID, NFTTokenID: request.NFTTokenID, Wallet: wallet}
	if !g.verifier.Verify(receipt, claim) {
		return nil, newError(ReasonProofMismatch, "no burn event matching the claim")
	}

	if request.GatePassNonce != "" {
		if err := g.checkGatePass(ctx, request.GatePassNonce, wallet, request.AuctionID, request.NFTTokenID); err != nil {
			return nil, err
		}
	}

	err = g.storage.RedeemAccess(ctx, &storage.AccessEvent{
		AuctionID:       request.AuctionID,
		SubjectID:       request.CallerID,
		WalletAddress:   wallet,
		NFTTokenID:      request.NFTTokenID,
		TransactionHash: receiptHash,
		GatePassNonce:   request.GatePassNonce,
		Method:          storage.MethodNFTBurn,
		AccessedAt:      g.now(),
	})
	switch {
	case errors.Is(err, storage.ErrDuplicate):
		return nil, newError(ReasonConflict, "transaction %s already redeemed", receiptHash)
	case errors.Is(err, storage.ErrGatePassUnavailable):
		return nil, newError(ReasonConflict, "gate pass %s already used", request.GatePassNonce)
	case err != nil:
		return nil, &GateError{Reason: ReasonUpstreamUnavailable, Err: err}
	}

	return &Credential{
		Token:     meeting.WinnerCredential,
		RoomID:    meeting.RoomID,
		RoomURL:   meeting.RoomURL,
		JoinURL:   room.JoinURL(meeting.RoomURL, meeting.WinnerCredential),
		ExpiresAt: meeting.ExpiresAt,
		Role:      room.RoleParticipant,
	}, nil
}

// CheckRedeemable reports whether wallet could redeem the meeting by burning
// the NFT now. It never writes and only errors on upstream failures.
func (g *Gate) CheckRedeemable(ctx context.Context, auctionID, nftTokenID uint64, wallet string) (bool, error) {
	address, err := blockchain.NormalizeAddress(wallet)
	if err != nil {
		return false, nil
	}

	meeting, err := g.storage.GetMeetingByAuctionID(ctx, auctionID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, &GateError{Reason: ReasonUpstreamUnavailable, Err: err}
	}
	if g.now().After(meeting.ExpiresAt) {
		return false, nil
	}
	if nftTokenID != meeting.NFTTokenID {
		return false, nil
	}

	readCtx, cancel := context.WithTimeout(ctx, g.config.ChainTimeout)
	defer cancel()

	owner, err := g.chain.OwnerOf(readCtx, nftTokenID)
	if err != nil {
		return false, &GateError{Reason: ReasonUpstreamUnavailable, Err: err}
	}
	if !blockchain.SameAddress(owner, address) {
		logger.Debug("gate: wallet does not own nft", zap.Uint64("nft id", nftTokenID), zap.String("wallet", address), zap.String("owner", owner))
		return false, nil
	}

	canBurn, err := g.chain.CanBurnForMeeting(readCtx, nftTokenID, address)
	if err != nil {
		return false, &GateError{Reason: ReasonUpstreamUnavailable, Err: err}
	}
	return canBurn, nil
}
