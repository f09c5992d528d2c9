package gate

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"auction-oracle/internal/blockchain"
	"auction-oracle/internal/logger"
	"auction-oracle/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"
)

type GatePassRequest struct {
	AuctionID  uint64 `json:"auctionId"`
	NFTTokenID uint64 `json:"nftTokenId"`
	Wallet     string `json:"walletAddress"`
	SubjectID  string `json:"subjectId"`
}

// gatePassPayload is hashed in field order; the JSON encoding of a struct
// is stable, which makes the hash reproducible.
type gatePassPayload struct {
	Nonce      string `json:"nonce"`
	Wallet     string `json:"wallet"`
	AuctionID  uint64 `json:"auctionId"`
	NFTTokenID uint64 `json:"nftTokenId"`
	ExpiresAt  int64  `json:"expiresAt"`
}

func (p gatePassPayload) hash() ([]byte, error) {
	encoded, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}

	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(encoded)
	return hasher.Sum(nil), nil
}

func payloadOf(pass *storage.GatePass) gatePassPayload {
	return gatePassPayload{
		Nonce:      pass.Nonce,
		Wallet:     pass.WalletAddress,
		AuctionID:  pass.AuctionID,
		NFTTokenID: pass.NFTTokenID,
		ExpiresAt:  pass.ExpiresAt.Unix(),
	}
}

// IssueGatePass pre-authorizes a burn for a wallet that can currently
// redeem the meeting. The pass is single use and expires after the
// configured TTL.
func (g *Gate) IssueGatePass(ctx context.Context, request GatePassRequest) (*storage.GatePass, error) {
	wallet, err := blockchain.NormalizeAddress(request.Wallet)
	if err != nil {
		return nil, newError(ReasonWalletMismatch, "invalid wallet address %q", request.Wallet)
	}

	redeemable, err := g.CheckRedeemable(ctx, request.AuctionID, request.NFTTokenID, wallet)
	if err != nil {
		return nil, err
	}
	if !redeemable {
		return nil, newError(ReasonProofMismatch, "nft %d is not redeemable by %s", request.NFTTokenID, wallet)
	}

	pass := &storage.GatePass{
		Nonce:         uuid.NewString(),
		SubjectID:     request.SubjectID,
		WalletAddress: wallet,
		AuctionID:     request.AuctionID,
		NFTTokenID:    request.NFTTokenID,
		ExpiresAt:     g.now().Add(g.config.GatePassTTL),
	}

	digest, err := payloadOf(pass).hash()
	if err != nil {
		return nil, err
	}
	pass.PayloadHash = hex.EncodeToString(digest)

	if g.signer != nil {
		signature, err := g.signer.Sign(digest)
		if err != nil {
			return nil, fmt.Errorf("sign gate pass: %w", err)
		}
		pass.Signature = hex.EncodeToString(signature)
	}

	if err := g.storage.CreateGatePass(ctx, pass); err != nil {
		return nil, &GateError{Reason: ReasonUpstreamUnavailable, Err: err}
	}

	logger.Info("gate: gate pass issued",
		zap.String("nonce", pass.Nonce),
		zap.Uint64("auction id", pass.AuctionID),
		zap.String("wallet", wallet),
		zap.Time("expires at", pass.ExpiresAt),
	)
	g.metrics.GateDecision("gate_pass_issued")
	return pass, nil
}

func (g *Gate) checkGatePass(ctx context.Context, nonce, wallet string, auctionID, nftTokenID uint64) error {
	pass, err := g.storage.GetGatePass(ctx, nonce)
	if errors.Is(err, storage.ErrNotFound) {
		return newError(ReasonProofMismatch, "unknown gate pass %s", nonce)
	}
	if err != nil {
		return &GateError{Reason: ReasonUpstreamUnavailable, Err: err}
	}

	if pass.Used {
		return newError(ReasonConflict, "gate pass %s already used", nonce)
	}
	if g.now().After(pass.ExpiresAt) {
		return newError(ReasonExpired, "gate pass %s expired", nonce)
	}
	if pass.AuctionID != auctionID || pass.NFTTokenID != nftTokenID || !blockchain.SameAddress(pass.WalletAddress, wallet) {
		return newError(ReasonProofMismatch, "gate pass %s issued for another claim", nonce)
	}

	digest, err := payloadOf(pass).hash()
	if err != nil || hex.EncodeToString(digest) != pass.PayloadHash {
		return newError(ReasonProofMismatch, "gate pass %s payload hash mismatch", nonce)
	}

	if g.signer != nil && pass.Signature != "" {
		signature, err := hex.DecodeString(pass.Signature)
		if err != nil || !g.signer.Verify(digest, signature) {
			return newError(ReasonProofMismatch, "gate pass %s signature invalid", nonce)
		}
	}

	return nil
}

// CleanupGatePasses deletes expired passes that were never used.
func (g *Gate) CleanupGatePasses(ctx context.Context) (int64, error) {
	deleted, err := g.storage.DeleteExpiredGatePasses(ctx, g.now())
	if err != nil {
		return 0, err
	}

	g.metrics.GatePassesSwept(deleted)
	if deleted > 0 {
		logger.Info("gate: expired gate passes deleted", zap.Int64("count", deleted))
	}
	return deleted, nil
}
