package blockchain

import (
	"crypto/ed25519"
	"fmt"

	"github.com/tonkeeper/tongo/wallet"
)

// PayloadSigner signs off-chain payloads with the oracle wallet key, so a
// signature can be checked against the oracle's public key on-chain.
type PayloadSigner struct {
	key ed25519.PrivateKey
}

func NewPayloadSigner(mnemonic string) (*PayloadSigner, error) {
	pk, err := wallet.SeedToPrivateKey(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("derive private key: %w", err)
	}
	return &PayloadSigner{key: pk}, nil
}

func (s *PayloadSigner) Sign(payload []byte) ([]byte, error) {
	return ed25519.Sign(s.key, payload), nil
}

func (s *PayloadSigner) Verify(payload, signature []byte) bool {
	return ed25519.Verify(s.key.Public().(ed25519.PublicKey), payload, signature)
}
