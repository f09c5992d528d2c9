package blockchain

import (
	"encoding/hex"
	"errors"
	"strings"

	"github.com/tonkeeper/tongo/ton"
)

var ErrInvalidTxHash = errors.New("invalid transaction hash")

// NormalizeAddress converts a raw or user-friendly address to raw form.
func NormalizeAddress(address string) (string, error) {
	accountID, err := ton.ParseAccountID(address)
	if err != nil {
		return "", err
	}
	return accountID.ToRaw(), nil
}

// SameAddress compares two addresses regardless of their textual form.
// Unparseable input never matches.
func SameAddress(a, b string) bool {
	left, err := ton.ParseAccountID(a)
	if err != nil {
		return false
	}
	right, err := ton.ParseAccountID(b)
	if err != nil {
		return false
	}
	return left == right
}

// NormalizeTxHash returns the canonical lowercase hex form of a 256-bit
// transaction hash, so differently cased spellings of one hash compare equal.
func NormalizeTxHash(hash string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(hash), "0x"))
	if err != nil || len(raw) != len(ton.Bits256{}) {
		return "", ErrInvalidTxHash
	}

	var bits ton.Bits256
	copy(bits[:], raw)
	return bits.Hex(), nil
}
