package blockchain

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadSigner(t *testing.T) {
	signer := &PayloadSigner{key: ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize))}

	signature, err := signer.Sign([]byte("payload"))
	require.NoError(t, err)
	assert.True(t, signer.Verify([]byte("payload"), signature))
	assert.False(t, signer.Verify([]byte("tampered"), signature))
}
