package blockchain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tonkeeper/tongo/ton"
)

func TestNormalizeAddress(t *testing.T) {
	human := ton.MustParseAccountID(hostAddress).ToHuman(true, false)

	raw, err := NormalizeAddress(human)
	require.NoError(t, err)
	assert.Equal(t, hostAddress, raw)

	_, err = NormalizeAddress("not an address")
	assert.Error(t, err)
}

func TestSameAddress(t *testing.T) {
	human := ton.MustParseAccountID(hostAddress).ToHuman(false, false)

	assert.True(t, SameAddress(hostAddress, human))
	assert.False(t, SameAddress(hostAddress, bidderAddress))
	assert.False(t, SameAddress(hostAddress, ""))
}

func TestNormalizeTxHash(t *testing.T) {
	lower := "ab12cd34" + strings.Repeat("0", 56)

	hash, err := NormalizeTxHash(strings.ToUpper(lower))
	require.NoError(t, err)
	assert.Equal(t, lower, hash)

	hash, err = NormalizeTxHash(" " + lower + " ")
	require.NoError(t, err)
	assert.Equal(t, lower, hash)

	_, err = NormalizeTxHash("ab12cd34")
	assert.ErrorIs(t, err, ErrInvalidTxHash)

	_, err = NormalizeTxHash("tx-x")
	assert.ErrorIs(t, err, ErrInvalidTxHash)
}
