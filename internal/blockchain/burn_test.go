package blockchain

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tonkeeper/tongo/ton"
)

func burnLog(t *testing.T, event BurnEvent) Log {
	t.Helper()
	body, err := event.Hex()
	require.NoError(t, err)
	return Log{Body: body}
}

func TestDecodeBurnEvent(t *testing.T) {
	body, err := BurnEvent{NFTTokenID: 3, AuctionID: 7, Burner: bidderAddress}.Hex()
	require.NoError(t, err)

	event, err := DecodeBurnEvent(body)
	require.NoError(t, err)
	assert.EqualValues(t, 3, event.NFTTokenID)
	assert.EqualValues(t, 7, event.AuctionID)
	assert.Equal(t, bidderAddress, event.Burner)
}

func TestDecodeBurnEventRejectsOtherOpCodes(t *testing.T) {
	cell, err := EndAuctionMessageBody{AuctionID: 7}.Cell()
	require.NoError(t, err)
	raw, err := cell.ToBoc()
	require.NoError(t, err)

	_, err = DecodeBurnEvent(hex.EncodeToString(raw))
	require.ErrorIs(t, err, ErrNotBurnEvent)
}

func TestBurnEventVerifier(t *testing.T) {
	claim := BurnClaim{AuctionID: 7, NFTTokenID: 3, Wallet: bidderAddress}
	verifier := NewBurnEventVerifier(ton.MustParseAccountID(auctionAddress))

	t.Run("matching event", func(t *testing.T) {
		receipt := &Receipt{Hash: "x", Success: true, Account: auctionAddress, Logs: []Log{
			{Body: "not a boc"},
			burnLog(t, BurnEvent{NFTTokenID: 3, AuctionID: 7, Burner: bidderAddress}),
		}}
		assert.True(t, verifier.Verify(receipt, claim))
	})

	t.Run("wrong token", func(t *testing.T) {
		receipt := &Receipt{Account: auctionAddress, Logs: []Log{burnLog(t, BurnEvent{NFTTokenID: 4, AuctionID: 7, Burner: bidderAddress})}}
		assert.False(t, verifier.Verify(receipt, claim))
	})

	t.Run("wrong auction", func(t *testing.T) {
		receipt := &Receipt{Account: auctionAddress, Logs: []Log{burnLog(t, BurnEvent{NFTTokenID: 3, AuctionID: 8, Burner: bidderAddress})}}
		assert.False(t, verifier.Verify(receipt, claim))
	})

	t.Run("wrong burner", func(t *testing.T) {
		receipt := &Receipt{Account: auctionAddress, Logs: []Log{burnLog(t, BurnEvent{NFTTokenID: 3, AuctionID: 7, Burner: hostAddress})}}
		assert.False(t, verifier.Verify(receipt, claim))
	})

	t.Run("emitted by another contract", func(t *testing.T) {
		event := burnLog(t, BurnEvent{NFTTokenID: 3, AuctionID: 7, Burner: bidderAddress})
		assert.False(t, verifier.Verify(&Receipt{Account: hostAddress, Logs: []Log{event}}, claim))
		assert.False(t, verifier.Verify(&Receipt{Logs: []Log{event}}, claim))
	})

	t.Run("no decodable event", func(t *testing.T) {
		assert.False(t, verifier.Verify(&Receipt{Account: auctionAddress, Logs: []Log{{Body: "zz"}}}, claim))
		assert.False(t, verifier.Verify(&Receipt{}, claim))
		assert.False(t, verifier.Verify(nil, claim))
	})
}
