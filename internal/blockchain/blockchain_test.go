package blockchain

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tonkeeper/tongo/boc"
)

const (
	hostAddress    = "0:584ee61b2dff0837116d0fcb5078d93964bcbe9c05fd6a141b1bfca5d6a43e18"
	bidderAddress  = "0:1111111111111111111111111111111111111111111111111111111111111111"
	auctionAddress = "0:2222222222222222222222222222222222222222222222222222222222222222"
)

func reread(t *testing.T, cell *boc.Cell) *boc.Cell {
	t.Helper()
	raw, err := cell.ToBoc()
	require.NoError(t, err)
	cells, err := boc.DeserializeBocHex(hex.EncodeToString(raw))
	require.NoError(t, err)
	require.Len(t, cells, 1)
	return cells[0]
}

func TestEndAuctionMessageBody(t *testing.T) {
	cell, err := EndAuctionMessageBody{QueryID: 42, AuctionID: 7}.Cell()
	require.NoError(t, err)

	body := reread(t, cell)
	op, err := body.ReadUint(32)
	require.NoError(t, err)
	require.EqualValues(t, EndAuctionOpCode, op)

	query, err := body.ReadUint(64)
	require.NoError(t, err)
	require.EqualValues(t, 42, query)

	auction, err := body.ReadUint(64)
	require.NoError(t, err)
	require.EqualValues(t, 7, auction)
}

func TestScheduleMeetingMessageBodyStoresRoomInRef(t *testing.T) {
	cell, err := ScheduleMeetingMessageBody{QueryID: 1, AuctionID: 7, RoomID: "auction-7-1700000000000"}.Cell()
	require.NoError(t, err)

	body := reread(t, cell)
	op, err := body.ReadUint(32)
	require.NoError(t, err)
	require.EqualValues(t, ScheduleMeetingOpCode, op)
	require.NoError(t, body.Skip(64))

	auction, err := body.ReadUint(64)
	require.NoError(t, err)
	require.EqualValues(t, 7, auction)

	room, err := body.NextRef()
	require.NoError(t, err)
	raw, err := room.ReadBytes(len("auction-7-1700000000000"))
	require.NoError(t, err)
	require.Equal(t, "auction-7-1700000000000", string(raw))
}
