package blockchain

import (
	"github.com/tonkeeper/tongo/boc"
)

type EndAuctionMessageBody struct {
	QueryID   uint64
	AuctionID uint64
}

func (m EndAuctionMessageBody) Cell() (*boc.Cell, error) {
	cell := boc.NewCell()

	if err := cell.WriteUint(EndAuctionOpCode, 32); err != nil {
		return nil, err
	}

	if err := cell.WriteUint(m.QueryID, 64); err != nil {
		return nil, err
	}

	if err := cell.WriteUint(m.AuctionID, 64); err != nil {
		return nil, err
	}

	return cell, nil
}

// ScheduleMeetingMessageBody carries the room id in a referenced cell so
// long identifiers never overflow the body.
type ScheduleMeetingMessageBody struct {
	QueryID   uint64
	AuctionID uint64
	RoomID    string
}

func (m ScheduleMeetingMessageBody) Cell() (*boc.Cell, error) {
	cell := boc.NewCell()

	if err := cell.WriteUint(ScheduleMeetingOpCode, 32); err != nil {
		return nil, err
	}

	if err := cell.WriteUint(m.QueryID, 64); err != nil {
		return nil, err
	}

	if err := cell.WriteUint(m.AuctionID, 64); err != nil {
		return nil, err
	}

	room := boc.NewCell()
	if err := room.WriteBytes([]byte(m.RoomID)); err != nil {
		return nil, err
	}

	if err := cell.AddRef(room); err != nil {
		return nil, err
	}

	return cell, nil
}
