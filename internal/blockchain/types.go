package blockchain

// AuctionSnapshot is the decoded result of the auction contract get_auction
// method. Addresses are kept in raw form, HighestBidder is empty while no bid
// has been placed.
type AuctionSnapshot struct {
	ID               uint64
	Host             string
	StartBlock       uint64
	EndBlock         uint64
	ReservePrice     uint64
	HighestBid       uint64
	HighestBidder    string
	Ended            bool
	MeetingScheduled bool
	MeetingDuration  int
	NFTTokenID       uint64
}

func (a *AuctionSnapshot) HasWinningBid() bool {
	return a.HighestBidder != "" && a.HighestBid > 0
}

// Expired reports whether bidding is closed at the given masterchain height.
func (a *AuctionSnapshot) Expired(currentBlock uint64) bool {
	return currentBlock >= a.EndBlock
}

// Log is an external outbound message emitted by a transaction; Body is the
// hex encoded BoC of the message body.
type Log struct {
	Body string
}

// Receipt is a transaction as seen by the gate. Account is the contract the
// transaction ran on, so every log was emitted by Account.
type Receipt struct {
	Hash    string
	Success bool
	Account string
	Sender  string
	Logs    []Log
}

type TxReceipt struct {
	Hash        string
	AlreadyDone bool
}
