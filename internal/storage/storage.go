package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound            = errors.New("record not found")
	ErrDuplicate           = errors.New("duplicate record")
	ErrGatePassUnavailable = errors.New("gate pass missing, used or expired")
)

const MethodNFTBurn = "nft_burn"

type Storage interface {
	// identity
	ResolveByWallet(ctx context.Context, wallet string) (*User, error)
	UpsertUser(ctx context.Context, user *User) error

	// auction
	SettledAuctionIDs(ctx context.Context) (map[uint64]struct{}, error)
	SaveAuction(ctx context.Context, auction *Auction) error
	RecordAuctionFailure(ctx context.Context, auctionID uint64, reason string, flagged bool) error

	// meeting
	GetMeetingByAuctionID(ctx context.Context, auctionID uint64) (*Meeting, error)
	HasMeeting(ctx context.Context, auctionID uint64) (bool, error)
	SaveSettlement(ctx context.Context, auction *Auction, meeting *Meeting) (bool, error)
	MarkMeetingRegistered(ctx context.Context, auctionID uint64, txHash string) error
	ListMeetingsForCreator(ctx context.Context, wallet string) ([]MeetingSummary, error)

	// access
	TransactionHashUsed(ctx context.Context, txHash string) (bool, error)
	RedeemAccess(ctx context.Context, event *AccessEvent) error

	// gate pass
	CreateGatePass(ctx context.Context, pass *GatePass) error
	GetGatePass(ctx context.Context, nonce string) (*GatePass, error)
	DeleteExpiredGatePasses(ctx context.Context, now time.Time) (int64, error)
}

// MeetingSummary is the creator facing projection of a meeting and its
// auction.
type MeetingSummary struct {
	AuctionID     uint64    `json:"auctionId"`
	Title         string    `json:"title"`
	RoomID        string    `json:"roomId"`
	RoomURL       string    `json:"roomUrl"`
	CreatorToken  string    `json:"-"`
	JoinURL       string    `json:"joinUrl" gorm:"-"`
	WinnerWallet  string    `json:"winnerWallet"`
	ExpiresAt     time.Time `json:"expiresAt"`
	Registered    bool      `json:"registeredOnChain"`
	CreatedAt     time.Time `json:"createdAt"`
	HighestBid    uint64    `json:"highestBid"`
	NFTTokenID    uint64    `json:"nftTokenId" gorm:"column:nft_token_id"`
	CreatorWallet string    `json:"creatorWallet"`
}
