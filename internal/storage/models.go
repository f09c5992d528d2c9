package storage

import "time"

type User struct {
	ID            uint   `gorm:"primaryKey"`
	ExternalID    string `gorm:"uniqueIndex;not null"`
	WalletAddress string `gorm:"uniqueIndex;not null"`
	DisplayName   string
	Email         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Auction mirrors the on-chain auction. Title, Description and CreatorWallet
// are written off-system and never overwritten by chain upserts.
type Auction struct {
	ID               uint64 `gorm:"primaryKey;autoIncrement:false"`
	Title            string
	Description      string
	CreatorWallet    string `gorm:"index"`
	HostWallet       string `gorm:"index"`
	ReservePrice     uint64
	HighestBid       uint64
	HighestBidder    string
	StartBlock       uint64
	EndBlock         uint64
	Ended            bool   `gorm:"default:false"`
	NFTTokenID       uint64 `gorm:"column:nft_token_id;default:0"`
	MeetingScheduled bool   `gorm:"default:false"`
	MeetingDuration  int
	RoomID           string
	AutoEnded        bool `gorm:"default:false"`
	Attempts         int  `gorm:"default:0"`
	LastError        string
	Flagged          bool `gorm:"default:false"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Meeting struct {
	ID                 uint   `gorm:"primaryKey"`
	AuctionID          uint64 `gorm:"uniqueIndex;not null"`
	RoomID             string `gorm:"not null"`
	RoomURL            string `gorm:"not null"`
	CreatorID          string
	CreatorWallet      string
	CreatorCredential  string `gorm:"not null"`
	WinnerID           string
	WinnerWallet       string `gorm:"index"`
	WinnerCredential   string `gorm:"not null"`
	NFTTokenID         uint64 `gorm:"column:nft_token_id"`
	DurationMinutes    int
	ExpiresAt          time.Time `gorm:"not null"`
	ScheduledAt        time.Time
	Registered         bool `gorm:"default:false"`
	RegistrationTxHash string
	CreatedAt          time.Time
}

// AccessEvent is append-only. TransactionHash is unique across all events.
type AccessEvent struct {
	ID              uint   `gorm:"primaryKey"`
	AuctionID       uint64 `gorm:"index;not null"`
	SubjectID       string
	WalletAddress   string `gorm:"not null"`
	NFTTokenID      uint64 `gorm:"column:nft_token_id"`
	TransactionHash string `gorm:"uniqueIndex;not null"`
	GatePassNonce   string
	Method          string    `gorm:"not null"`
	AccessedAt      time.Time `gorm:"not null"`
}

type GatePass struct {
	Nonce         string `gorm:"primaryKey"`
	SubjectID     string
	WalletAddress string `gorm:"not null"`
	AuctionID     uint64 `gorm:"index;not null"`
	NFTTokenID    uint64 `gorm:"column:nft_token_id"`
	PayloadHash   string `gorm:"not null"`
	Signature     string
	ExpiresAt     time.Time `gorm:"index;not null"`
	Used          bool      `gorm:"default:false"`
	UsedAt        *time.Time
	CreatedAt     time.Time
}
