package blockchain

import "time"

const (
	EndAuctionOpCode      = 0x13370060
	ScheduleMeetingOpCode = 0x13370061
	BurnEventOpCode       = 0x13370041
)

const (
	getMethodAuctionCounter    = "auctionCounter"
	getMethodAuction           = "get_auction"
	getMethodNftAddressByIndex = "get_nft_address_by_index"
	getMethodCanBurnForMeeting = "can_burn_for_meeting"
)

const (
	DefaultMessageAmount = 5_000_000_0
	rateLimitPause       = 500 * time.Millisecond
	confirmPollInterval  = 3 * time.Second
)

var WalletMap = map[string]int{
	"V1R1":         0,
	"V1R2":         1,
	"V1R3":         2,
	"V2R1":         3,
	"V2R2":         4,
	"V3R1":         5,
	"V3R2":         6,
	"V3R2Lockup":   7,
	"V4R1":         8,
	"V4R2":         9,
	"V5Beta":       10,
	"V5R1":         11,
	"HighLoadV1R1": 12,
	"HighLoadV1R2": 13,
	"HighLoadV2":   14,
	"HighLoadV2R1": 15,
	"HighLoadV2R2": 16,
}
