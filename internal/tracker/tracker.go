package tracker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"auction-oracle/internal/blockchain"
	"auction-oracle/internal/logger"
	"auction-oracle/internal/metrics"
	"auction-oracle/internal/room"
	"auction-oracle/internal/storage"

	"go.uber.org/zap"
)

var ErrScanInProgress = errors.New("scan already in progress")

type ChainReader interface {
	GetBlockHeight(ctx context.Context) (uint64, error)
	GetAuctionCount(ctx context.Context) (uint64, error)
	GetAuction(ctx context.Context, id uint64) (*blockchain.AuctionSnapshot, error)
}

type ChainWriter interface {
	EndAuction(ctx context.Context, id uint64) (*blockchain.TxReceipt, error)
	ScheduleMeeting(ctx context.Context, id uint64, roomID string) (*blockchain.TxReceipt, error)
}

type RoomProvisioner interface {
	CreateRoom(ctx context.Context, name string, durationMinutes int) (*room.Room, error)
	IssueCredential(ctx context.Context, roomID string, subject room.Subject, role room.Role, ttl time.Duration) (string, error)
}

type IdentityResolver interface {
	ResolveByWallet(ctx context.Context, wallet string) (*storage.User, error)
}

type Storage interface {
	SettledAuctionIDs(ctx context.Context) (map[uint64]struct{}, error)
	SaveAuction(ctx context.Context, auction *storage.Auction) error
	RecordAuctionFailure(ctx context.Context, auctionID uint64, reason string, flagged bool) error
	HasMeeting(ctx context.Context, auctionID uint64) (bool, error)
	SaveSettlement(ctx context.Context, auction *storage.Auction, meeting *storage.Meeting) (bool, error)
	MarkMeetingRegistered(ctx context.Context, auctionID uint64, txHash string) error
	ListMeetingsForCreator(ctx context.Context, wallet string) ([]storage.MeetingSummary, error)
}

type Configuration struct {
	ScanInterval           time.Duration
	InitialScanDelay       time.Duration
	ScanConcurrency        int
	ChainTimeout           time.Duration
	TxConfirmTimeout       time.Duration
	DefaultMeetingDuration int
}

// Tracker watches auctions on-chain and settles each ended auction with a
// winner exactly once: end it, provision the meeting room, persist the
// meeting and register the room back on-chain.
type Tracker struct {
	chain      ChainReader
	writer     ChainWriter
	rooms      RoomProvisioner
	storage    Storage
	identities IdentityResolver
	metrics    *metrics.Metrics
	config     Configuration
	now        func() time.Time

	scanning atomic.Bool
}

func NewTracker(
	chain ChainReader,
	writer ChainWriter,
	rooms RoomProvisioner,
	store Storage,
	identities IdentityResolver,
	m *metrics.Metrics,
	config Configuration,
) *Tracker {
	if config.ScanConcurrency < 1 {
		config.ScanConcurrency = 1
	}
	if config.DefaultMeetingDuration <= 0 {
		config.DefaultMeetingDuration = 60
	}
	if config.ChainTimeout <= 0 {
		config.ChainTimeout = 30 * time.Second
	}
	if config.TxConfirmTimeout <= 0 {
		config.TxConfirmTimeout = 90 * time.Second
	}

	return &Tracker{
		chain:      chain,
		writer:     writer,
		rooms:      rooms,
		storage:    store,
		identities: identities,
		metrics:    m,
		config:     config,
		now:        time.Now,
	}
}

// Run scans once after the initial delay and then on every interval until
// ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) error {
	logger.Info("tracker started",
		zap.Duration("initial delay", t.config.InitialScanDelay),
		zap.Duration("interval", t.config.ScanInterval),
	)

	initial := time.NewTimer(t.config.InitialScanDelay)
	defer initial.Stop()

	select {
	case <-ctx.Done():
		logger.Info("tracker stopped")
		return nil
	case <-initial.C:
	}
	t.scan(ctx)

	ticker := time.NewTicker(t.config.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("tracker stopped")
			return nil
		case <-ticker.C:
			t.scan(ctx)
		}
	}
}

func (t *Tracker) scan(ctx context.Context) {
	result, err := t.TriggerScan(ctx)
	switch {
	case errors.Is(err, ErrScanInProgress):
		logger.Info("scan skipped: previous scan still running")
	case err != nil && ctx.Err() == nil:
		logger.Warn("scan failed", zap.Error(err))
	case err == nil:
		logger.Info("scan done",
			zap.Int("examined", result.Examined),
			zap.Int("processed", result.Processed),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", result.Failed),
		)
	}
}

func (t *Tracker) ListMeetingsForCreator(ctx context.Context, wallet string) ([]storage.MeetingSummary, error) {
	address, err := blockchain.NormalizeAddress(wallet)
	if err != nil {
		return nil, err
	}

	summaries, err := t.storage.ListMeetingsForCreator(ctx, address)
	if err != nil {
		return nil, err
	}

	for i := range summaries {
		summaries[i].JoinURL = room.JoinURL(summaries[i].RoomURL, summaries[i].CreatorToken)
	}
	return summaries, nil
}
