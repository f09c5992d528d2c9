package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"auction-oracle/internal/logger"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// columns the chain owns; off-system fields are left alone on upsert
var auctionChainColumns = []string{
	"host_wallet",
	"reserve_price",
	"highest_bid",
	"highest_bidder",
	"start_block",
	"end_block",
	"ended",
	"nft_token_id",
	"meeting_scheduled",
	"meeting_duration",
	"updated_at",
}

var settlementColumns = append(append([]string{}, auctionChainColumns...), "room_id", "auto_ended", "last_error", "flagged")

func upsertAuction(columns []string) clause.OnConflict {
	set := clause.AssignmentColumns(columns)
	set = append(set, clause.Assignment{
		Column: clause.Column{Name: "creator_wallet"},
		Value:  gorm.Expr("coalesce(nullif(auctions.creator_wallet, ''), excluded.creator_wallet)"),
	})
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: set,
	}
}

type GormStorage struct {
	db *gorm.DB
}

// Open picks the postgres driver for postgres DSNs and sqlite for anything
// else (a file path).
func Open(dsn string) (*GormStorage, error) {
	logger.Debug("initializing database...")

	db, err := gorm.Open(dialector(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.AutoMigrate(
		&User{},
		&Auction{},
		&Meeting{},
		&AccessEvent{},
		&GatePass{},
	)
	if err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	logger.Debug("initializing database... done")
	return &GormStorage{
		db: db,
	}, nil
}

func dialector(dsn string) gorm.Dialector {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return postgres.Open(dsn)
	}
	// the tracker and the gate write concurrently; wait on locks instead of
	// failing with SQLITE_BUSY
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000"
	}
	return sqlite.Open(dsn)
}

func (s *GormStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStorage) ResolveByWallet(ctx context.Context, wallet string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("wallet_address = ?", wallet).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &user, nil
}

func (s *GormStorage) UpsertUser(ctx context.Context, user *User) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"wallet_address", "display_name", "email", "updated_at"}),
	}).Create(user).Error
}

// SettledAuctionIDs lists auctions that need no more work: those with a
// meeting and those ended without a winner.
func (s *GormStorage) SettledAuctionIDs(ctx context.Context) (map[uint64]struct{}, error) {
	logger.Debug("getting settled auctions...")

	var ids []uint64
	err := s.db.WithContext(ctx).Raw(`
		select auction_id from meetings
		union
		select id from auctions
		where ended = ? and (highest_bidder is null or highest_bidder = '')
	`, true).Scan(&ids).Error
	if err != nil {
		return nil, err
	}

	settled := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		settled[id] = struct{}{}
	}

	logger.Debug("getting settled auctions... done", zap.Int("count", len(settled)))
	return settled, nil
}

func (s *GormStorage) SaveAuction(ctx context.Context, auction *Auction) error {
	return s.db.WithContext(ctx).Clauses(upsertAuction(auctionChainColumns)).Create(auction).Error
}

func (s *GormStorage) RecordAuctionFailure(ctx context.Context, auctionID uint64, reason string, flagged bool) error {
	auction := &Auction{ID: auctionID, Attempts: 1, LastError: reason, Flagged: flagged}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"attempts":   gorm.Expr("auctions.attempts + 1"),
			"last_error": reason,
			"flagged":    flagged,
			"updated_at": time.Now(),
		}),
	}).Create(auction).Error
}

func (s *GormStorage) GetMeetingByAuctionID(ctx context.Context, auctionID uint64) (*Meeting, error) {
	var meeting Meeting
	err := s.db.WithContext(ctx).Where("auction_id = ?", auctionID).First(&meeting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &meeting, nil
}

func (s *GormStorage) HasMeeting(ctx context.Context, auctionID uint64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Meeting{}).Where("auction_id = ?", auctionID).Count(&count).Error
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// SaveSettlement inserts the meeting and upserts its auction in one
// transaction. It reports false when a meeting for the auction already
// existed; the stored meeting is then left untouched and the auction only
// gets its chain columns refreshed, so room_id keeps naming the stored room.
func (s *GormStorage) SaveSettlement(ctx context.Context, auction *Auction, meeting *Meeting) (bool, error) {
	logger.Debug("saving auction settlement...", zap.Uint64("auction id", auction.ID))

	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "auction_id"}},
			DoNothing: true,
		}).Create(meeting)
		if result.Error != nil {
			return result.Error
		}
		created = result.RowsAffected > 0

		columns := auctionChainColumns
		if created {
			columns = settlementColumns
		} else {
			var existing Meeting
			if err := tx.Select("room_id").Where("auction_id = ?", auction.ID).Take(&existing).Error; err != nil {
				return err
			}
			auction.RoomID = existing.RoomID
		}

		return tx.Clauses(upsertAuction(columns)).Create(auction).Error
	})
	if err != nil {
		return false, err
	}

	logger.Debug("saving auction settlement... done", zap.Uint64("auction id", auction.ID), zap.Bool("created", created))
	return created, nil
}

func (s *GormStorage) MarkMeetingRegistered(ctx context.Context, auctionID uint64, txHash string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&Meeting{}).Where("auction_id = ?", auctionID).Updates(map[string]interface{}{
			"registered":           true,
			"registration_tx_hash": txHash,
		}).Error
		if err != nil {
			return err
		}

		return tx.Model(&Auction{}).Where("id = ?", auctionID).Update("meeting_scheduled", true).Error
	})
}

func (s *GormStorage) ListMeetingsForCreator(ctx context.Context, wallet string) ([]MeetingSummary, error) {
	var summaries []MeetingSummary
	err := s.db.WithContext(ctx).Table("meetings").
		Select(`meetings.auction_id, auctions.title, meetings.room_id, meetings.room_url,
			meetings.creator_credential as creator_token, meetings.winner_wallet, meetings.expires_at,
			meetings.registered, meetings.created_at, auctions.highest_bid, auctions.nft_token_id,
			auctions.creator_wallet`).
		Joins("join auctions on auctions.id = meetings.auction_id").
		Where("auctions.creator_wallet = ? or auctions.host_wallet = ?", wallet, wallet).
		Order("meetings.created_at desc").
		Scan(&summaries).Error
	if err != nil {
		return nil, err
	}

	return summaries, nil
}

func (s *GormStorage) TransactionHashUsed(ctx context.Context, txHash string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&AccessEvent{}).Where("transaction_hash = ?", txHash).Count(&count).Error
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// RedeemAccess consumes the event's gate pass, if any, and appends the event
// in one transaction. The unique transaction hash makes a replayed redeem
// fail with ErrDuplicate.
func (s *GormStorage) RedeemAccess(ctx context.Context, event *AccessEvent) error {
	logger.Debug("redeeming access...", zap.Uint64("auction id", event.AuctionID), zap.String("hash", event.TransactionHash))

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if event.GatePassNonce != "" {
			now := time.Now()
			result := tx.Model(&GatePass{}).
				Where("nonce = ? and used = ? and expires_at > ?", event.GatePassNonce, false, now).
				Updates(map[string]interface{}{"used": true, "used_at": now})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return ErrGatePassUnavailable
			}
		}

		return tx.Create(event).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	if err != nil {
		return err
	}

	logger.Debug("redeeming access... done", zap.Uint64("auction id", event.AuctionID))
	return nil
}

func (s *GormStorage) CreateGatePass(ctx context.Context, pass *GatePass) error {
	err := s.db.WithContext(ctx).Create(pass).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

func (s *GormStorage) GetGatePass(ctx context.Context, nonce string) (*GatePass, error) {
	var pass GatePass
	err := s.db.WithContext(ctx).Where("nonce = ?", nonce).First(&pass).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &pass, nil
}

func (s *GormStorage) DeleteExpiredGatePasses(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("used = ? and expires_at < ?", false, now).Delete(&GatePass{})
	if result.Error != nil {
		return 0, result.Error
	}

	logger.Debug("deleting expired gate passes... done", zap.Int64("deleted", result.RowsAffected))
	return result.RowsAffected, nil
}
