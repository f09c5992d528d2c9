package tracker

import (
	"context"
	"errors"
	"fmt"

	"auction-oracle/internal/blockchain"
	"auction-oracle/internal/logger"
	"auction-oracle/internal/room"
	"auction-oracle/internal/storage"

	"go.uber.org/zap"
)

const (
	resultProcessed = "processed"
	resultSkipped   = "skipped"
	resultFailed    = "failed"

	unknownIdentity = "unknown"
	creatorName     = "Auction Creator"
	winnerName      = "Auction Winner"
)

var errInvariant = errors.New("invariant violation")

type participant struct {
	subject room.Subject
	wallet  string
}

// settle drives one auction through end, re-read, identity resolution, room
// provisioning, persistence and on-chain registration. Steps are strictly
// ordered; the first failing step aborts the auction until the next scan.
func (t *Tracker) settle(ctx context.Context, auction *blockchain.AuctionSnapshot) (string, error) {
	id := auction.ID

	has, err := t.storage.HasMeeting(ctx, id)
	if err != nil {
		return "", fmt.Errorf("check meeting: %w", err)
	}
	if has {
		logger.Debug("settle auction: meeting already exists", zap.Uint64("auction id", id))
		return resultSkipped, nil
	}

	autoEnded := false
	if !auction.Ended {
		logger.Info("settle auction: ending on-chain...", zap.Uint64("auction id", id))
		endCtx, cancel := context.WithTimeout(ctx, t.config.ChainTimeout+t.config.TxConfirmTimeout)
		receipt, err := t.writer.EndAuction(endCtx, id)
		cancel()
		if err != nil {
			return "", fmt.Errorf("end auction: %w", err)
		}
		autoEnded = !receipt.AlreadyDone
		logger.Info("settle auction: ending on-chain... done",
			zap.Uint64("auction id", id),
			zap.Bool("already ended", receipt.AlreadyDone),
			zap.String("hash", receipt.Hash),
		)
	}

	readCtx, cancel := context.WithTimeout(ctx, t.config.ChainTimeout)
	final, err := t.chain.GetAuction(readCtx, id)
	cancel()
	if err != nil {
		return "", fmt.Errorf("re-read auction: %w", err)
	}
	if !final.Ended {
		return "", fmt.Errorf("auction %d still not ended after end transaction", id)
	}
	if !final.HasWinningBid() {
		t.settleWithoutWinner(ctx, final)
		return resultSkipped, nil
	}
	if final.NFTTokenID == 0 {
		return "", fmt.Errorf("%w: auction %d ended with a winner but no nft id", errInvariant, id)
	}

	creator := t.resolve(ctx, final.Host, creatorName)
	winner := t.resolve(ctx, final.HighestBidder, winnerName)

	duration := final.MeetingDuration
	if duration <= 0 {
		duration = t.config.DefaultMeetingDuration
	}

	meetingRoom, err := t.rooms.CreateRoom(ctx, fmt.Sprintf("auction-%d", id), duration)
	if err != nil {
		return "", fmt.Errorf("create room: %w", err)
	}

	ttl := room.CredentialTTL(duration)
	creatorToken, err := t.rooms.IssueCredential(ctx, meetingRoom.RoomID, creator.subject, room.RoleModerator, ttl)
	if err != nil {
		return "", fmt.Errorf("issue creator credential: %w", err)
	}
	winnerToken, err := t.rooms.IssueCredential(ctx, meetingRoom.RoomID, winner.subject, room.RoleParticipant, ttl)
	if err != nil {
		return "", fmt.Errorf("issue winner credential: %w", err)
	}

	record := auctionRecord(final)
	record.RoomID = meetingRoom.RoomID
	record.AutoEnded = autoEnded

	meeting := &storage.Meeting{
		AuctionID:         id,
		RoomID:            meetingRoom.RoomID,
		RoomURL:           meetingRoom.BaseURL,
		CreatorID:         creator.subject.ID,
		CreatorWallet:     creator.wallet,
		CreatorCredential: creatorToken,
		WinnerID:          winner.subject.ID,
		WinnerWallet:      winner.wallet,
		WinnerCredential:  winnerToken,
		NFTTokenID:        final.NFTTokenID,
		DurationMinutes:   duration,
		ExpiresAt:         meetingRoom.ExpiresAt,
		ScheduledAt:       t.now(),
	}

	created, err := t.storage.SaveSettlement(ctx, record, meeting)
	if err != nil {
		return "", fmt.Errorf("save settlement: %w", err)
	}
	if !created {
		logger.Info("settle auction: meeting was created concurrently, keeping stored one", zap.Uint64("auction id", id))
		return resultSkipped, nil
	}

	logger.Info("settle auction: meeting created",
		zap.Uint64("auction id", id),
		zap.String("room id", meetingRoom.RoomID),
		zap.Uint64("nft id", final.NFTTokenID),
		zap.Time("expires at", meetingRoom.ExpiresAt),
	)

	t.registerMeeting(ctx, id, meetingRoom.RoomID)
	return resultProcessed, nil
}

// registerMeeting records the room on-chain. It is best-effort: the meeting
// is usable without it and a failure is not retried.
func (t *Tracker) registerMeeting(ctx context.Context, id uint64, roomID string) {
	sendCtx, cancel := context.WithTimeout(ctx, t.config.ChainTimeout+t.config.TxConfirmTimeout)
	defer cancel()

	receipt, err := t.writer.ScheduleMeeting(sendCtx, id, roomID)
	if err != nil {
		logger.Warn("settle auction: meeting registration failed", zap.Uint64("auction id", id), zap.Error(err))
		t.metrics.MeetingRegistration(resultFailed)
		return
	}

	if err := t.storage.MarkMeetingRegistered(ctx, id, receipt.Hash); err != nil {
		logger.Warn("settle auction: failed to store meeting registration", zap.Uint64("auction id", id), zap.Error(err))
	}
	t.metrics.MeetingRegistration("ok")
}

func (t *Tracker) resolve(ctx context.Context, wallet, placeholder string) participant {
	fallback := participant{
		subject: room.Subject{ID: unknownIdentity, Name: placeholder},
		wallet:  wallet,
	}

	user, err := t.identities.ResolveByWallet(ctx, wallet)
	if err != nil {
		logger.Warn("resolve identity failed, using placeholder", zap.String("wallet", wallet), zap.Error(err))
		return fallback
	}
	if user == nil {
		logger.Debug("no identity for wallet, using placeholder", zap.String("wallet", wallet))
		return fallback
	}

	name := user.DisplayName
	if name == "" {
		name = placeholder
	}
	return participant{
		subject: room.Subject{ID: user.ExternalID, Name: name, Email: user.Email},
		wallet:  wallet,
	}
}

func auctionRecord(auction *blockchain.AuctionSnapshot) *storage.Auction {
	return &storage.Auction{
		ID:               auction.ID,
		CreatorWallet:    auction.Host,
		HostWallet:       auction.Host,
		ReservePrice:     auction.ReservePrice,
		HighestBid:       auction.HighestBid,
		HighestBidder:    auction.HighestBidder,
		StartBlock:       auction.StartBlock,
		EndBlock:         auction.EndBlock,
		Ended:            auction.Ended,
		NFTTokenID:       auction.NFTTokenID,
		MeetingScheduled: auction.MeetingScheduled,
		MeetingDuration:  auction.MeetingDuration,
	}
}
