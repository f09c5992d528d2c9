package tracker

import (
	"context"
	"errors"
	"fmt"

	"auction-oracle/internal/blockchain"
	"auction-oracle/internal/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type ScanResult struct {
	Examined  int `json:"examined"`
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

type auctionRead struct {
	id       uint64
	snapshot *blockchain.AuctionSnapshot
	err      error
}

// TriggerScan runs one scan cycle. A call made while another cycle is in
// flight returns ErrScanInProgress without touching the chain. Reads run
// concurrently; settlement of each auction runs sequentially since every
// chain write comes from the one oracle wallet.
func (t *Tracker) TriggerScan(ctx context.Context) (ScanResult, error) {
	if !t.scanning.CompareAndSwap(false, true) {
		t.metrics.ScanFinished("skipped", 0)
		return ScanResult{}, ErrScanInProgress
	}
	defer t.scanning.Store(false)

	started := t.now()
	result, err := t.runScan(ctx)
	if err != nil {
		t.metrics.ScanFinished("failed", 0)
		return result, err
	}

	t.metrics.ScanFinished("ok", t.now().Sub(started))
	return result, nil
}

func (t *Tracker) runScan(ctx context.Context) (ScanResult, error) {
	var result ScanResult

	logger.Debug("scan: reading chain head...")
	readCtx, cancel := context.WithTimeout(ctx, t.config.ChainTimeout)
	height, err := t.chain.GetBlockHeight(readCtx)
	if err != nil {
		cancel()
		return result, fmt.Errorf("get block height: %w", err)
	}

	count, err := t.chain.GetAuctionCount(readCtx)
	cancel()
	if err != nil {
		return result, fmt.Errorf("get auction count: %w", err)
	}
	t.metrics.BlockHeight(height)

	settled, err := t.storage.SettledAuctionIDs(ctx)
	if err != nil {
		return result, fmt.Errorf("get settled auctions: %w", err)
	}

	ids := make([]uint64, 0, count)
	for id := uint64(1); id <= count; id++ {
		if _, ok := settled[id]; !ok {
			ids = append(ids, id)
		}
	}

	logger.Debug("scan: chain head read... done",
		zap.Uint64("height", height),
		zap.Uint64("auction count", count),
		zap.Int("unsettled", len(ids)),
	)

	reads := t.readAuctions(ctx, ids)
	result.Examined = len(reads)

	var queue []*blockchain.AuctionSnapshot
	for _, read := range reads {
		if read.err != nil {
			logger.Warn("scan: failed to read auction", zap.Uint64("auction id", read.id), zap.Error(read.err))
			t.recordFailure(ctx, read.id, read.err, false)
			result.Failed++
			continue
		}

		switch auction := read.snapshot; {
		case auction.Ended && auction.HasWinningBid():
			logger.Info("scan: resuming ended auction without meeting", zap.Uint64("auction id", auction.ID))
			queue = append(queue, auction)
		case auction.Ended:
			t.settleWithoutWinner(ctx, auction)
			t.metrics.AuctionHandled(resultSkipped)
			result.Skipped++
		case !auction.Expired(height):
			// still accepting bids
		case !auction.HasWinningBid():
			// left un-ended on-chain for manual intervention
			logger.Info("scan: expired auction without bids, skipping",
				zap.Uint64("auction id", auction.ID),
				zap.Uint64("end block", auction.EndBlock),
				zap.Uint64("height", height),
			)
			t.metrics.AuctionHandled(resultSkipped)
			result.Skipped++
		default:
			queue = append(queue, auction)
		}
	}

	for _, auction := range queue {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		outcome, err := t.settle(ctx, auction)
		if err != nil {
			flagged := errors.Is(err, errInvariant)
			if flagged {
				logger.Error("settle auction: invariant violated, flagged for operator", zap.Uint64("auction id", auction.ID), zap.Error(err))
			} else {
				logger.Warn("settle auction: failed, retrying next scan", zap.Uint64("auction id", auction.ID), zap.Error(err))
			}
			t.recordFailure(ctx, auction.ID, err, flagged)
			result.Failed++
			continue
		}

		t.metrics.AuctionHandled(outcome)
		if outcome == resultProcessed {
			result.Processed++
		} else {
			result.Skipped++
		}
	}

	return result, nil
}

// readAuctions fetches snapshots with bounded concurrency. A failed read is
// reported on its entry and never cancels the others.
func (t *Tracker) readAuctions(ctx context.Context, ids []uint64) []auctionRead {
	reads := make([]auctionRead, len(ids))

	var group errgroup.Group
	group.SetLimit(t.config.ScanConcurrency)
	for i, id := range ids {
		group.Go(func() error {
			readCtx, cancel := context.WithTimeout(ctx, t.config.ChainTimeout)
			defer cancel()

			snapshot, err := t.chain.GetAuction(readCtx, id)
			reads[i] = auctionRead{id: id, snapshot: snapshot, err: err}
			return nil
		})
	}
	_ = group.Wait()

	return reads
}

func (t *Tracker) settleWithoutWinner(ctx context.Context, auction *blockchain.AuctionSnapshot) {
	logger.Info("scan: auction ended without winner", zap.Uint64("auction id", auction.ID))
	if err := t.storage.SaveAuction(ctx, auctionRecord(auction)); err != nil {
		logger.Warn("scan: failed to store auction without winner", zap.Uint64("auction id", auction.ID), zap.Error(err))
	}
}

func (t *Tracker) recordFailure(ctx context.Context, id uint64, cause error, flagged bool) {
	t.metrics.AuctionHandled(resultFailed)
	if err := t.storage.RecordAuctionFailure(ctx, id, cause.Error(), flagged); err != nil {
		logger.Warn("failed to record auction failure", zap.Uint64("auction id", id), zap.Error(err))
	}
}
