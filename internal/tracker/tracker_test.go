package tracker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"auction-oracle/internal/blockchain"
	"auction-oracle/internal/room"
	"auction-oracle/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestScanSettlesExpiredAuction(t *testing.T) {
	chain := newFakeChain(101, expiredAuction(7))
	rooms := newRooms(t)
	store := openStorage(t)
	defer store.Close() //nolint:errcheck
	ctx := context.Background()

	result, err := newTestTracker(chain, rooms, store).TriggerScan(ctx)
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Examined: 7, Processed: 1}, result)
	assert.Equal(t, 1, chain.endCount(7))

	meeting, err := store.GetMeetingByAuctionID(ctx, 7)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(meeting.RoomID, "auction-7-"), meeting.RoomID)
	assert.Equal(t, winnerWallet, meeting.WinnerWallet)
	assert.Equal(t, chain.auctions[7].NFTTokenID, meeting.NFTTokenID)
	assert.NotZero(t, meeting.NFTTokenID)
	assert.True(t, meeting.Registered)
	assert.Equal(t, "schedule-hash", meeting.RegistrationTxHash)
	assert.Equal(t, []string{meeting.RoomID}, chain.scheduleCalls)

	creator, err := rooms.VerifyCredential(meeting.CreatorCredential)
	require.NoError(t, err)
	winner, err := rooms.VerifyCredential(meeting.WinnerCredential)
	require.NoError(t, err)
	assert.Equal(t, room.RoleModerator, creator.Role())
	assert.Equal(t, room.RoleParticipant, winner.Role())
	assert.Equal(t, meeting.RoomID, creator.Room)
	assert.Equal(t, meeting.RoomID, winner.Room)

	settled, err := store.SettledAuctionIDs(ctx)
	require.NoError(t, err)
	assert.Contains(t, settled, uint64(7))

	summaries, err := store.ListMeetingsForCreator(ctx, hostWallet)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.NotZero(t, summaries[0].NFTTokenID)
}

func TestScanIsIdempotent(t *testing.T) {
	chain := newFakeChain(101, expiredAuction(1))
	rooms := newRooms(t)
	store := openStorage(t)
	defer store.Close() //nolint:errcheck
	tracker := newTestTracker(chain, rooms, store)
	ctx := context.Background()

	_, err := tracker.TriggerScan(ctx)
	require.NoError(t, err)
	first, err := store.GetMeetingByAuctionID(ctx, 1)
	require.NoError(t, err)

	result, err := tracker.TriggerScan(ctx)
	require.NoError(t, err)
	assert.Equal(t, ScanResult{}, result)

	// driving the workflow directly again is a no-op as well
	snapshot, err := chain.GetAuction(ctx, 1)
	require.NoError(t, err)
	outcome, err := tracker.settle(ctx, snapshot)
	require.NoError(t, err)
	assert.Equal(t, resultSkipped, outcome)

	second, err := store.GetMeetingByAuctionID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, first.RoomID, second.RoomID)
	assert.EqualValues(t, 1, rooms.created.Load())
	assert.Equal(t, 1, chain.endCount(1))
}

func TestScanSkipsExpiredAuctionWithoutBids(t *testing.T) {
	noBids := expiredAuction(1)
	noBids.HighestBid = 0
	noBids.HighestBidder = ""
	chain := newFakeChain(101, noBids)
	rooms := newRooms(t)
	store := openStorage(t)
	defer store.Close() //nolint:errcheck

	result, err := newTestTracker(chain, rooms, store).TriggerScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Examined: 1, Skipped: 1}, result)
	assert.Zero(t, rooms.created.Load())
	assert.Zero(t, chain.endCount(1))
}

func TestScanRecordsAuctionEndedWithoutWinner(t *testing.T) {
	ended := expiredAuction(1)
	ended.HighestBid = 0
	ended.HighestBidder = ""
	ended.Ended = true
	chain := newFakeChain(101, ended)
	rooms := newRooms(t)
	store := openStorage(t)
	defer store.Close() //nolint:errcheck
	tracker := newTestTracker(chain, rooms, store)
	ctx := context.Background()

	result, err := tracker.TriggerScan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, rooms.created.Load())

	result, err = tracker.TriggerScan(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Examined)
}

func TestScanLeavesActiveAuctions(t *testing.T) {
	chain := newFakeChain(99, expiredAuction(1))
	rooms := newRooms(t)
	store := openStorage(t)
	defer store.Close() //nolint:errcheck

	result, err := newTestTracker(chain, rooms, store).TriggerScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Examined: 1}, result)
	assert.Zero(t, chain.endCount(1))
}

func TestScanResumesEndedAuctionWithoutMeeting(t *testing.T) {
	ended := expiredAuction(1)
	ended.Ended = true
	ended.NFTTokenID = 5
	chain := newFakeChain(101, ended)
	rooms := newRooms(t)
	store := openStorage(t)
	defer store.Close() //nolint:errcheck
	ctx := context.Background()

	result, err := newTestTracker(chain, rooms, store).TriggerScan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Zero(t, chain.endCount(1))

	has, err := store.HasMeeting(ctx, 1)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestScanFlagsWinnerWithoutNFT(t *testing.T) {
	chain := newFakeChain(101, expiredAuction(1))
	chain.nextNFT = 0
	rooms := newRooms(t)
	store := openStorage(t)
	defer store.Close() //nolint:errcheck
	ctx := context.Background()

	result, err := newTestTracker(chain, rooms, store).TriggerScan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Zero(t, rooms.created.Load())

	has, err := store.HasMeeting(ctx, 1)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestScanContinuesAfterAuctionFailure(t *testing.T) {
	chain := newFakeChain(101, expiredAuction(1), expiredAuction(2))
	chain.readErrors[1] = errors.New("rpc timeout")
	rooms := newRooms(t)
	store := openStorage(t)
	defer store.Close() //nolint:errcheck
	tracker := newTestTracker(chain, rooms, store)
	ctx := context.Background()

	result, err := tracker.TriggerScan(ctx)
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Examined: 2, Processed: 1, Failed: 1}, result)

	// the failed auction is retried by the next scan
	delete(chain.readErrors, 1)
	result, err = tracker.TriggerScan(ctx)
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Examined: 1, Processed: 1}, result)
}

func TestMeetingRegistrationFailureKeepsMeeting(t *testing.T) {
	chain := newFakeChain(101, expiredAuction(1))
	chain.scheduleErr = errors.New("wallet balance too low")
	rooms := newRooms(t)
	store := openStorage(t)
	defer store.Close() //nolint:errcheck
	ctx := context.Background()

	result, err := newTestTracker(chain, rooms, store).TriggerScan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	meeting, err := store.GetMeetingByAuctionID(ctx, 1)
	require.NoError(t, err)
	assert.False(t, meeting.Registered)
}

func TestIdentityResolutionFallsBackToPlaceholder(t *testing.T) {
	chain := newFakeChain(101, expiredAuction(1))
	rooms := newRooms(t)
	store := openStorage(t)
	defer store.Close() //nolint:errcheck
	ctx := context.Background()

	require.NoError(t, store.UpsertUser(ctx, &storage.User{ExternalID: "auth|host", WalletAddress: hostWallet, DisplayName: "Host"}))

	_, err := newTestTracker(chain, rooms, store).TriggerScan(ctx)
	require.NoError(t, err)

	meeting, err := store.GetMeetingByAuctionID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "auth|host", meeting.CreatorID)
	assert.Equal(t, unknownIdentity, meeting.WinnerID)

	winner, err := rooms.VerifyCredential(meeting.WinnerCredential)
	require.NoError(t, err)
	assert.Equal(t, winnerName, winner.Context.User.Name)
}

func TestOverlappingScans(t *testing.T) {
	chain := newFakeChain(101, expiredAuction(7))
	chain.entered = make(chan struct{})
	chain.release = make(chan struct{})
	rooms := newRooms(t)
	store := openStorage(t)
	defer store.Close() //nolint:errcheck
	tracker := newTestTracker(chain, rooms, store)
	ctx := context.Background()

	type scan struct {
		result ScanResult
		err    error
	}
	done := make(chan scan, 1)
	go func() {
		result, err := tracker.TriggerScan(ctx)
		done <- scan{result, err}
	}()

	<-chain.entered
	_, err := tracker.TriggerScan(ctx)
	assert.ErrorIs(t, err, ErrScanInProgress)
	close(chain.release)

	first := <-done
	require.NoError(t, first.err)
	assert.Equal(t, 1, first.result.Processed)
	assert.Equal(t, 1, chain.endCount(7))
	assert.EqualValues(t, 1, rooms.created.Load())
}

func TestRunScansUntilCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	chain := newFakeChain(101, expiredAuction(1))
	rooms := newRooms(t)
	store := openStorage(t)
	defer store.Close() //nolint:errcheck

	tracker := NewTracker(chain, chain, rooms, store, store, nil, Configuration{
		ScanInterval:     10 * time.Millisecond,
		InitialScanDelay: time.Millisecond,
		ChainTimeout:     time.Second,
		TxConfirmTimeout: time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() {
		stopped <- tracker.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		has, err := store.HasMeeting(context.Background(), 1)
		return err == nil && has
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("tracker did not stop")
	}
}

func TestListMeetingsForCreatorAddsJoinURL(t *testing.T) {
	chain := newFakeChain(101, expiredAuction(1))
	rooms := newRooms(t)
	store := openStorage(t)
	defer store.Close() //nolint:errcheck
	tracker := newTestTracker(chain, rooms, store)
	ctx := context.Background()

	_, err := tracker.TriggerScan(ctx)
	require.NoError(t, err)

	summaries, err := tracker.ListMeetingsForCreator(ctx, hostWallet)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.True(t, strings.HasPrefix(summaries[0].JoinURL, summaries[0].RoomURL+"?jwt="))

	_, err = tracker.ListMeetingsForCreator(ctx, "garbage")
	assert.Error(t, err)
}

var _ ChainReader = (*blockchain.Client)(nil)
var _ ChainWriter = (*blockchain.OracleWallet)(nil)
var _ Storage = (*storage.GormStorage)(nil)
