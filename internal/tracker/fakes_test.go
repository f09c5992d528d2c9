package tracker

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"math"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"auction-oracle/internal/blockchain"
	"auction-oracle/internal/room"
	"auction-oracle/internal/storage"

	"github.com/stretchr/testify/require"
)

const (
	hostWallet   = "0:584ee61b2dff0837116d0fcb5078d93964bcbe9c05fd6a141b1bfca5d6a43e18"
	winnerWallet = "0:1111111111111111111111111111111111111111111111111111111111111111"
)

// fakeChain is both reader and writer of an in-memory auction contract.
type fakeChain struct {
	mu          sync.Mutex
	height      uint64
	count       uint64
	auctions    map[uint64]*blockchain.AuctionSnapshot
	readErrors  map[uint64]error
	nextNFT     uint64
	scheduleErr error

	endCalls      map[uint64]int
	scheduleCalls []string

	// when set, EndAuction signals entered and waits for release
	entered chan struct{}
	release chan struct{}
}

func newFakeChain(height uint64, auctions ...*blockchain.AuctionSnapshot) *fakeChain {
	chain := &fakeChain{
		height:     height,
		auctions:   make(map[uint64]*blockchain.AuctionSnapshot),
		readErrors: make(map[uint64]error),
		endCalls:   make(map[uint64]int),
		nextNFT:    1,
	}
	for _, auction := range auctions {
		chain.auctions[auction.ID] = auction
		chain.count = max(chain.count, auction.ID)
	}
	return chain
}

func (c *fakeChain) GetBlockHeight(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height, nil
}

func (c *fakeChain) GetAuctionCount(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count, nil
}

func (c *fakeChain) GetAuction(_ context.Context, id uint64) (*blockchain.AuctionSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.readErrors[id]; err != nil {
		return nil, err
	}
	auction, ok := c.auctions[id]
	if !ok {
		// ids without a fixture are still open for bids
		return &blockchain.AuctionSnapshot{ID: id, Host: hostWallet, EndBlock: math.MaxUint64}, nil
	}
	snapshot := *auction
	return &snapshot, nil
}

func (c *fakeChain) EndAuction(ctx context.Context, id uint64) (*blockchain.TxReceipt, error) {
	if c.entered != nil {
		c.entered <- struct{}{}
		select {
		case <-c.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.endCalls[id]++
	auction := c.auctions[id]
	if auction.Ended {
		return &blockchain.TxReceipt{AlreadyDone: true}, nil
	}
	auction.Ended = true
	if auction.HasWinningBid() {
		auction.NFTTokenID = c.nextNFT
		c.nextNFT++
	}
	return &blockchain.TxReceipt{Hash: "end-hash"}, nil
}

func (c *fakeChain) ScheduleMeeting(_ context.Context, id uint64, roomID string) (*blockchain.TxReceipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scheduleErr != nil {
		return nil, c.scheduleErr
	}
	c.scheduleCalls = append(c.scheduleCalls, roomID)
	c.auctions[id].MeetingScheduled = true
	return &blockchain.TxReceipt{Hash: "schedule-hash"}, nil
}

func (c *fakeChain) endCount(id uint64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endCalls[id]
}

type countingRooms struct {
	*room.JitsiProvisioner
	created atomic.Int32
}

func (r *countingRooms) CreateRoom(ctx context.Context, name string, durationMinutes int) (*room.Room, error) {
	r.created.Add(1)
	return r.JitsiProvisioner.CreateRoom(ctx, name, durationMinutes)
}

func newRooms(t *testing.T) *countingRooms {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	provisioner, err := room.NewJitsiProvisioner(room.Configuration{
		Domain:        "8x8.vc",
		AppID:         "app",
		KeyID:         "app/key",
		PrivateKeyPEM: pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}),
	})
	require.NoError(t, err)
	return &countingRooms{JitsiProvisioner: provisioner}
}

func openStorage(t *testing.T) *storage.GormStorage {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "oracle.db"))
	require.NoError(t, err)
	return store
}

func expiredAuction(id uint64) *blockchain.AuctionSnapshot {
	return &blockchain.AuctionSnapshot{
		ID:              id,
		Host:            hostWallet,
		StartBlock:      10,
		EndBlock:        100,
		ReservePrice:    1_000_000_000,
		HighestBid:      2_000_000_000,
		HighestBidder:   winnerWallet,
		MeetingDuration: 60,
	}
}

func newTestTracker(chain *fakeChain, rooms RoomProvisioner, store *storage.GormStorage) *Tracker {
	return NewTracker(chain, chain, rooms, store, store, nil, Configuration{
		ScanInterval:     time.Minute,
		ScanConcurrency:  2,
		ChainTimeout:     time.Second,
		TxConfirmTimeout: time.Second,
	})
}
