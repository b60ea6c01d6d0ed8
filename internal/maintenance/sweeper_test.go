package maintenance_test

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/base/tips/internal/bundle"
	"github.com/base/tips/internal/bundlestore"
	"github.com/base/tips/internal/lifecycle"
	"github.com/base/tips/internal/maintenance"
)

const testChainID = 8453

type fakePublisher struct {
	mu        sync.Mutex
	published []publishedRecord
}

type publishedRecord struct {
	topic string
	key   []byte
	value []byte
}

func (f *fakePublisher) Publish(ctx context.Context, topic string, key, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedRecord{topic, key, value})
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func (f *fakePublisher) reasons(t *testing.T) []lifecycle.DropReason {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]lifecycle.DropReason, 0, len(f.published))
	for _, p := range f.published {
		ev, err := lifecycle.UnmarshalBundleEvent(p.value, nil)
		require.NoError(t, err)
		require.Equal(t, lifecycle.BundleDropped, ev.Type)
		out = append(out, ev.Dropped.Reason)
	}
	return out
}

func signTx(t *testing.T, key *ecdsa.PrivateKey, nonce uint64, feeCap int64) bundle.Tx {
	t.Helper()
	signer := types.NewLondonSigner(big.NewInt(testChainID))
	to := common.HexToAddress("0x00000000000000000000000000000000000ff4")
	tx := types.MustSignNewTx(key, signer, &types.DynamicFeeTx{
		ChainID:   big.NewInt(testChainID),
		Nonce:     nonce,
		Gas:       21000,
		GasFeeCap: big.NewInt(feeCap),
		GasTipCap: big.NewInt(1),
		To:        &to,
		Value:     big.NewInt(0),
	})
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	decoded, err := bundle.DecodeTx(raw, signer)
	require.NoError(t, err)
	return decoded
}

func TestSweeperDropsTimedOutBundle(t *testing.T) {
	catalog := bundlestore.NewCatalog()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	tx := signTx(t, key, 0, 1_000_000_000)
	b := bundle.WrapRawTx(tx)
	b.UUID = uuid.New()
	b.CreatedAt = time.Now().Add(-2 * time.Hour).UnixMilli()
	catalog.ApplyCreated(b)

	pub := &fakePublisher{}
	sweeper := maintenance.NewSweeper(catalog, pub, maintenance.Config{
		Interval: time.Hour,
		Timeout:  time.Hour,
	})

	sweeper.Sweep(context.Background())

	_, ok := catalog.Get(b.UUID)
	require.False(t, ok)
	require.Equal(t, 1, pub.count())
	require.Equal(t, []lifecycle.DropReason{lifecycle.DropTimeout}, pub.reasons(t))
}

func TestSweeperKeepsFreshBundle(t *testing.T) {
	catalog := bundlestore.NewCatalog()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	tx := signTx(t, key, 0, 1_000_000_000)
	b := bundle.WrapRawTx(tx)
	b.UUID = uuid.New()
	b.CreatedAt = time.Now().UnixMilli()
	catalog.ApplyCreated(b)

	pub := &fakePublisher{}
	sweeper := maintenance.NewSweeper(catalog, pub, maintenance.Config{
		Interval: time.Hour,
		Timeout:  time.Hour,
	})

	sweeper.Sweep(context.Background())

	_, ok := catalog.Get(b.UUID)
	require.True(t, ok)
	require.Equal(t, 0, pub.count())
}

func TestSweeperEnforcesPerAccountCapByDroppingHighestNonce(t *testing.T) {
	catalog := bundlestore.NewCatalog()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	var ids []uuid.UUID
	for nonce := uint64(0); nonce < 3; nonce++ {
		tx := signTx(t, key, nonce, 1_000_000_000)
		b := bundle.WrapRawTx(tx)
		b.UUID = uuid.New()
		b.CreatedAt = time.Now().UnixMilli()
		ids = append(ids, b.UUID)
		catalog.ApplyCreated(b)
	}

	pub := &fakePublisher{}
	sweeper := maintenance.NewSweeper(catalog, pub, maintenance.Config{
		Interval:      time.Hour,
		Timeout:       time.Hour,
		PerAccountCap: 2,
	})

	sweeper.Sweep(context.Background())

	require.Equal(t, 1, pub.count())
	require.Equal(t, []lifecycle.DropReason{lifecycle.DropPerAccountCapExceeded}, pub.reasons(t))

	_, ok0 := catalog.Get(ids[0])
	_, ok1 := catalog.Get(ids[1])
	_, ok2 := catalog.Get(ids[2])
	require.True(t, ok0)
	require.True(t, ok1)
	require.False(t, ok2, "highest nonce entry should have been dropped")
}

func TestSweeperEnforcesGlobalCapDroppingOldestCheapestFirst(t *testing.T) {
	catalog := bundlestore.NewCatalog()

	oldCheapKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	oldCheapTx := signTx(t, oldCheapKey, 0, 1)
	oldCheap := bundle.WrapRawTx(oldCheapTx)
	oldCheap.UUID = uuid.New()
	oldCheap.CreatedAt = time.Now().Add(-time.Hour).UnixMilli()
	catalog.ApplyCreated(oldCheap)

	freshExpensiveKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	freshExpensiveTx := signTx(t, freshExpensiveKey, 0, 1_000_000_000)
	freshExpensive := bundle.WrapRawTx(freshExpensiveTx)
	freshExpensive.UUID = uuid.New()
	freshExpensive.CreatedAt = time.Now().UnixMilli()
	catalog.ApplyCreated(freshExpensive)

	pub := &fakePublisher{}
	sweeper := maintenance.NewSweeper(catalog, pub, maintenance.Config{
		Interval:  time.Hour,
		Timeout:   2 * time.Hour,
		GlobalCap: 1,
	})

	sweeper.Sweep(context.Background())

	require.Equal(t, 1, pub.count())
	require.Equal(t, []lifecycle.DropReason{lifecycle.DropGlobalCapExceeded}, pub.reasons(t))

	_, ok := catalog.Get(oldCheap.UUID)
	require.False(t, ok)
	_, ok = catalog.Get(freshExpensive.UUID)
	require.True(t, ok)
}

func TestSweeperRunReturnsOnContextCancel(t *testing.T) {
	catalog := bundlestore.NewCatalog()
	pub := &fakePublisher{}
	sweeper := maintenance.NewSweeper(catalog, pub, maintenance.Config{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper.Run did not return after context cancellation")
	}
}
