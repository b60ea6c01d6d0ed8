package bundlestore_test

import (
	"context"
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
	"github.com/base/tips/internal/eventlog"
	"github.com/base/tips/internal/lifecycle"
)

// fakeEventSource replays fixed batches of records and then blocks
// until its context is cancelled, mirroring how a real consumer's
// Poll behaves once it has caught up to the log's tail.
type fakeEventSource struct {
	mu        sync.Mutex
	batches   [][]eventlog.Record
	idx       int
	committed []eventlog.Record
}

func newFakeEventSource(batches ...[]eventlog.Record) *fakeEventSource {
	return &fakeEventSource{batches: batches}
}

func (f *fakeEventSource) Poll(ctx context.Context) ([]eventlog.Record, error) {
	f.mu.Lock()
	if f.idx < len(f.batches) {
		b := f.batches[f.idx]
		f.idx++
		f.mu.Unlock()
		return b, nil
	}
	f.mu.Unlock()

	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeEventSource) CommitRecords(ctx context.Context, records ...eventlog.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = append(f.committed, records...)
	return nil
}

func (f *fakeEventSource) committedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.committed)
}

func storeTestTx(t *testing.T, nonce uint64) bundle.Tx {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := types.NewLondonSigner(big.NewInt(testChainID))
	to := common.HexToAddress("0x00000000000000000000000000000000000ff2")
	tx := types.MustSignNewTx(key, signer, &types.DynamicFeeTx{
		ChainID:   big.NewInt(testChainID),
		Nonce:     nonce,
		Gas:       21000,
		GasFeeCap: big.NewInt(1_000_000_000),
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

func mustMarshalEvent(t *testing.T, ev *lifecycle.BundleEvent) []byte {
	t.Helper()
	data, err := ev.MarshalJSON()
	require.NoError(t, err)
	return data
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.After(timeout)
	tick := time.NewTicker(2 * time.Millisecond)
	defer tick.Stop()
	for {
		if cond() {
			return
		}
		select {
		case <-tick.C:
		case <-deadline:
			t.Fatal("condition not met before deadline")
		}
	}
}

func TestStoreAppliesCreatedFromIngressStream(t *testing.T) {
	tx := storeTestTx(t, 0)
	b := bundle.WrapRawTx(tx)
	b.UUID = uuid.New()

	ev := &lifecycle.BundleEvent{
		Type:       lifecycle.BundleCreated,
		Timestamp:  1,
		Key:        lifecycle.EventKey(b.UUID.String(), 1),
		BundleUUID: b.UUID,
		Bundle:     b,
	}

	ingress := newFakeEventSource([]eventlog.Record{{Value: mustMarshalEvent(t, ev)}})
	builder := newFakeEventSource()

	catalog := bundlestore.NewCatalog()
	store := bundlestore.NewStore(catalog, ingress, builder, testChainID, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- store.Run(ctx) }()

	waitFor(t, time.Second, func() bool {
		_, ok := store.Get(b.UUID)
		return ok
	})

	got, ok := store.Get(b.UUID)
	require.True(t, ok)
	require.Equal(t, b.UUID, got.UUID)

	cancel()
	require.NoError(t, <-done)
}

func TestStoreAppliesCancelledFromIngressStream(t *testing.T) {
	tx := storeTestTx(t, 0)
	b := bundle.WrapRawTx(tx)
	b.UUID = uuid.New()

	created := &lifecycle.BundleEvent{
		Type:       lifecycle.BundleCreated,
		Timestamp:  1,
		Key:        lifecycle.EventKey(b.UUID.String(), 1),
		BundleUUID: b.UUID,
		Bundle:     b,
	}
	cancelled := &lifecycle.BundleEvent{
		Type:       lifecycle.BundleCancelled,
		Timestamp:  2,
		Key:        lifecycle.EventKey(b.UUID.String(), 2),
		BundleUUID: b.UUID,
		Nonce:      &lifecycle.NonceRef{},
	}

	ingress := newFakeEventSource([]eventlog.Record{
		{Value: mustMarshalEvent(t, created)},
		{Value: mustMarshalEvent(t, cancelled)},
	})
	builder := newFakeEventSource()

	catalog := bundlestore.NewCatalog()
	store := bundlestore.NewStore(catalog, ingress, builder, testChainID, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- store.Run(ctx) }()

	waitFor(t, time.Second, func() bool { return ingress.committedCount() == 2 })

	_, ok := store.Get(b.UUID)
	require.False(t, ok)

	cancel()
	require.NoError(t, <-done)
}

func TestStoreAppliesIncludedByBuilderFromBuilderStream(t *testing.T) {
	tx := storeTestTx(t, 0)
	b := bundle.WrapRawTx(tx)
	b.UUID = uuid.New()

	includedByBuilder := &lifecycle.BundleEvent{
		Type:              lifecycle.BundleIncludedByBuilder,
		Timestamp:         2,
		Key:               lifecycle.EventKey(b.UUID.String(), 1),
		BundleUUID:        b.UUID,
		IncludedByBuilder: &lifecycle.IncludedByBuilderData{BlockNumber: 42},
	}

	// The ingress and builder streams are consumed concurrently with no
	// ordering between them, so the entry is placed in the catalog
	// before Run starts rather than delivered on the ingress stream.
	ingress := newFakeEventSource()
	builder := newFakeEventSource([]eventlog.Record{{Value: mustMarshalEvent(t, includedByBuilder)}})

	catalog := bundlestore.NewCatalog()
	catalog.ApplyCreated(b)
	store := bundlestore.NewStore(catalog, ingress, builder, testChainID, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- store.Run(ctx) }()

	waitFor(t, time.Second, func() bool {
		got, ok := store.Get(b.UUID)
		return ok && got.State == bundle.StateIncludedByBuilder
	})

	cancel()
	require.NoError(t, <-done)
}

func TestStorePoisonMessageIsSkippedAndCommitted(t *testing.T) {
	tx := storeTestTx(t, 0)
	b := bundle.WrapRawTx(tx)
	b.UUID = uuid.New()

	created := &lifecycle.BundleEvent{
		Type:       lifecycle.BundleCreated,
		Timestamp:  2,
		Key:        lifecycle.EventKey(b.UUID.String(), 1),
		BundleUUID: b.UUID,
		Bundle:     b,
	}

	ingress := newFakeEventSource([]eventlog.Record{
		{Value: []byte("not json")},
		{Value: mustMarshalEvent(t, created)},
	})
	builder := newFakeEventSource()

	catalog := bundlestore.NewCatalog()
	store := bundlestore.NewStore(catalog, ingress, builder, testChainID, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- store.Run(ctx) }()

	waitFor(t, time.Second, func() bool {
		_, ok := store.Get(b.UUID)
		return ok
	})
	require.Equal(t, 2, ingress.committedCount())

	cancel()
	require.NoError(t, <-done)
}

func TestStoreUpdatedAgainstUnknownUUIDIsSilentlyDropped(t *testing.T) {
	tx := storeTestTx(t, 0)
	orphan := bundle.WrapRawTx(tx)
	orphan.UUID = uuid.New()

	update := &lifecycle.BundleEvent{
		Type:       lifecycle.BundleUpdated,
		Timestamp:  1,
		Key:        lifecycle.EventKey(orphan.UUID.String(), 1),
		BundleUUID: orphan.UUID,
		Bundle:     orphan,
	}

	ingress := newFakeEventSource([]eventlog.Record{{Value: mustMarshalEvent(t, update)}})
	builder := newFakeEventSource()

	catalog := bundlestore.NewCatalog()
	store := bundlestore.NewStore(catalog, ingress, builder, testChainID, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- store.Run(ctx) }()

	waitFor(t, time.Second, func() bool { return ingress.committedCount() == 1 })

	_, ok := store.Get(orphan.UUID)
	require.False(t, ok)

	cancel()
	require.NoError(t, <-done)
}

func TestStoreShutsDownOnContextCancel(t *testing.T) {
	ingress := newFakeEventSource()
	builder := newFakeEventSource()

	catalog := bundlestore.NewCatalog()
	store := bundlestore.NewStore(catalog, ingress, builder, testChainID, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- store.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("store.Run did not return after context cancellation")
	}
}
