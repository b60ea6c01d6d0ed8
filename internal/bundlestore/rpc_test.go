package bundlestore_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/base/tips/internal/bundle"
	"github.com/base/tips/internal/bundlestore"
)

func newTestStore(t *testing.T) (*bundlestore.Store, *bundlestore.Catalog) {
	t.Helper()
	catalog := bundlestore.NewCatalog()
	ingress := newFakeEventSource()
	builder := newFakeEventSource()
	store := bundlestore.NewStore(catalog, ingress, builder, testChainID, time.Minute)
	return store, catalog
}

func TestBuilderAPIListReadyBundlesReturnsOnlyReadyEntries(t *testing.T) {
	store, catalog := newTestStore(t)

	readyTx := storeTestTx(t, 0)
	ready := bundle.WrapRawTx(readyTx)
	ready.UUID = uuid.New()
	catalog.ApplyCreated(ready)

	includedTx := storeTestTx(t, 0)
	included := bundle.WrapRawTx(includedTx)
	included.UUID = uuid.New()
	catalog.ApplyCreated(included)
	require.True(t, catalog.ApplyIncludedByBuilder(included.UUID, time.Minute))

	api := store.RPCAPI()
	list := api.ListReadyBundles(context.Background())

	require.Len(t, list, 1)
	require.Equal(t, ready.UUID, list[0].UUID)
}

func TestBuilderAPIGetBundleReturnsEntry(t *testing.T) {
	store, catalog := newTestStore(t)

	tx := storeTestTx(t, 0)
	b := bundle.WrapRawTx(tx)
	b.UUID = uuid.New()
	catalog.ApplyCreated(b)

	api := store.RPCAPI()
	got, err := api.GetBundle(context.Background(), b.UUID)
	require.NoError(t, err)
	require.Equal(t, b.UUID, got.UUID)
}

func TestBuilderAPIGetBundleReturnsErrUnknownUUIDForMissingEntry(t *testing.T) {
	store, _ := newTestStore(t)

	api := store.RPCAPI()
	_, err := api.GetBundle(context.Background(), uuid.New())
	require.ErrorIs(t, err, bundlestore.ErrUnknownUUID)
}

func TestBuilderAPIGetBundleByHashReturnsUUID(t *testing.T) {
	store, catalog := newTestStore(t)

	tx := storeTestTx(t, 0)
	b := bundle.WrapRawTx(tx)
	b.UUID = uuid.New()
	catalog.ApplyCreated(b)

	api := store.RPCAPI()
	id, err := api.GetBundleByHash(context.Background(), b.BundleHash)
	require.NoError(t, err)
	require.Equal(t, b.UUID, id)
}

func TestBuilderAPIGetBundleByHashReturnsErrUnknownUUIDForMissingHash(t *testing.T) {
	store, _ := newTestStore(t)

	api := store.RPCAPI()
	_, err := api.GetBundleByHash(context.Background(), bundle.Hash(nil))
	require.ErrorIs(t, err, bundlestore.ErrUnknownUUID)
}
