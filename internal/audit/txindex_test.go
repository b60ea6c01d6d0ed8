package audit_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/base/tips/internal/audit"
	"github.com/base/tips/internal/objectstore"
	"github.com/base/tips/internal/tipstypes"
)

func TestTxIndexRecordThenLookup(t *testing.T) {
	store := objectstore.NewMemoryClient()
	idx := audit.NewTxIndex(store)

	hash := tipstypes.Keccak256([]byte("tx-a"))
	id := uuid.New()

	require.NoError(t, idx.Record(context.Background(), []tipstypes.Hash{hash}, id))

	ids, err := idx.Lookup(context.Background(), hash)
	require.NoError(t, err)
	require.Contains(t, ids, id)
}

func TestTxIndexAccumulatesMultipleBundlesForSameHash(t *testing.T) {
	store := objectstore.NewMemoryClient()
	idx := audit.NewTxIndex(store)

	hash := tipstypes.Keccak256([]byte("tx-b"))
	first := uuid.New()
	second := uuid.New()

	require.NoError(t, idx.Record(context.Background(), []tipstypes.Hash{hash}, first))
	require.NoError(t, idx.Record(context.Background(), []tipstypes.Hash{hash}, second))

	ids, err := idx.Lookup(context.Background(), hash)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	require.Contains(t, ids, first)
	require.Contains(t, ids, second)
}

func TestTxIndexRecordIsIdempotent(t *testing.T) {
	store := objectstore.NewMemoryClient()
	idx := audit.NewTxIndex(store)

	hash := tipstypes.Keccak256([]byte("tx-c"))
	id := uuid.New()

	require.NoError(t, idx.Record(context.Background(), []tipstypes.Hash{hash}, id))
	require.NoError(t, idx.Record(context.Background(), []tipstypes.Hash{hash}, id))

	ids, err := idx.Lookup(context.Background(), hash)
	require.NoError(t, err)
	require.Len(t, ids, 1)
}

func TestTxIndexLookupUnknownHashReturnsEmpty(t *testing.T) {
	store := objectstore.NewMemoryClient()
	idx := audit.NewTxIndex(store)

	ids, err := idx.Lookup(context.Background(), tipstypes.Keccak256([]byte("never-seen")))
	require.NoError(t, err)
	require.Empty(t, ids)
}
