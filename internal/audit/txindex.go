package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/base/tips/internal/objectstore"
	"github.com/base/tips/internal/tipstypes"
)

// TxIndex maintains transactions/by_hash/<txHash>, the reverse index
// from a raw transaction hash back to every bundle uuid that has ever
// carried it (P6). Concurrent writers to the same key serialize via
// read-modify-write with last-write-wins; that is acceptable because
// the set only ever grows (spec §5).
type TxIndex struct {
	store objectstore.Client
}

func NewTxIndex(store objectstore.Client) *TxIndex {
	return &TxIndex{store: store}
}

func txIndexKey(hash tipstypes.Hash) string {
	return "transactions/by_hash/" + hash.Hex()
}

// txIndexJSON is the wire shape of a transactions/by_hash/<hash>
// object: { "bundle_ids": [uuid, ...] }.
type txIndexJSON struct {
	BundleIDs []uuid.UUID `json:"bundle_ids"`
}

// Record adds bundleID to the reverse index entry of every hash in
// hashes.
func (t *TxIndex) Record(ctx context.Context, hashes []tipstypes.Hash, bundleID uuid.UUID) error {
	for _, h := range hashes {
		if err := t.recordOne(ctx, h, bundleID); err != nil {
			return err
		}
	}
	return nil
}

func (t *TxIndex) recordOne(ctx context.Context, hash tipstypes.Hash, bundleID uuid.UUID) error {
	key := txIndexKey(hash)
	var lastErr error
	for attempt := 0; attempt < retryMaxAttempts; attempt++ {
		set, err := t.load(ctx, key)
		if err != nil {
			return err
		}
		if set.Contains(bundleID) {
			return nil
		}
		set.Add(bundleID)
		body, err := json.Marshal(txIndexJSON{BundleIDs: set.List()})
		if err != nil {
			return err
		}
		if err := putWithRetry(ctx, t.store, key, body); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return fmt.Errorf("audit: tx index update %s: %w", key, lastErr)
}

func (t *TxIndex) load(ctx context.Context, key string) (*tipstypes.Set[uuid.UUID], error) {
	data, err := getWithRetry(ctx, t.store, key)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return tipstypes.NewSet[uuid.UUID](), nil
		}
		return nil, err
	}
	var in txIndexJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	set := tipstypes.NewSet[uuid.UUID]()
	for _, id := range in.BundleIDs {
		set.Add(id)
	}
	return set, nil
}

// Lookup returns every bundle uuid that has ever carried a transaction
// with this hash.
func (t *TxIndex) Lookup(ctx context.Context, hash tipstypes.Hash) ([]uuid.UUID, error) {
	set, err := t.load(ctx, txIndexKey(hash))
	if err != nil {
		return nil, err
	}
	return set.List(), nil
}
