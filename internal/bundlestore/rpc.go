package bundlestore

import (
	"context"

	"github.com/google/uuid"

	"github.com/base/tips/internal/bundle"
	"github.com/base/tips/internal/tipstypes"
)

// BuilderAPI is the JSON-RPC receiver registered under the "builder"
// namespace (§4.3/§6), the read-only surface an external block
// builder polls against the live catalog.
type BuilderAPI struct {
	store *Store
}

func (s *Store) RPCAPI() *BuilderAPI {
	return &BuilderAPI{store: s}
}

// ListReadyBundles serves listReady(): a snapshot of Ready entries.
func (a *BuilderAPI) ListReadyBundles(ctx context.Context) []bundle.Bundle {
	return a.store.ListReady()
}

// GetBundle serves get(uuid).
func (a *BuilderAPI) GetBundle(ctx context.Context, id uuid.UUID) (*bundle.Bundle, error) {
	b, ok := a.store.Get(id)
	if !ok {
		return nil, ErrUnknownUUID
	}
	return b, nil
}

// GetBundleByHash serves the bundleHash->uuid lookup Ingress needs to
// merge a Created submission without a replacementUuid into the
// existing live entry with the same bundleHash, rather than always
// minting a fresh uuid (spec §4.2's Testable Scenario 2).
func (a *BuilderAPI) GetBundleByHash(ctx context.Context, hash tipstypes.Hash) (uuid.UUID, error) {
	id, ok := a.store.GetByHash(hash)
	if !ok {
		return uuid.Nil, ErrUnknownUUID
	}
	return id, nil
}
