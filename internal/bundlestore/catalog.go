// Package bundlestore owns the live catalog of bundles the builder
// reads from: a single writer applies the ingress and builder event
// streams, any number of readers take a point-in-time snapshot
// (spec §4.3).
package bundlestore

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/base/tips/internal/bundle"
	"github.com/base/tips/internal/tipstypes"
)

// Catalog holds the three indices spec §4.3 names: the primary
// uuid->Bundle map plus two secondary lookups used to satisfy the
// dedup rules in Created's branching. Generalized from the teacher's
// MemoryOrchestratorStorage single flat cache.
type Catalog struct {
	mu            sync.RWMutex
	byUUID        map[uuid.UUID]*bundle.Bundle
	byHash        map[tipstypes.Hash]uuid.UUID
	bySenderNonce map[bundle.SenderNonce]uuid.UUID
	retainUntil   map[uuid.UUID]time.Time
}

func NewCatalog() *Catalog {
	return &Catalog{
		byUUID:        make(map[uuid.UUID]*bundle.Bundle),
		byHash:        make(map[tipstypes.Hash]uuid.UUID),
		bySenderNonce: make(map[bundle.SenderNonce]uuid.UUID),
		retainUntil:   make(map[uuid.UUID]time.Time),
	}
}

// Get returns a defensive clone so callers can't mutate catalog state
// through the pointer.
func (c *Catalog) Get(id uuid.UUID) (*bundle.Bundle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.byUUID[id]
	if !ok {
		return nil, false
	}
	return b.Clone(), true
}

// Snapshot returns a defensive copy of every entry currently in the
// catalog, the "copy-on-write map or equivalent" §4.3 requires for
// listReady().
func (c *Catalog) Snapshot() []bundle.Bundle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]bundle.Bundle, 0, len(c.byUUID))
	for _, b := range c.byUUID {
		out = append(out, *b.Clone())
	}
	return out
}

// Len reports the number of entries currently in the catalog, used to
// drive the bundle_store_live_bundles gauge.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byUUID)
}

// GetByHash returns the uuid of the live entry with this bundleHash,
// the lookup Ingress needs to satisfy spec §4.2's "merge into any
// existing bundle with the same bundleHash" rule for a Created
// submitted without a replacementUuid.
func (c *Catalog) GetByHash(hash tipstypes.Hash) (uuid.UUID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byHash[hash]
	return id, ok
}

// RetainUntil reports the grace-period deadline stamped on an
// IncludedByBuilder transition. Nothing evicts an entry when this
// deadline passes: the Sweeper does not consult it, and an
// IncludedByBuilder entry leaves the catalog only through a Cancelled
// event or the Sweeper's timeout and cap rules.
func (c *Catalog) RetainUntil(id uuid.UUID) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.retainUntil[id]
	return t, ok
}

func (c *Catalog) insertLocked(b *bundle.Bundle) {
	c.byUUID[b.UUID] = b
	c.byHash[b.BundleHash] = b.UUID
	if b.IsSingleTxRawBundle() {
		c.bySenderNonce[b.SenderNonce()] = b.UUID
	}
}

func (c *Catalog) removeIndicesLocked(b *bundle.Bundle) {
	delete(c.byHash, b.BundleHash)
	if b.IsSingleTxRawBundle() {
		sn := b.SenderNonce()
		if existing, ok := c.bySenderNonce[sn]; ok && existing == b.UUID {
			delete(c.bySenderNonce, sn)
		}
	}
}

// ApplyCreated implements spec §4.3's Created branching: reuse an
// existing entry keyed by bundleHash or by (sender,nonce) before ever
// inserting a new one, so replays of the same submission converge to
// a single catalog entry (P1).
func (c *Catalog) ApplyCreated(b *bundle.Bundle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existingID, ok := c.byHash[b.BundleHash]; ok {
		c.applyUpdatedLocked(existingID, b)
		return
	}

	if b.IsSingleTxRawBundle() {
		if existingID, ok := c.bySenderNonce[b.SenderNonce()]; ok {
			c.applyUpdatedLocked(existingID, b)
			return
		}
	}

	c.insertLocked(b)
}

// ApplyUpdated overwrites mutable fields on an existing entry and
// reindexes it. A mismatch (no such uuid) is a semantic no-op — the
// caller is responsible for logging it as a best-effort drop.
func (c *Catalog) ApplyUpdated(id uuid.UUID, b *bundle.Bundle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byUUID[id]; !ok {
		return false
	}
	c.applyUpdatedLocked(id, b)
	return true
}

func (c *Catalog) applyUpdatedLocked(id uuid.UUID, b *bundle.Bundle) {
	updated := b.Clone()
	if existing, ok := c.byUUID[id]; ok {
		c.removeIndicesLocked(existing)
		updated.CreatedAt = existing.CreatedAt
		updated.State = existing.State
	}
	updated.UUID = id
	updated.BundleHash = bundle.Hash(updated.Txs)
	c.insertLocked(updated)
}

// ApplyCancelled removes the entry if present; a miss is a no-op.
func (c *Catalog) ApplyCancelled(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.byUUID[id]
	if !ok {
		return
	}
	c.removeIndicesLocked(b)
	delete(c.byUUID, id)
	delete(c.retainUntil, id)
}

// ApplyIncludedByBuilder transitions Ready -> IncludedByBuilder and
// stamps the grace-period retention deadline reported by RetainUntil.
// A miss is a no-op (best-effort per §4.3/§7).
func (c *Catalog) ApplyIncludedByBuilder(id uuid.UUID, gracePeriod time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.byUUID[id]
	if !ok {
		return false
	}
	b.State = bundle.StateIncludedByBuilder
	c.retainUntil[id] = time.Now().Add(gracePeriod)
	return true
}

// Drop removes an entry outright; the sole caller is Maintenance's
// sweep, per §4.3 naming the Bundle Store as owner of fields and §4.6
// naming Maintenance as owner of deletions.
func (c *Catalog) Drop(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.byUUID[id]
	if !ok {
		return
	}
	c.removeIndicesLocked(b)
	delete(c.byUUID, id)
	delete(c.retainUntil, id)
}
