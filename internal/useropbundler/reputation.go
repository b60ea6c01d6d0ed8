package useropbundler

import "github.com/base/tips/internal/tipstypes"

// ReputationTracker is an extension seam for a future paymaster
// reputation strategy (spec §9 explicitly leaves this as future work).
// Batcher calls it but the default implementation never rejects
// anything, so no reputation logic runs today.
type ReputationTracker interface {
	// Allow reports whether ops from paymaster may be included in the
	// next batch.
	Allow(paymaster tipstypes.Address) bool
}

// NoopReputationTracker allows every paymaster unconditionally.
type NoopReputationTracker struct{}

func (NoopReputationTracker) Allow(tipstypes.Address) bool { return true }
