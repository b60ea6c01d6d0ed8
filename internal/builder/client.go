// Package builder models TIPS's side of the enshrined block builder's
// contract: the narrow RPC surface spec.md §6 names without shaping,
// and the ±1-window midpoint rule §4.5's insertion protocol relies on.
// The builder's own EVM execution lives outside this module; TIPS only
// needs an interface to poll it and to report back what happened to
// each bundle.
package builder

import (
	"context"

	"github.com/base/tips/internal/bundle"
	"github.com/base/tips/internal/lifecycle"
)

// Client is the client-side stub for the external block builder. The
// Bundle Store's RPC server (internal/bundlestore.BuilderAPI) is the
// inverse of this contract: the builder calls in through that API to
// list and fetch bundles, and calls back out through something
// shaped like Client to report inclusion.
type Client interface {
	// ListReadyBundles returns a snapshot of bundles currently eligible
	// for insertion, mirroring bundlestore.BuilderAPI.ListReadyBundles.
	ListReadyBundles(ctx context.Context) ([]bundle.Bundle, error)

	// PublishEvents reports inclusion, drop, or block-confirmation
	// transitions for one or more bundles back onto the builder event
	// stream (spec §4.4).
	PublishEvents(ctx context.Context, events []lifecycle.BundleEvent) error
}
