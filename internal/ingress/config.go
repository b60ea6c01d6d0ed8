// Package ingress terminates the client-facing JSON-RPC protocol,
// validates and canonicalizes submissions, and publishes them onto the
// ingress event log (spec §4.2).
package ingress

import (
	"time"

	"github.com/base/tips/internal/tipstypes"
)

// Config carries the ingress daemon's tunables, sourced from
// configs.IngressConfig.
type Config struct {
	ListenAddr                     string
	ChainID                        uint64
	EntryPoints                    []tipstypes.Address
	ValidateUserOperationTimeout   time.Duration
	BundlerAddress                 tipstypes.Address
}
