package maintenance

import (
	"context"

	tipslog "github.com/base/tips/internal/log"
)

// RunServer drives the Sweeper's tick loop until ctx is cancelled.
// Maintenance exposes no RPC surface; its only effect is on the shared
// Catalog and the builder event log.
func RunServer(ctx context.Context, sweeper *Sweeper) error {
	log := tipslog.NewLogger("maintenance")
	log.Info().Msg("maintenance sweeper running")
	return sweeper.Run(ctx)
}
