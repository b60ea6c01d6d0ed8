package audit

import (
	"context"

	tipslog "github.com/base/tips/internal/log"
)

// RunServer drives the Pipeline's merge loop until ctx is cancelled.
// Unlike Ingress and the Bundle Store, the Audit Pipeline exposes no
// RPC surface of its own — its output is the archived history in the
// object store.
func RunServer(ctx context.Context, pipeline *Pipeline) error {
	log := tipslog.NewLogger("audit")
	log.Info().Msg("audit pipeline running")
	return pipeline.Run(ctx)
}
