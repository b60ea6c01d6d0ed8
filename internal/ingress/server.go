package ingress

import (
	"context"
	"net/http"
	"time"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"

	"github.com/base/tips/internal/lifecycle"
	tipslog "github.com/base/tips/internal/log"
	"github.com/base/tips/internal/useropbundler"
)

// Publisher is the narrow seam onto the ingress event log producer,
// satisfied by *eventlog.Producer; tests inject a fake instead of
// dialing a real broker.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Server holds the collaborators the Ingress RPC needs to admit
// submissions: the producer onto the ingress event log, the
// simulation collaborator, and per-entity key sequencing for
// idempotent event publishing.
type Server struct {
	cfg          Config
	producer     Publisher
	sim          SimulationClient
	bundleLookup BundleLookup
	keys         *lifecycle.KeySequencer
	log          zerolog.Logger
	useropSvc    *useropbundler.Service
}

// NewServer builds the ingress daemon's collaborators.
func NewServer(cfg Config, producer Publisher, sim SimulationClient) *Server {
	return &Server{
		cfg:      cfg,
		producer: producer,
		sim:      sim,
		keys:     lifecycle.NewKeySequencer(),
		log:      tipslog.NewLogger("ingress"),
	}
}

// WithUserOpBundler feeds admitted UserOperations directly into svc's
// Batcher in-process, since spec §4.5's batching runs against whatever
// ingress admits rather than off a separate wire feed. Nil by default:
// an ingress instance with no bundler wired simply skips batching.
func (s *Server) WithUserOpBundler(svc *useropbundler.Service) *Server {
	s.useropSvc = svc
	return s
}

// WithBundleLookup wires the bundleHash->uuid lookup SendBundle
// consults before minting a fresh uuid for a Created submission with
// no replacementUuid. Nil by default: an ingress instance with no
// Bundle Store wired always mints fresh, matching prior behavior.
func (s *Server) WithBundleLookup(lookup BundleLookup) *Server {
	s.bundleLookup = lookup
	return s
}

// RPCAPI returns the receiver registered under go-ethereum's "eth"
// namespace, mirroring flashbots-op-geth's PrivateTxBundleAPI
// registration.
func (s *Server) RPCAPI() *EthAPI {
	return &EthAPI{server: s}
}

// RunServer builds the JSON-RPC HTTP server and blocks until ctx is
// cancelled, following the same signal-driven shutdown shape as the
// teacher's orchestrator.Orchestrator.Start.
func RunServer(ctx context.Context, cfg Config, producer Publisher, sim SimulationClient, useropSvc *useropbundler.Service, bundleLookup BundleLookup) error {
	s := NewServer(cfg, producer, sim).WithUserOpBundler(useropSvc).WithBundleLookup(bundleLookup)

	rpcServer := gethrpc.NewServer()
	if err := rpcServer.RegisterName("eth", s.RPCAPI()); err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: rpcServer,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", cfg.ListenAddr).Msg("ingress rpc listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}
