package bundlestore

import (
	"context"
	"net/http"
	"time"

	gethrpc "github.com/ethereum/go-ethereum/rpc"

	tipslog "github.com/base/tips/internal/log"
)

// RunServer drives the Store's consume loop and serves its read
// contract over JSON-RPC under the "builder" namespace, blocking until
// ctx is cancelled — the same shutdown shape as ingress.RunServer.
func RunServer(ctx context.Context, listenAddr string, store *Store) error {
	log := tipslog.NewLogger("bundlestore")

	rpcServer := gethrpc.NewServer()
	if err := rpcServer.RegisterName("builder", store.RPCAPI()); err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    listenAddr,
		Handler: rpcServer,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info().Str("addr", listenAddr).Msg("bundle store rpc listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	go func() {
		if err := store.Run(ctx); err != nil {
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
