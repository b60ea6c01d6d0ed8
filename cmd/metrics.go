package cmd

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// serveMetrics starts the Prometheus scrape endpoint on addr, matching
// the teacher's cmd/backfill.go promhttp.Handler() wiring.
func serveMetrics(addr string) {
	go func() {
		log.Info().Str("addr", addr).Msg("starting metrics server")
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()
}
