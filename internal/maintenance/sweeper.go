// Package maintenance sweeps the Bundle Store's live catalog, dropping
// entries that have timed out or that exceed the per-account or global
// mempool caps, grounded on the teacher's
// internal/orchestrator/failure_recoverer.go periodic-ticker-sweep
// pattern, redirected from "recover missed RPC blocks" to "sweep the
// live catalog" (spec §4.6).
package maintenance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/base/tips/internal/bundle"
	"github.com/base/tips/internal/bundlestore"
	"github.com/base/tips/internal/eventlog"
	"github.com/base/tips/internal/lifecycle"
	tipslog "github.com/base/tips/internal/log"
	"github.com/base/tips/internal/metrics"
)

// Publisher is the narrow seam onto an eventlog.Producer, letting
// tests drive Sweeper against a fake instead of a broker.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Config bounds each of the three sweep rules spec §4.6 names.
type Config struct {
	Interval      time.Duration
	Timeout       time.Duration
	PerAccountCap int
	GlobalCap     int
}

// Sweeper is stateless across ticks beyond the KeySequencer needed to
// mint well-formed event keys; multiple Sweepers may run concurrently
// per spec §4.6, correctness relying on Catalog.Drop being a no-op
// once an entry is already gone.
type Sweeper struct {
	catalog   *bundlestore.Catalog
	publisher Publisher
	cfg       Config
	keys      *lifecycle.KeySequencer
	log       zerolog.Logger
}

func NewSweeper(catalog *bundlestore.Catalog, publisher Publisher, cfg Config) *Sweeper {
	return &Sweeper{
		catalog:   catalog,
		publisher: publisher,
		cfg:       cfg,
		keys:      lifecycle.NewKeySequencer(),
		log:       tipslog.NewLogger("maintenance"),
	}
}

// Run ticks at cfg.Interval, sweeping once per tick, until ctx is
// cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep applies the three rules of §4.6 in order against a single
// snapshot taken atomically at the start of the tick: timeout, then
// per-account cap (drop by descending nonce), then global cap (age +
// low-effective-base-fee composite key). Each drop is an idempotent
// compare-and-drop; a bundle already removed by another Sweeper or by
// the Bundle Store's own Cancelled handling is silently skipped.
func (s *Sweeper) Sweep(ctx context.Context) {
	start := time.Now()
	defer func() {
		metrics.MaintenanceSweepDuration.Observe(time.Since(start).Seconds())
	}()

	snapshot := s.catalog.Snapshot()
	now := time.Now()

	alive := make([]bundle.Bundle, 0, len(snapshot))
	for _, b := range snapshot {
		if isTimedOut(b, now, s.cfg.Timeout) {
			s.drop(ctx, b, lifecycle.DropTimeout)
			continue
		}
		alive = append(alive, b)
	}

	alive = s.sweepPerAccountCap(ctx, alive)
	s.sweepGlobalCap(ctx, alive)
}

func (s *Sweeper) sweepPerAccountCap(ctx context.Context, alive []bundle.Bundle) []bundle.Bundle {
	if s.cfg.PerAccountCap <= 0 {
		return alive
	}

	byAccount := groupBySender(alive)
	dropped := make(map[uuid.UUID]struct{})
	for _, entries := range byAccount {
		if len(entries) <= s.cfg.PerAccountCap {
			continue
		}
		sortByNonceDescending(entries)
		for _, b := range entries[:len(entries)-s.cfg.PerAccountCap] {
			s.drop(ctx, b, lifecycle.DropPerAccountCapExceeded)
			dropped[b.UUID] = struct{}{}
		}
	}
	if len(dropped) == 0 {
		return alive
	}
	remaining := alive[:0]
	for _, b := range alive {
		if _, ok := dropped[b.UUID]; !ok {
			remaining = append(remaining, b)
		}
	}
	return remaining
}

func (s *Sweeper) sweepGlobalCap(ctx context.Context, alive []bundle.Bundle) {
	if s.cfg.GlobalCap <= 0 || len(alive) <= s.cfg.GlobalCap {
		return
	}
	sortByDropPriorityDescending(alive)
	for _, b := range alive[:len(alive)-s.cfg.GlobalCap] {
		s.drop(ctx, b, lifecycle.DropGlobalCapExceeded)
	}
}

func (s *Sweeper) drop(ctx context.Context, b bundle.Bundle, reason lifecycle.DropReason) {
	if _, ok := s.catalog.Get(b.UUID); !ok {
		return
	}
	ev := &lifecycle.BundleEvent{
		Type:       lifecycle.BundleDropped,
		Timestamp:  time.Now().UnixMilli(),
		Key:        lifecycle.EventKey(b.UUID.String(), s.keys.Next(b.UUID.String())),
		BundleUUID: b.UUID,
		Dropped:    &lifecycle.DroppedData{Reason: reason},
	}
	data, err := ev.MarshalJSON()
	if err != nil {
		s.log.Warn().Err(err).Str("uuid", b.UUID.String()).Msg("failed to encode dropped event")
		return
	}
	if err := s.publisher.Publish(ctx, eventlog.TopicBuilderEvents, []byte(b.UUID.String()), data); err != nil {
		s.log.Warn().Err(err).Str("uuid", b.UUID.String()).Msg("failed to publish dropped event, will retry next sweep")
		return
	}
	s.catalog.Drop(b.UUID)
	metrics.MaintenanceDroppedBundles.WithLabelValues(string(reason)).Inc()
}
