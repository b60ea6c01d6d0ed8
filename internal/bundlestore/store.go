package bundlestore

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/base/tips/internal/bundle"
	"github.com/base/tips/internal/eventlog"
	"github.com/base/tips/internal/lifecycle"
	tipslog "github.com/base/tips/internal/log"
	"github.com/base/tips/internal/metrics"
	"github.com/base/tips/internal/tipstypes"
)

// EventSource is the narrow seam onto an eventlog.Consumer, letting
// tests drive Store.Run against a fake source instead of a broker.
type EventSource interface {
	Poll(ctx context.Context) ([]eventlog.Record, error)
	CommitRecords(ctx context.Context, records ...eventlog.Record) error
}

// Store is the single-writer/many-reader live catalog described by
// spec §4.3: an ingress consumer drives Created/Updated/Cancelled
// transitions, a builder consumer drives IncludedByBuilder.
type Store struct {
	catalog     *Catalog
	ingress     EventSource
	builder     EventSource
	gracePeriod time.Duration
	signer      types.Signer
	log         zerolog.Logger
}

func NewStore(catalog *Catalog, ingress, builder EventSource, chainID uint64, gracePeriod time.Duration) *Store {
	if gracePeriod <= 0 {
		gracePeriod = 30 * time.Second
	}
	return &Store{
		catalog:     catalog,
		ingress:     ingress,
		builder:     builder,
		gracePeriod: gracePeriod,
		signer:      types.LatestSignerForChainID(new(big.Int).SetUint64(chainID)),
		log:         tipslog.NewLogger("bundlestore"),
	}
}

// decodeBundle recovers a Bundle from its wire form, re-deriving each
// tx's sender from the signature rather than trusting the wire, the
// same decode path Ingress uses on admission.
func (s *Store) decodeBundle(data []byte) (*bundle.Bundle, error) {
	return bundle.FromJSON(data, s.signer)
}

// Run drives both consume loops until ctx is cancelled, mirroring the
// teacher's orchestrator.Poller shape (poll, apply, commit) doubled
// over the two source topics §4.3 names.
func (s *Store) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		errCh <- s.runIngressLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		errCh <- s.runBuilderLoop(ctx)
	}()

	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil && ctx.Err() == nil {
			return err
		}
	}
	return nil
}

func (s *Store) runIngressLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		records, err := s.ingress.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn().Err(err).Msg("ingress poll failed, retrying with committed offset intact")
			continue
		}

		applied := make([]eventlog.Record, 0, len(records))
		for _, rec := range records {
			ev, err := lifecycle.UnmarshalBundleEvent(rec.Value, s.decodeBundle)
			if err != nil {
				s.log.Warn().Err(err).Msg("poison ingress event, skipped")
				metrics.BundleStoreEventsDropped.WithLabelValues("poison").Inc()
				applied = append(applied, rec)
				continue
			}
			s.applyIngressEvent(ev)
			applied = append(applied, rec)
		}

		if err := s.ingress.CommitRecords(ctx, applied...); err != nil {
			s.log.Warn().Err(err).Msg("ingress commit failed")
		}
	}
}

func (s *Store) runBuilderLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		records, err := s.builder.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn().Err(err).Msg("builder poll failed, retrying with committed offset intact")
			continue
		}

		applied := make([]eventlog.Record, 0, len(records))
		for _, rec := range records {
			ev, err := lifecycle.UnmarshalBundleEvent(rec.Value, s.decodeBundle)
			if err != nil {
				s.log.Warn().Err(err).Msg("poison builder event, skipped")
				metrics.BundleStoreEventsDropped.WithLabelValues("poison").Inc()
				applied = append(applied, rec)
				continue
			}
			s.applyBuilderEvent(ev)
			applied = append(applied, rec)
		}

		if err := s.builder.CommitRecords(ctx, applied...); err != nil {
			s.log.Warn().Err(err).Msg("builder commit failed")
		}
	}
}

// applyIngressEvent implements spec §4.3's exact branching over the
// ingress stream. Semantic mismatches are never surfaced as fatal, per
// §4.3/§7's best-effort contract: an Updated against an unknown uuid is
// logged at Debug and dropped, a Cancelled against one is a silent
// no-op.
func (s *Store) applyIngressEvent(ev *lifecycle.BundleEvent) {
	switch ev.Type {
	case lifecycle.BundleCreated:
		if ev.Bundle == nil {
			return
		}
		s.catalog.ApplyCreated(ev.Bundle)
		metrics.BundleStoreEventsApplied.WithLabelValues(string(ev.Type)).Inc()
	case lifecycle.BundleUpdated:
		if ev.Bundle == nil {
			return
		}
		id := ev.Bundle.UUID
		if !s.catalog.ApplyUpdated(id, ev.Bundle) {
			s.log.Debug().Str("uuid", id.String()).Msg("update against unknown uuid, dropped")
			metrics.BundleStoreEventsDropped.WithLabelValues("unknown_uuid").Inc()
			return
		}
		metrics.BundleStoreEventsApplied.WithLabelValues(string(ev.Type)).Inc()
	case lifecycle.BundleCancelled:
		s.catalog.ApplyCancelled(ev.BundleUUID)
		metrics.BundleStoreEventsApplied.WithLabelValues(string(ev.Type)).Inc()
	default:
		// IncludedByBuilder/IncludedInBlock/Dropped are handled off the
		// builder stream in applyBuilderEvent.
		return
	}
	metrics.BundleStoreLiveBundles.Set(float64(s.catalog.Len()))
}

func (s *Store) applyBuilderEvent(ev *lifecycle.BundleEvent) {
	if ev.Type != lifecycle.BundleIncludedByBuilder {
		return
	}
	if !s.catalog.ApplyIncludedByBuilder(ev.BundleUUID, s.gracePeriod) {
		s.log.Debug().Str("uuid", ev.BundleUUID.String()).Msg("includedByBuilder against unknown uuid, dropped")
		metrics.BundleStoreEventsDropped.WithLabelValues("unknown_uuid").Inc()
		return
	}
	metrics.BundleStoreEventsApplied.WithLabelValues(string(ev.Type)).Inc()
	metrics.BundleStoreLiveBundles.Set(float64(s.catalog.Len()))
}

// ListReady returns a snapshot of Ready entries, the builder's read
// contract (§4.3's listReady).
func (s *Store) ListReady() []bundle.Bundle {
	snapshot := s.catalog.Snapshot()
	ready := snapshot[:0]
	for _, b := range snapshot {
		if b.State == bundle.StateReady {
			ready = append(ready, b)
		}
	}
	return ready
}

// Get returns the current entry for id, the builder's point lookup
// (§4.3's get(uuid)).
func (s *Store) Get(id uuid.UUID) (*bundle.Bundle, bool) {
	return s.catalog.Get(id)
}

// GetByHash returns the uuid of the live entry with this bundleHash,
// if any.
func (s *Store) GetByHash(hash tipstypes.Hash) (uuid.UUID, bool) {
	return s.catalog.GetByHash(hash)
}
