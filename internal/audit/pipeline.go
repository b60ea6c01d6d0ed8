// Package audit merges the ingress, userop, and builder event streams
// into one durably-archived, per-entity history and a reverse
// transaction index, grounded on internal/committer.go's dual-source
// merge pattern and internal/storage/orchestrator's bounded LRU
// history cache.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/base/tips/internal/bundle"
	"github.com/base/tips/internal/eventlog"
	"github.com/base/tips/internal/lifecycle"
	tipslog "github.com/base/tips/internal/log"
	"github.com/base/tips/internal/metrics"
	"github.com/base/tips/internal/objectstore"
)

// EventSource is the narrow seam onto an eventlog.Consumer, letting
// tests drive Pipeline.Run against fakes instead of a broker.
type EventSource interface {
	Poll(ctx context.Context) ([]eventlog.Record, error)
	CommitRecords(ctx context.Context, records ...eventlog.Record) error
}

// Pipeline is the single-writer merge of the ingress consumer (bundle
// and userop topics) and the builder consumer (builder-originated
// bundle and userop events) into archived per-entity histories.
type Pipeline struct {
	ingress EventSource
	builder EventSource
	store   objectstore.Client
	cache   *lru.Cache[string, *History]
	txIndex *TxIndex
	signer  types.Signer
	log     zerolog.Logger
}

func NewPipeline(ingress, builder EventSource, store objectstore.Client, chainID uint64, historyCacheSize int) (*Pipeline, error) {
	if historyCacheSize <= 0 {
		historyCacheSize = 10000
	}
	cache, err := lru.New[string, *History](historyCacheSize)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		ingress: ingress,
		builder: builder,
		store:   store,
		cache:   cache,
		txIndex: NewTxIndex(store),
		signer:  types.LatestSignerForChainID(new(big.Int).SetUint64(chainID)),
		log:     tipslog.NewLogger("audit"),
	}, nil
}

func (p *Pipeline) decodeBundle(data []byte) (*bundle.Bundle, error) {
	return bundle.FromJSON(data, p.signer)
}

type polledBatch struct {
	src     EventSource
	records []eventlog.Record
}

// Run merges both consumers with a select over two Poll goroutines
// feeding a shared channel; no ordering is assumed across partitions,
// only recovered per-entity via timestamp sort in applyEvent.
func (p *Pipeline) Run(ctx context.Context) error {
	ch := make(chan polledBatch)
	var wg sync.WaitGroup

	poll := func(name string, src EventSource) {
		defer wg.Done()
		for {
			if ctx.Err() != nil {
				return
			}
			records, err := src.Poll(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				p.log.Warn().Err(err).Str("source", name).Msg("audit poll failed, retrying")
				continue
			}
			if len(records) == 0 {
				continue
			}
			select {
			case ch <- polledBatch{src: src, records: records}:
			case <-ctx.Done():
				return
			}
		}
	}

	wg.Add(2)
	go poll("ingress", p.ingress)
	go poll("builder", p.builder)
	go func() {
		wg.Wait()
		close(ch)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-ch:
			if !ok {
				return nil
			}
			p.applyBatch(ctx, batch)
		}
	}
}

func (p *Pipeline) applyBatch(ctx context.Context, batch polledBatch) {
	applied := make([]eventlog.Record, 0, len(batch.records))
	for _, rec := range batch.records {
		ev, err := decodeEvent(rec.Topic, rec.Value, p.decodeBundle)
		if err != nil {
			p.log.Warn().Err(err).Str("topic", rec.Topic).Msg("poison audit event, skipped")
			applied = append(applied, rec)
			continue
		}
		if err := p.applyEvent(ctx, ev); err != nil {
			p.log.Warn().Err(err).Str("key", ev.EventKey()).Msg("apply event failed, offset withheld for retry")
			continue
		}
		applied = append(applied, rec)
	}
	if err := batch.src.CommitRecords(ctx, applied...); err != nil {
		p.log.Warn().Err(err).Msg("audit commit failed")
	}
}

// applyEvent implements the load-or-cache, append-iff-new-key,
// stable-sort-by-timestamp, write-back sequence spec §4.4 describes,
// committing the source offset only after this succeeds.
func (p *Pipeline) applyEvent(ctx context.Context, ev lifecycle.Event) error {
	key, err := historyKey(ev)
	if err != nil {
		return err
	}

	hist, err := p.loadHistory(ctx, key)
	if err != nil {
		return err
	}

	if hist.hasKey(ev.EventKey()) {
		metrics.AuditEventsDeduped.Inc()
		return nil
	}

	hist.Events = append(hist.Events, ev)
	sort.SliceStable(hist.Events, func(i, j int) bool {
		return hist.Events[i].EventTimestamp() < hist.Events[j].EventTimestamp()
	})

	start := time.Now()
	err = p.saveHistory(ctx, key, hist)
	metrics.AuditObjectStoreWriteDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}
	p.cache.Add(key, hist)
	metrics.AuditEventsMerged.Inc()

	if be, ok := ev.(*lifecycle.BundleEvent); ok && be.Bundle != nil {
		if err := p.txIndex.Record(ctx, be.Bundle.TxHashes(), be.BundleUUID); err != nil {
			p.log.Warn().Err(err).Str("uuid", be.BundleUUID.String()).Msg("tx index update failed")
		}
	}
	return nil
}

func (p *Pipeline) loadHistory(ctx context.Context, key string) (*History, error) {
	if cached, ok := p.cache.Get(key); ok {
		return cached, nil
	}
	data, err := getWithRetry(ctx, p.store, key)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return &History{}, nil
		}
		return nil, err
	}
	return decodeHistory(data, p.decodeBundle)
}

func (p *Pipeline) saveHistory(ctx context.Context, key string, h *History) error {
	data, err := json.Marshal(h)
	if err != nil {
		return err
	}
	return putWithRetry(ctx, p.store, key, data)
}

// History returns the archived history for a bundle or userop entity
// id, reading through the cache. Used by external tooling (a future
// debug UI) and by tests to verify what the pipeline wrote.
func (p *Pipeline) History(ctx context.Context, key string) (*History, error) {
	return p.loadHistory(ctx, key)
}

// TxIndex exposes the reverse transaction-hash index for read access.
func (p *Pipeline) TxIndex() *TxIndex {
	return p.txIndex
}
