package useropbundler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/base/tips/internal/eventlog"
	"github.com/base/tips/internal/lifecycle"
	tipslog "github.com/base/tips/internal/log"
	"github.com/base/tips/internal/tipstypes"
)

// Publisher is the narrow seam onto an eventlog.Producer, letting
// tests drive Service against a fake instead of a broker.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Service wires a Batcher's drop callback onto the shared builder
// event stream, publishing the Dropped events spec §4.5's failure
// semantics call for. AddedToMempool is published by ingress at
// submission time (spec §4.2); Included is confirmed later, once the
// enshrined transaction's containing block is known, via
// ConfirmIncluded.
type Service struct {
	batcher   *Batcher
	publisher Publisher
	keys      *lifecycle.KeySequencer
	log       zerolog.Logger
}

// NewService builds a Service and the Batcher it drives.
func NewService(batchSize int, batchTimeout time.Duration, beneficiary tipstypes.Address, simulate SimulateFunc, onFlush func(tipstypes.Address, *BundlerTx), publisher Publisher) *Service {
	s := &Service{
		publisher: publisher,
		keys:      lifecycle.NewKeySequencer(),
		log:       tipslog.NewLogger("useropbundler"),
	}
	s.batcher = NewBatcher(batchSize, batchTimeout, beneficiary, simulate, onFlush)
	s.batcher.WithDropHandler(s.publishDropped)
	return s
}

// Batcher exposes the underlying Batcher so callers can feed
// submissions in via Add.
func (s *Service) Batcher() *Batcher { return s.batcher }

func (s *Service) publishDropped(entryPoint tipstypes.Address, op *UserOperation) {
	ev := &lifecycle.UserOpEvent{
		Type:       lifecycle.UserOpDropped,
		Timestamp:  time.Now().UnixMilli(),
		Key:        lifecycle.EventKey(op.Hash.Hex(), s.keys.Next(op.Hash.Hex())),
		UserOpHash: op.Hash,
		EntryPoint: entryPoint,
		Dropped: &lifecycle.UserOpDropReason{
			Tag:    lifecycle.UserOpDropInvalid,
			Reason: "simulation would revert at flush time",
		},
	}
	s.publish(ev)
}

// ConfirmIncluded publishes an Included event for each op once the
// builder or audit reconciliation reports the enshrined handleOps
// transaction landed on chain, at blockNumber with hash txHash.
func (s *Service) ConfirmIncluded(entryPoint tipstypes.Address, ops []*UserOperation, blockNumber uint64, txHash tipstypes.Hash) {
	for _, op := range ops {
		ev := &lifecycle.UserOpEvent{
			Type:       lifecycle.UserOpIncluded,
			Timestamp:  time.Now().UnixMilli(),
			Key:        lifecycle.EventKey(op.Hash.Hex(), s.keys.Next(op.Hash.Hex())),
			UserOpHash: op.Hash,
			EntryPoint: entryPoint,
			Included:   &lifecycle.UserOpIncludedData{BlockNumber: blockNumber, TxHash: txHash},
		}
		s.publish(ev)
	}
}

func (s *Service) publish(ev *lifecycle.UserOpEvent) {
	data, err := ev.MarshalJSON()
	if err != nil {
		s.log.Warn().Err(err).Str("userOpHash", ev.UserOpHash.Hex()).Msg("failed to encode userop event")
		return
	}
	if err := s.publisher.Publish(context.Background(), eventlog.TopicBuilderEvents, ev.UserOpHash[:], data); err != nil {
		s.log.Warn().Err(err).Str("userOpHash", ev.UserOpHash.Hex()).Msg("failed to publish userop event")
	}
}
