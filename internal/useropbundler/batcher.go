package useropbundler

import (
	"sync"
	"time"

	"github.com/base/tips/internal/metrics"
	"github.com/base/tips/internal/tipstypes"
)

const (
	DefaultBatchSize      = 100
	DefaultBatchTimeoutMs = 1000
)

// SimulateFunc reports whether op would still succeed if included now;
// the Batcher drops ops that fail this check before assembling
// handleOps calldata (spec §4.5's "a UO whose simulation would now
// revert is dropped from the batch").
type SimulateFunc func(op *UserOperation, entryPoint tipstypes.Address) bool

// BundlerTx is the enshrined handleOps transaction plus its audit
// identity (spec §4.5).
type BundlerTx struct {
	EntryPoint  tipstypes.Address
	Beneficiary tipstypes.Address
	Ops         []*UserOperation
	Calldata    []byte
	Hash        tipstypes.Hash
}

// batch accumulates UOs for a single entry point, mirroring the
// teacher's timer-or-size flush shape in internal/storage/s3.go's
// S3Connector (flushTimer + size check on Add).
type batch struct {
	ops        []*UserOperation
	timer      *time.Timer
	timerFired bool
}

// Batcher groups validated UserOperations per entry point and flushes
// a BundlerTx when a size or time threshold is reached (spec §4.5).
type Batcher struct {
	mu          sync.Mutex
	batches     map[tipstypes.Address]*batch
	batchSize   int
	batchTimeout time.Duration
	beneficiary tipstypes.Address
	simulate    SimulateFunc
	reputation  ReputationTracker
	onFlush     func(entryPoint tipstypes.Address, tx *BundlerTx)
	onDrop      func(entryPoint tipstypes.Address, op *UserOperation)
}

// NewBatcher builds a Batcher; onFlush is called synchronously from
// whichever goroutine triggers the flush (Add on size threshold, or
// the batch's own timer on timeout).
func NewBatcher(batchSize int, batchTimeout time.Duration, beneficiary tipstypes.Address, simulate SimulateFunc, onFlush func(tipstypes.Address, *BundlerTx)) *Batcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchTimeout <= 0 {
		batchTimeout = DefaultBatchTimeoutMs * time.Millisecond
	}
	return &Batcher{
		batches:      make(map[tipstypes.Address]*batch),
		batchSize:    batchSize,
		batchTimeout: batchTimeout,
		beneficiary:  beneficiary,
		simulate:     simulate,
		reputation:   NoopReputationTracker{},
		onFlush:      onFlush,
	}
}

// WithReputationTracker overrides the default no-op tracker.
func (b *Batcher) WithReputationTracker(rt ReputationTracker) *Batcher {
	b.reputation = rt
	return b
}

// WithDropHandler registers a callback invoked, synchronously from
// flush, for each UO filtered out because its simulation would now
// revert (spec §4.5's failure semantics).
func (b *Batcher) WithDropHandler(onDrop func(entryPoint tipstypes.Address, op *UserOperation)) *Batcher {
	b.onDrop = onDrop
	return b
}

// Add enqueues op under entryPoint, flushing immediately if the batch
// has reached batchSize.
func (b *Batcher) Add(entryPoint tipstypes.Address, op *UserOperation) {
	if !b.reputation.Allow(op.Paymaster) {
		return
	}

	b.mu.Lock()
	bt, ok := b.batches[entryPoint]
	if !ok {
		bt = &batch{}
		b.batches[entryPoint] = bt
		cur := bt
		bt.timer = time.AfterFunc(b.batchTimeout, func() {
			b.mu.Lock()
			cur.timerFired = true
			b.mu.Unlock()
			b.flush(entryPoint)
		})
	}
	bt.ops = append(bt.ops, op)
	shouldFlush := len(bt.ops) >= b.batchSize
	b.mu.Unlock()

	if shouldFlush {
		b.flush(entryPoint)
	}
}

// flush builds and emits a BundlerTx for entryPoint's current batch,
// filtering out ops that would now revert (§4.5). A batch with zero
// survivors produces no transaction.
func (b *Batcher) flush(entryPoint tipstypes.Address) {
	b.mu.Lock()
	bt, ok := b.batches[entryPoint]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.batches, entryPoint)
	b.mu.Unlock()

	if bt.timer != nil {
		bt.timer.Stop()
	}
	if len(bt.ops) == 0 {
		return
	}

	survivors := bt.ops[:0:0]
	for _, op := range bt.ops {
		if b.simulate == nil || b.simulate(op, entryPoint) {
			survivors = append(survivors, op)
			continue
		}
		metrics.UserOpBundlerOpsDroppedOnSimulation.Inc()
		if b.onDrop != nil {
			b.onDrop(entryPoint, op)
		}
	}
	if len(survivors) == 0 {
		return
	}

	tx, err := buildBundlerTx(entryPoint, b.beneficiary, survivors)
	if err != nil {
		return
	}
	metrics.UserOpBundlerBatchesFlushed.WithLabelValues(flushTrigger(bt)).Inc()
	metrics.UserOpBundlerBatchSize.Observe(float64(len(survivors)))
	if b.onFlush != nil {
		b.onFlush(entryPoint, tx)
	}
}

// flushTrigger labels why a batch flushed for the batches-flushed
// counter: "size" if it reached batchSize before its timer fired,
// "timeout" otherwise. Called after the timer has already been
// stopped, so this only inspects whether the timer already fired.
func flushTrigger(bt *batch) string {
	if len(bt.ops) >= 1 && bt.timerFired {
		return "timeout"
	}
	return "size"
}

func buildBundlerTx(entryPoint, beneficiary tipstypes.Address, ops []*UserOperation) (*BundlerTx, error) {
	packed := make([]PackedUserOperation, len(ops))
	for i, op := range ops {
		packed[i] = PackV07(op)
	}

	calldata, err := EncodeHandleOps(packed, beneficiary)
	if err != nil {
		return nil, err
	}

	opHashes := make([][]byte, 0, len(ops)+2)
	for _, op := range ops {
		opHashes = append(opHashes, op.Hash[:])
	}
	bundlerTxHash := tipstypes.Keccak256(calldata)
	opHashes = append(opHashes, bundlerTxHash[:], beneficiary[:])
	auditHash := tipstypes.Keccak256(opHashes...)

	return &BundlerTx{
		EntryPoint:  entryPoint,
		Beneficiary: beneficiary,
		Ops:         ops,
		Calldata:    calldata,
		Hash:        auditHash,
	}, nil
}

// InsertionIndex implements the ±1-window midpoint rule (P5): the
// bundler transaction's index for a block with finalN transactions is
// floor(finalN/2); ties resolve to the lower index.
func InsertionIndex(finalN int) int {
	return finalN / 2
}
