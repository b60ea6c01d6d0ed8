package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/base/tips/internal/bundle"
	"github.com/base/tips/internal/eventlog"
	"github.com/base/tips/internal/lifecycle"
	"github.com/base/tips/internal/metrics"
	"github.com/base/tips/internal/tipstypes"
	"github.com/base/tips/internal/useropbundler"
)

// EthAPI is the JSON-RPC receiver registered under the "eth" namespace
// (spec §4.2), argument/return shapes named after
// flashbots-op-geth/internal/ethapi/bundle_api.go's SendBundleArgs.
type EthAPI struct {
	server *Server
}

// SendBundleArgs mirrors flashbots-op-geth's shape, extended with
// ReplacementUuid per spec §3.
type SendBundleArgs struct {
	Txs               []hexutil.Bytes `json:"txs"`
	BlockNumber       uint64          `json:"blockNumber"`
	MinTimestamp      *uint64         `json:"minTimestamp"`
	MaxTimestamp      *uint64         `json:"maxTimestamp"`
	RevertingTxHashes []common.Hash   `json:"revertingTxHashes"`
	DroppingTxHashes  []common.Hash   `json:"droppingTxHashes"`
	RefundPercent     *int            `json:"refundPercent"`
	RefundRecipient   *common.Address `json:"refundRecipient"`
	ReplacementUuid   *uuid.UUID      `json:"replacementUuid"`
}

type SendBundleResult struct {
	UUID uuid.UUID `json:"uuid"`
}

// SendRawTransaction decodes a signed tx, wraps it as a single-tx
// bundle, and admits it (spec §4.2's eth_sendRawTransaction row).
func (a *EthAPI) SendRawTransaction(ctx context.Context, raw hexutil.Bytes) (common.Hash, error) {
	signer := types.LatestSignerForChainID(chainIDBig(a.server.cfg.ChainID))
	tx, err := bundle.DecodeTx(raw, signer)
	if err != nil {
		metrics.IngressRejectedBundles.WithLabelValues("DecodingError").Inc()
		return common.Hash{}, clientError("DecodingError", err)
	}

	b := bundle.WrapRawTx(tx)
	if err := bundle.Validate(b, a.server.cfg.ChainID, false); err != nil {
		metrics.IngressRejectedBundles.WithLabelValues(validationKind(err)).Inc()
		return common.Hash{}, clientError(validationKind(err), err)
	}

	b.UUID = uuid.New()
	now := time.Now().UnixMilli()
	b.CreatedAt, b.UpdatedAt = now, now

	if err := a.publishCreated(ctx, b); err != nil {
		return common.Hash{}, serverError("BrokerUnreachable", err)
	}
	metrics.IngressAdmittedBundles.Inc()
	return tx.Hash, nil
}

// SendBundle admits a multi-tx bundle as an Updated event when
// ReplacementUuid is set or the Bundle Store already holds a bundle
// with the same bundleHash, and as a fresh Created event otherwise
// (spec §4.2).
func (a *EthAPI) SendBundle(ctx context.Context, args SendBundleArgs) (*SendBundleResult, error) {
	hasUnsupported := len(args.DroppingTxHashes) > 0 || args.RefundPercent != nil || args.RefundRecipient != nil

	signer := types.LatestSignerForChainID(chainIDBig(a.server.cfg.ChainID))
	txs := make([]bundle.Tx, len(args.Txs))
	for i, raw := range args.Txs {
		tx, err := bundle.DecodeTx(raw, signer)
		if err != nil {
			metrics.IngressRejectedBundles.WithLabelValues("DecodingError").Inc()
			return nil, clientError("DecodingError", err)
		}
		txs[i] = tx
	}

	reverting := tipstypes.NewSet[tipstypes.Hash]()
	for _, h := range args.RevertingTxHashes {
		reverting.Add(h)
	}

	b := &bundle.Bundle{
		Txs:               txs,
		BlockNumber:       args.BlockNumber,
		RevertingTxHashes: reverting,
		State:             bundle.StateReady,
	}
	if args.MinTimestamp != nil {
		b.MinTimestamp = *args.MinTimestamp
	}
	if args.MaxTimestamp != nil {
		b.MaxTimestamp = *args.MaxTimestamp
	}

	if err := bundle.Validate(b, a.server.cfg.ChainID, hasUnsupported); err != nil {
		metrics.IngressRejectedBundles.WithLabelValues(validationKind(err)).Inc()
		return nil, clientError(validationKind(err), err)
	}

	b.BundleHash = bundle.Hash(txs)
	now := time.Now().UnixMilli()
	b.UpdatedAt = now

	var evType lifecycle.BundleEventType
	switch {
	case args.ReplacementUuid != nil:
		b.UUID = *args.ReplacementUuid
		evType = lifecycle.BundleUpdated
	default:
		if existing, ok := a.existingBundleID(ctx, b.BundleHash); ok {
			b.UUID = existing
			evType = lifecycle.BundleUpdated
		} else {
			b.UUID = uuid.New()
			b.CreatedAt = now
			evType = lifecycle.BundleCreated
		}
	}

	if err := a.publish(ctx, evType, b); err != nil {
		return nil, serverError("BrokerUnreachable", err)
	}
	metrics.IngressAdmittedBundles.Inc()
	return &SendBundleResult{UUID: b.UUID}, nil
}

// existingBundleID consults the Bundle Store's bundleHash->uuid index
// so a Created submission with no replacementUuid merges into any
// existing live bundle with the same bundleHash, per spec §4.2's
// "Without replacementUuid: merge into any existing bundle with the
// same bundleHash" rule. A nil lookup (no Bundle Store wired) or a
// lookup failure both fall through to minting a fresh uuid, matching
// the ingress/bundle store best-effort contract elsewhere in §4.2/§7.
func (a *EthAPI) existingBundleID(ctx context.Context, hash tipstypes.Hash) (uuid.UUID, bool) {
	if a.server.bundleLookup == nil {
		return uuid.Nil, false
	}
	id, found, err := a.server.bundleLookup.GetBundleByHash(ctx, hash)
	if err != nil {
		a.server.log.Warn().Err(err).Str("bundleHash", hash.Hex()).Msg("bundle hash lookup failed, minting fresh uuid")
		return uuid.Nil, false
	}
	return id, found
}

// CancelBundle publishes a best-effort Cancelled event; it always
// succeeds once published (spec §4.2/§7).
func (a *EthAPI) CancelBundle(ctx context.Context, id uuid.UUID) error {
	ev := &lifecycle.BundleEvent{
		Type:       lifecycle.BundleCancelled,
		Timestamp:  time.Now().UnixMilli(),
		Key:        lifecycle.EventKey(id.String(), a.server.keys.Next(id.String())),
		BundleUUID: id,
		Nonce:      &lifecycle.NonceRef{},
	}
	data, err := ev.MarshalJSON()
	if err != nil {
		return serverError("BrokerUnreachable", err)
	}
	if err := a.server.producer.Publish(ctx, eventlog.TopicIngressBundles, []byte(id.String()), data); err != nil {
		return serverError("BrokerUnreachable", err)
	}
	return nil
}

// SendUserOperation validates against the entry-point whitelist, calls
// the simulation collaborator, and on success publishes to the UserOp
// topic (spec §4.2).
func (a *EthAPI) SendUserOperation(ctx context.Context, opData json.RawMessage, entryPoint common.Address) (common.Hash, error) {
	if !a.entryPointSupported(entryPoint) {
		return common.Hash{}, clientError("EntryPointNotSupported", bundle.ErrEntryPointNotSupported)
	}

	op, err := useropbundler.DecodeUserOperation(opData)
	if err != nil {
		return common.Hash{}, clientError("DecodingError", err)
	}
	op.Hash = op.ComputeHash(entryPoint, a.server.cfg.ChainID)

	simCtx, cancel := context.WithTimeout(ctx, a.server.cfg.ValidateUserOperationTimeout)
	defer cancel()

	start := time.Now()
	_, err = a.server.sim.ValidateUserOperation(simCtx, op, entryPoint)
	metrics.IngressSimulationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.IngressUserOpsRejected.WithLabelValues(simulationKind(err)).Inc()
		if simCtx.Err() != nil {
			return common.Hash{}, serverError("Timeout", ErrSimulationTimeout)
		}
		return common.Hash{}, serverError(simulationKind(err), err)
	}

	ev := &lifecycle.UserOpEvent{
		Type:       lifecycle.UserOpAddedToMempool,
		Timestamp:  time.Now().UnixMilli(),
		Key:        lifecycle.EventKey(op.Hash.Hex(), a.server.keys.Next(op.Hash.Hex())),
		UserOpHash: op.Hash,
		EntryPoint: entryPoint,
		Sender:     op.Sender,
		Nonce:      op.Nonce.Uint64(),
	}
	payload, err := ev.MarshalJSON()
	if err != nil {
		return common.Hash{}, serverError("BrokerUnreachable", err)
	}
	if err := a.server.producer.Publish(ctx, eventlog.TopicUserOperations, op.Hash[:], payload); err != nil {
		return common.Hash{}, serverError("BrokerUnreachable", err)
	}

	metrics.IngressUserOpsAdmitted.Inc()
	if a.server.useropSvc != nil {
		a.server.useropSvc.Batcher().Add(entryPoint, op)
	}
	return op.Hash, nil
}

// SupportedEntryPoints returns the configured whitelist.
func (a *EthAPI) SupportedEntryPoints(ctx context.Context) []common.Address {
	return a.server.cfg.EntryPoints
}

func (a *EthAPI) entryPointSupported(addr common.Address) bool {
	for _, ep := range a.server.cfg.EntryPoints {
		if ep == addr {
			return true
		}
	}
	return false
}

func (a *EthAPI) publishCreated(ctx context.Context, b *bundle.Bundle) error {
	return a.publish(ctx, lifecycle.BundleCreated, b)
}

func (a *EthAPI) publish(ctx context.Context, evType lifecycle.BundleEventType, b *bundle.Bundle) error {
	ev := &lifecycle.BundleEvent{
		Type:       evType,
		Timestamp:  time.Now().UnixMilli(),
		Key:        lifecycle.EventKey(b.UUID.String(), a.server.keys.Next(b.UUID.String())),
		BundleUUID: b.UUID,
		Bundle:     b,
	}
	data, err := ev.MarshalJSON()
	if err != nil {
		return err
	}
	start := time.Now()
	err = a.server.producer.Publish(ctx, eventlog.TopicIngressBundles, []byte(b.UUID.String()), data)
	metrics.IngressPublishDuration.Observe(time.Since(start).Seconds())
	return err
}

func chainIDBig(chainID uint64) *big.Int {
	return new(big.Int).SetUint64(chainID)
}

// validationKind maps a bundle validation sentinel to its logical
// error-kind string (spec §7).
func validationKind(err error) string {
	switch {
	case errors.Is(err, bundle.ErrTooManyTransactions):
		return "TooManyTransactions"
	case errors.Is(err, bundle.ErrGasLimitExceeded):
		return "GasLimitExceeded"
	case errors.Is(err, bundle.ErrUnsupportedFieldSet):
		return "UnsupportedFieldSet"
	case errors.Is(err, bundle.ErrRevertingHashesMismatch):
		return "RevertingHashesMismatch"
	case errors.Is(err, bundle.ErrWrongChainID):
		return "WrongChainId"
	default:
		return "DecodingError"
	}
}

func simulationKind(err error) string {
	switch {
	case errors.Is(err, ErrSimulationTimeout):
		return "Timeout"
	case errors.Is(err, ErrSimulationUnreachable):
		return "CollaboratorUnreachable"
	default:
		return "Invalid"
	}
}
