// Package bundle defines the canonical Bundle representation TIPS
// admits, stores, and audits: identifiers, hashing, and the structural
// invariants enforced before admission (spec §3, §4.1).
package bundle

import (
	"bytes"
	"reflect"

	"github.com/google/uuid"

	"github.com/base/tips/internal/tipstypes"
)

// State is the live-catalog lifecycle state of a bundle (spec §3).
// Terminal transitions remove the bundle from the Bundle Store.
type State int

const (
	StateReady State = iota
	StateIncludedByBuilder
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "Ready"
	case StateIncludedByBuilder:
		return "IncludedByBuilder"
	default:
		return "Unknown"
	}
}

const MaxGas = 25_000_000

// Bundle is the canonical unit TIPS admits, stores, and audits.
type Bundle struct {
	UUID       uuid.UUID
	BundleHash tipstypes.Hash
	Txs        []Tx

	BlockNumber  uint64 // 0 = any block within a 24h horizon
	MinTimestamp uint64
	MaxTimestamp uint64

	RevertingTxHashes *tipstypes.Set[tipstypes.Hash]
	ReplacementUUID   *uuid.UUID

	CreatedAt int64
	UpdatedAt int64
	State     State
}

// Hash computes the bundle hash per spec §4.1: keccak of the
// concatenation of transaction hashes, in order. It is order-sensitive
// (P2) — no canonicalization of tx order happens here or anywhere
// else in the admission path.
func Hash(txs []Tx) tipstypes.Hash {
	var buf bytes.Buffer
	for _, tx := range txs {
		buf.Write(tx.Hash[:])
	}
	return tipstypes.Keccak256(buf.Bytes())
}

// WrapRawTx builds the single-tx bundle a raw eth_sendRawTransaction
// submission is admitted as (spec §4.1): revertingTxHashes set to the
// lone tx's hash, no target block, no inclusion window.
func WrapRawTx(tx Tx) *Bundle {
	reverting := tipstypes.NewSet[tipstypes.Hash]()
	reverting.Add(tx.Hash)
	return &Bundle{
		BundleHash:        Hash([]Tx{tx}),
		Txs:               []Tx{tx},
		BlockNumber:       0,
		RevertingTxHashes: reverting,
		State:             StateReady,
	}
}

// TxHashes returns the ordered hashes of the bundle's transactions.
func (b *Bundle) TxHashes() []tipstypes.Hash {
	hashes := make([]tipstypes.Hash, len(b.Txs))
	for i, tx := range b.Txs {
		hashes[i] = tx.Hash
	}
	return hashes
}

// TotalGas sums the per-tx gas limits (I4).
func (b *Bundle) TotalGas() uint64 {
	var total uint64
	for _, tx := range b.Txs {
		total += tx.Gas
	}
	return total
}

// SenderNonce identifies the (sender,nonce) pair of a single-tx
// raw-tx bundle, used by the Bundle Store's replacement index (I5).
type SenderNonce struct {
	Sender tipstypes.Address
	Nonce  uint64
}

// IsSingleTxRawBundle reports whether b looks like a raw-tx wrap: one
// transaction, no target block, reverting set equal to that tx's hash
// alone. Only such bundles participate in (sender,nonce) replacement.
func (b *Bundle) IsSingleTxRawBundle() bool {
	if len(b.Txs) != 1 || b.BlockNumber != 0 {
		return false
	}
	if b.RevertingTxHashes == nil || b.RevertingTxHashes.Size() != 1 {
		return false
	}
	return b.RevertingTxHashes.Contains(b.Txs[0].Hash)
}

// SenderNonce returns the (sender,nonce) key for a single-tx bundle.
// Callers must check IsSingleTxRawBundle first.
func (b *Bundle) SenderNonce() SenderNonce {
	return SenderNonce{Sender: b.Txs[0].Sender, Nonce: b.Txs[0].Nonce}
}

// Clone returns a deep copy, used by the Bundle Store's copy-on-write
// snapshot (spec §4.3) and by round-trip tests (R1/R2).
func (b *Bundle) Clone() *Bundle {
	if b == nil {
		return nil
	}
	clone := *b
	clone.Txs = make([]Tx, len(b.Txs))
	copy(clone.Txs, b.Txs)

	if b.RevertingTxHashes != nil {
		reverting := tipstypes.NewSet[tipstypes.Hash]()
		for _, h := range b.RevertingTxHashes.List() {
			reverting.Add(h)
		}
		clone.RevertingTxHashes = reverting
	}
	if b.ReplacementUUID != nil {
		id := *b.ReplacementUUID
		clone.ReplacementUUID = &id
	}
	return &clone
}

// Equal reports whether a and b carry the same fields, used by
// round-trip tests (R1/R2) after a JSON or storage encode/decode.
func (b *Bundle) Equal(other *Bundle) bool {
	if b == nil || other == nil {
		return b == other
	}
	if b.UUID != other.UUID || b.BundleHash != other.BundleHash {
		return false
	}
	if b.BlockNumber != other.BlockNumber || b.MinTimestamp != other.MinTimestamp || b.MaxTimestamp != other.MaxTimestamp {
		return false
	}
	if b.CreatedAt != other.CreatedAt || b.UpdatedAt != other.UpdatedAt || b.State != other.State {
		return false
	}
	if !reflect.DeepEqual(b.TxHashes(), other.TxHashes()) {
		return false
	}
	if (b.ReplacementUUID == nil) != (other.ReplacementUUID == nil) {
		return false
	}
	if b.ReplacementUUID != nil && *b.ReplacementUUID != *other.ReplacementUUID {
		return false
	}
	switch {
	case b.RevertingTxHashes == nil && other.RevertingTxHashes == nil:
		return true
	case b.RevertingTxHashes == nil || other.RevertingTxHashes == nil:
		return false
	}
	if b.RevertingTxHashes.Size() != other.RevertingTxHashes.Size() {
		return false
	}
	for _, h := range b.RevertingTxHashes.List() {
		if !other.RevertingTxHashes.Contains(h) {
			return false
		}
	}
	return true
}
