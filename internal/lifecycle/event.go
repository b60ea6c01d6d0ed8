// Package lifecycle models the tagged-union events published onto the
// ingress and builder event-log topics, and the key-minting primitive
// downstream consumers rely on for idempotent dedup (spec §4.4, §5).
package lifecycle

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/base/tips/internal/bundle"
	"github.com/base/tips/internal/tipstypes"
)

// Event is the common interface both BundleEvent and UserOpEvent
// satisfy, letting the Audit Pipeline merge two differently-shaped
// streams through one History.
type Event interface {
	EventKey() string
	EventTimestamp() int64
}

// BundleEventType is the discriminator of a BundleEvent's JSON
// envelope, wire field "event".
type BundleEventType string

const (
	BundleCreated           BundleEventType = "Created"
	BundleUpdated           BundleEventType = "Updated"
	BundleCancelled         BundleEventType = "Cancelled"
	BundleIncludedByBuilder BundleEventType = "IncludedByBuilder"
	BundleIncludedInBlock   BundleEventType = "IncludedInBlock"
	BundleDropped           BundleEventType = "Dropped"
)

// DropReason enumerates why the Bundle Store or Maintenance removed a
// bundle from the live catalog (spec §4.6).
type DropReason string

const (
	DropTimeout             DropReason = "Timeout"
	DropIncludedByOther     DropReason = "IncludedByOther"
	DropReverted            DropReason = "Reverted"
	DropPerAccountCapExceeded DropReason = "PerAccountCapExceeded"
	DropGlobalCapExceeded     DropReason = "GlobalCapExceeded"
)

// NonceRef identifies the raw-tx bundle a replacement targets (I5).
type NonceRef struct {
	Sender bundle.SenderNonce `json:"senderNonce"`
}

// IncludedByBuilderData carries the builder-reported insertion point:
// which flashblock within the target block, the block number itself,
// and which builder instance reported it.
type IncludedByBuilderData struct {
	FlashblockIdx uint64 `json:"flashblockIdx"`
	BlockNumber   uint64 `json:"blockNumber"`
	BuilderID     string `json:"builderId"`
}

// IncludedInBlockData carries the canonical-chain confirmation.
type IncludedInBlockData struct {
	BlockNumber uint64         `json:"blockNumber"`
	BlockHash   tipstypes.Hash `json:"blockHash"`
}

// DroppedData carries why a bundle left the live catalog.
type DroppedData struct {
	Reason DropReason `json:"reason"`
}

// BundleEvent is the tagged-union record TIPS publishes onto
// TopicIngressBundles / TopicBuilderEvents for a single bundle
// lifecycle transition.
type BundleEvent struct {
	Type      BundleEventType
	Timestamp int64
	Key       string

	// BundleUUID identifies the target entry for every variant;
	// Created/Updated additionally carry the full Bundle payload.
	BundleUUID uuid.UUID
	Bundle     *bundle.Bundle

	Nonce             *NonceRef
	IncludedByBuilder *IncludedByBuilderData
	IncludedInBlock   *IncludedInBlockData
	Dropped           *DroppedData
}

func (e *BundleEvent) EventKey() string      { return e.Key }
func (e *BundleEvent) EventTimestamp() int64 { return e.Timestamp }

// UserOpEventType is the discriminator of a UserOpEvent's JSON
// envelope.
type UserOpEventType string

const (
	UserOpAddedToMempool UserOpEventType = "AddedToMempool"
	UserOpIncluded       UserOpEventType = "Included"
	UserOpDropped        UserOpEventType = "Dropped"
)

// UserOpDropReasonTag enumerates the tag half of a Rust
// enum-with-payload flattened into a Go struct (Reason carries the
// Invalid variant's message).
type UserOpDropReasonTag string

const (
	UserOpDropInvalid             UserOpDropReasonTag = "Invalid"
	UserOpDropExpired             UserOpDropReasonTag = "Expired"
	UserOpDropReplacedByHigherFee UserOpDropReasonTag = "ReplacedByHigherFee"
)

// UserOpDropReason is the flattened Invalid(String)/Expired/
// ReplacedByHigherFee enum from the original workspace.
type UserOpDropReason struct {
	Tag    UserOpDropReasonTag `json:"tag"`
	Reason string              `json:"reason,omitempty"`
}

// UserOpIncludedData carries the canonical-chain confirmation of a
// UserOperation's handleOps transaction.
type UserOpIncludedData struct {
	BlockNumber uint64         `json:"blockNumber"`
	TxHash      tipstypes.Hash `json:"txHash"`
}

// UserOpEvent is the tagged-union record published for a single
// UserOperation lifecycle transition.
type UserOpEvent struct {
	Type      UserOpEventType
	Timestamp int64
	Key       string

	UserOpHash tipstypes.Hash
	EntryPoint tipstypes.Address

	// Sender and Nonce are populated on AddedToMempool.
	Sender tipstypes.Address
	Nonce  uint64

	Included *UserOpIncludedData
	Dropped  *UserOpDropReason
}

func (e *UserOpEvent) EventKey() string      { return e.Key }
func (e *UserOpEvent) EventTimestamp() int64 { return e.Timestamp }

// EventKey computes the producer-assigned idempotence key, spec §4.4:
// "<entity_id>-<event_nonce>". Downstream consumers dedup on this
// value alone; the producer need not itself be idempotent.
func EventKey(entityID string, nonce uint64) string {
	return fmt.Sprintf("%s-%d", entityID, nonce)
}

// ParseEventKey recovers the entity id half of a key minted by
// EventKey. The nonce has no dashes, so splitting on the last "-" is
// safe even though a uuid entity id itself contains dashes.
func ParseEventKey(key string) (entityID string, ok bool) {
	idx := strings.LastIndex(key, "-")
	if idx < 0 {
		return "", false
	}
	return key[:idx], true
}

// KeySequencer mints monotonically increasing per-entity nonces for
// EventKey. Every call to Next yields a fresh nonce, so a repeated
// publish of the same logical change is keyed as a distinct event; the
// counter lives in memory and starts over unless seeded with Observe.
type KeySequencer struct {
	last map[string]uint64
}

func NewKeySequencer() *KeySequencer {
	return &KeySequencer{last: make(map[string]uint64)}
}

// Next returns the next nonce for entityID and records it.
func (s *KeySequencer) Next(entityID string) uint64 {
	n := s.last[entityID] + 1
	s.last[entityID] = n
	return n
}

// Observe records a nonce read back from durable state (e.g. the last
// key found in an entity's history) so a restarted process resumes
// numbering instead of starting over at 1.
func (s *KeySequencer) Observe(entityID string, nonce uint64) {
	if nonce > s.last[entityID] {
		s.last[entityID] = nonce
	}
}
