package lifecycle

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/base/tips/internal/bundle"
	"github.com/base/tips/internal/tipstypes"
)

// bundleEventJSON mirrors spec §4.4's record shape
// {event, timestamp, key, data}, with "data" holding whichever payload
// the event's Type implies. "uuid" identifies the target catalog entry
// for every variant, including the ones whose payload carries no
// bundle at all (Cancelled, IncludedByBuilder, ...).
type bundleEventJSON struct {
	Event     BundleEventType `json:"event"`
	Timestamp int64           `json:"timestamp"`
	Key       string          `json:"key"`
	UUID      uuid.UUID       `json:"uuid"`
	Data      json.RawMessage `json:"data,omitempty"`
}

func (e *BundleEvent) MarshalJSON() ([]byte, error) {
	var data any
	switch e.Type {
	case BundleCreated, BundleUpdated:
		data = e.Bundle
	case BundleCancelled:
		data = e.Nonce
	case BundleIncludedByBuilder:
		data = e.IncludedByBuilder
	case BundleIncludedInBlock:
		data = e.IncludedInBlock
	case BundleDropped:
		data = e.Dropped
	default:
		return nil, fmt.Errorf("lifecycle: unknown bundle event type %q", e.Type)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(bundleEventJSON{
		Event:     e.Type,
		Timestamp: e.Timestamp,
		Key:       e.Key,
		UUID:      e.BundleUUID,
		Data:      raw,
	})
}

// UnmarshalBundleEvent decodes a BundleEvent, recovering the embedded
// bundle's transaction senders with the given decode function when the
// event carries one (Created/Updated).
func UnmarshalBundleEvent(data []byte, decodeBundle func([]byte) (*bundle.Bundle, error)) (*BundleEvent, error) {
	var envelope bundleEventJSON
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}
	ev := &BundleEvent{Type: envelope.Event, Timestamp: envelope.Timestamp, Key: envelope.Key, BundleUUID: envelope.UUID}

	switch envelope.Event {
	case BundleCreated, BundleUpdated:
		b, err := decodeBundle(envelope.Data)
		if err != nil {
			return nil, err
		}
		ev.Bundle = b
	case BundleCancelled:
		ev.Nonce = new(NonceRef)
		if err := json.Unmarshal(envelope.Data, ev.Nonce); err != nil {
			return nil, err
		}
	case BundleIncludedByBuilder:
		ev.IncludedByBuilder = new(IncludedByBuilderData)
		if err := json.Unmarshal(envelope.Data, ev.IncludedByBuilder); err != nil {
			return nil, err
		}
	case BundleIncludedInBlock:
		ev.IncludedInBlock = new(IncludedInBlockData)
		if err := json.Unmarshal(envelope.Data, ev.IncludedInBlock); err != nil {
			return nil, err
		}
	case BundleDropped:
		ev.Dropped = new(DroppedData)
		if err := json.Unmarshal(envelope.Data, ev.Dropped); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("lifecycle: unknown bundle event type %q", envelope.Event)
	}
	return ev, nil
}

type userOpEventJSON struct {
	Event      UserOpEventType     `json:"event"`
	Timestamp  int64               `json:"timestamp"`
	Key        string              `json:"key"`
	UserOpHash string              `json:"userOpHash"`
	EntryPoint string              `json:"entryPoint"`
	Sender     string              `json:"sender,omitempty"`
	Nonce      uint64              `json:"nonce,omitempty"`
	Included   *UserOpIncludedData `json:"included,omitempty"`
	Dropped    *UserOpDropReason   `json:"dropped,omitempty"`
}

func (e *UserOpEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(userOpEventJSON{
		Event:      e.Type,
		Timestamp:  e.Timestamp,
		Key:        e.Key,
		UserOpHash: e.UserOpHash.Hex(),
		EntryPoint: e.EntryPoint.Hex(),
		Sender:     e.Sender.Hex(),
		Nonce:      e.Nonce,
		Included:   e.Included,
		Dropped:    e.Dropped,
	})
}

func (e *UserOpEvent) UnmarshalJSON(data []byte) error {
	var in userOpEventJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	e.Type = in.Event
	e.Timestamp = in.Timestamp
	e.Key = in.Key
	e.UserOpHash = tipstypes.HexToHash(in.UserOpHash)
	e.EntryPoint = tipstypes.HexToAddress(in.EntryPoint)
	if in.Sender != "" {
		e.Sender = tipstypes.HexToAddress(in.Sender)
	}
	e.Nonce = in.Nonce
	e.Included = in.Included
	e.Dropped = in.Dropped
	return nil
}
