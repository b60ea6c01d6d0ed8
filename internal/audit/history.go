package audit

import (
	"encoding/json"

	"github.com/base/tips/internal/bundle"
	"github.com/base/tips/internal/lifecycle"
)

// History is the append-only, timestamp-sorted record of every
// lifecycle event a single entity (bundle or UserOp) has seen (spec
// §4.4). It has no ordering assumption across the ingress and builder
// streams beyond the timestamp each event already carries.
type History struct {
	Events []lifecycle.Event
}

type historyJSON struct {
	Events []json.RawMessage `json:"history"`
}

func (h *History) MarshalJSON() ([]byte, error) {
	raw := make([]json.RawMessage, len(h.Events))
	for i, ev := range h.Events {
		data, err := json.Marshal(ev)
		if err != nil {
			return nil, err
		}
		raw[i] = data
	}
	return json.Marshal(historyJSON{Events: raw})
}

func decodeHistory(data []byte, decodeBundle func([]byte) (*bundle.Bundle, error)) (*History, error) {
	var in historyJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	h := &History{Events: make([]lifecycle.Event, 0, len(in.Events))}
	for _, raw := range in.Events {
		ev, err := decodeStoredEvent(raw, decodeBundle)
		if err != nil {
			return nil, err
		}
		h.Events = append(h.Events, ev)
	}
	return h, nil
}

// hasKey reports whether an event with this key has already been
// recorded, the idempotence check behind P4/R3.
func (h *History) hasKey(key string) bool {
	for _, ev := range h.Events {
		if ev.EventKey() == key {
			return true
		}
	}
	return false
}
