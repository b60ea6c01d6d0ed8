package audit

import (
	"encoding/json"
	"fmt"

	"github.com/base/tips/internal/bundle"
	"github.com/base/tips/internal/eventlog"
	"github.com/base/tips/internal/lifecycle"
)

// decodeEvent recovers the lifecycle.Event carried by a record. Ingress
// and userop topics are single-shape; the builder topic carries both
// bundle IncludedByBuilder/IncludedInBlock/Dropped events and UserOp
// AddedToMempool/Included/Dropped events, so it is disambiguated by
// probing for the field only one wire shape carries.
func decodeEvent(topic string, data []byte, decodeBundle func([]byte) (*bundle.Bundle, error)) (lifecycle.Event, error) {
	switch topic {
	case eventlog.TopicIngressBundles:
		return lifecycle.UnmarshalBundleEvent(data, decodeBundle)
	case eventlog.TopicUserOperations:
		return decodeUserOpEvent(data)
	case eventlog.TopicBuilderEvents:
		return decodeStoredEvent(data, decodeBundle)
	default:
		return nil, fmt.Errorf("audit: unknown topic %q", topic)
	}
}

// decodeStoredEvent decodes an event whose shape is not known ahead of
// time, either a builder-topic wire record or a persisted History
// entry, by checking for "userOpHash" (present only on the UserOpEvent
// envelope) before falling back to the BundleEvent envelope.
func decodeStoredEvent(data []byte, decodeBundle func([]byte) (*bundle.Bundle, error)) (lifecycle.Event, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	if _, ok := probe["userOpHash"]; ok {
		return decodeUserOpEvent(data)
	}
	return lifecycle.UnmarshalBundleEvent(data, decodeBundle)
}

func decodeUserOpEvent(data []byte) (lifecycle.Event, error) {
	ev := new(lifecycle.UserOpEvent)
	if err := json.Unmarshal(data, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// historyKey maps an event onto the object-store path holding its
// entity's history (spec's bundles/<uuid> and userops/<userOpHash>).
func historyKey(ev lifecycle.Event) (string, error) {
	entityID, ok := lifecycle.ParseEventKey(ev.EventKey())
	if !ok {
		return "", fmt.Errorf("audit: malformed event key %q", ev.EventKey())
	}
	switch ev.(type) {
	case *lifecycle.BundleEvent:
		return "bundles/" + entityID, nil
	case *lifecycle.UserOpEvent:
		return "userops/" + entityID, nil
	default:
		return "", fmt.Errorf("audit: unknown event type %T", ev)
	}
}
