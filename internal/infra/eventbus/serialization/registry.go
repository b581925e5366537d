// Package serialization provides a registry-based system for serializing and
// deserializing domain events in the event bus infrastructure. It acts as a
// translation layer between domain payloads and their JSON wire format.
//
// The package implements a registry pattern where serialization and
// deserialization functions are registered per event type, which keeps the
// domain layer clean of wire-format concerns and lets new event types be
// added without modifying existing code.
package serialization

import (
	"encoding/json"
	"fmt"

	"secintel/internal/domain/events"
)

// SerializeFunc converts a domain payload into a serialized byte slice.
type SerializeFunc func(payload any) ([]byte, error)

// DeserializeFunc converts a serialized byte slice back into a domain payload.
type DeserializeFunc func(data []byte) (any, error)

var (
	serializerRegistry   = map[events.EventType]SerializeFunc{}
	deserializerRegistry = map[events.EventType]DeserializeFunc{}
)

// RegisterSerializeFunc registers a serialization function for an event type.
func RegisterSerializeFunc(eventType events.EventType, fn SerializeFunc) {
	serializerRegistry[eventType] = fn
}

// RegisterDeserializeFunc registers a deserialization function for an event type.
func RegisterDeserializeFunc(eventType events.EventType, fn DeserializeFunc) {
	deserializerRegistry[eventType] = fn
}

// universalEnvelope is the wire framing shared by all event types: the type
// tag for dispatch plus the payload as JSON text.
type universalEnvelope struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

// SerializeEventEnvelope encodes an event type and payload into the universal
// wire framing used on the stream.
func SerializeEventEnvelope(eventType events.EventType, payload any) ([]byte, error) {
	fn, ok := serializerRegistry[eventType]
	if !ok {
		return nil, fmt.Errorf("no serializer registered for eventType=%s", eventType)
	}
	payloadBytes, err := fn(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(universalEnvelope{
		EventType: string(eventType),
		Payload:   payloadBytes,
	})
}

// UnmarshalUniversalEnvelope splits a wire message into its event type and
// raw payload bytes without deserializing the payload.
func UnmarshalUniversalEnvelope(data []byte) (events.EventType, []byte, error) {
	var env universalEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("unmarshal universal envelope: %w", err)
	}
	et := events.ParseEventType(env.EventType)
	if et == "" {
		return "", nil, fmt.Errorf("unknown event type in envelope: %q", env.EventType)
	}
	return et, env.Payload, nil
}

// DeserializePayload converts raw payload bytes back into a domain payload
// using the registered deserializer for the event type.
func DeserializePayload(eventType events.EventType, data []byte) (any, error) {
	fn, ok := deserializerRegistry[eventType]
	if !ok {
		return nil, fmt.Errorf("no deserializer registered for eventType=%s", eventType)
	}
	return fn(data)
}

func init() {
	RegisterEventSerializers()
}

// RegisterEventSerializers registers handlers for all supported event types.
func RegisterEventSerializers() {
	RegisterSerializeFunc(events.EventTypePush, serializeJSON[events.PushEventPayload])
	RegisterDeserializeFunc(events.EventTypePush, deserializeJSON[events.PushEventPayload])

	RegisterSerializeFunc(events.EventTypePullRequest, serializeJSON[events.PullRequestEventPayload])
	RegisterDeserializeFunc(events.EventTypePullRequest, deserializeJSON[events.PullRequestEventPayload])

	RegisterSerializeFunc(events.EventTypeRelease, serializeJSON[events.ReleaseEventPayload])
	RegisterDeserializeFunc(events.EventTypeRelease, deserializeJSON[events.ReleaseEventPayload])

	RegisterSerializeFunc(events.EventTypeSecurityAdvisory, serializeJSON[events.SecurityAdvisoryEventPayload])
	RegisterDeserializeFunc(events.EventTypeSecurityAdvisory, deserializeJSON[events.SecurityAdvisoryEventPayload])
}

// serializeJSON accepts either T or *T so publishers can pass payloads by
// value or by pointer.
func serializeJSON[T any](payload any) ([]byte, error) {
	switch p := payload.(type) {
	case T:
		return json.Marshal(p)
	case *T:
		return json.Marshal(p)
	default:
		return nil, fmt.Errorf("serialize: payload is %T, want %T", payload, *new(T))
	}
}

func deserializeJSON[T any](data []byte) (any, error) {
	var payload T
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal %T: %w", payload, err)
	}
	return &payload, nil
}
