package events

import (
	"context"
	"time"
)

// EventMetadata carries transport-level position information for a consumed
// event, useful for logging and debugging delivery issues.
type EventMetadata struct {
	Partition int32
	Offset    int64
}

// EventEnvelope encapsulates all event data flowing through the system,
// providing a standardized format for event processing and distribution.
type EventEnvelope struct {
	// Type identifies the category of this event for routing and handling.
	Type EventType

	// ID is the broker-assigned identifier of this delivery.
	ID string

	// Key enables consistent event routing, typically the repository full
	// name so one repository's events are processed in order.
	Key string

	// Timestamp records when this envelope was created.
	Timestamp time.Time

	// Payload contains the actual event data. The concrete type depends on
	// the EventType (e.g. *PushEventPayload for EventTypePush).
	Payload any

	// Metadata holds transport position details for consumed events.
	Metadata EventMetadata
}

// AckFunc acknowledges an event back to the broker. Pass nil to confirm the
// event was fully processed and must not be redelivered; pass the processing
// error to leave it pending for redelivery. An envelope whose AckFunc is
// never invoked is redelivered to a consumer in the group.
type AckFunc func(error)

// HandlerFunc processes a consumed event. The handler owns the ack decision:
// the bus never acknowledges on the handler's behalf.
type HandlerFunc func(ctx context.Context, envelope EventEnvelope, ack AckFunc) error
