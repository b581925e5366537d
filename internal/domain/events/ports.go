package events

import "context"

// EventBus enables publishing and subscribing to domain events across system
// boundaries. It abstracts messaging infrastructure details to keep domain
// logic focused on business concerns rather than transport mechanisms.
type EventBus interface {
	// Publish broadcasts a domain event to all interested subscribers. The
	// provided context controls the operation lifecycle. Optional
	// PublishOptions configure delivery behavior.
	Publish(ctx context.Context, event EventEnvelope, opts ...PublishOption) error

	// Subscribe registers a handler function to process events of the
	// specified types. The handler executes for each matching event
	// received on this bus. Joining a consumer group that already exists
	// is a no-op, not an error.
	Subscribe(ctx context.Context, eventTypes []EventType, handler HandlerFunc) error

	// Close gracefully shuts down the event bus and releases associated
	// resources.
	Close() error
}
