// Package events provides the domain event model for communicating repository
// change notifications across system boundaries in a decoupled way.
package events

// EventType represents a domain event category, enabling type-safe event
// routing and handling. The categories mirror the webhook event kinds the
// boundary accepts.
type EventType string

const (
	EventTypePush             EventType = "push"
	EventTypePullRequest      EventType = "pull_request"
	EventTypeRelease          EventType = "release"
	EventTypeSecurityAdvisory EventType = "security_advisory"
)

// ParseEventType converts a webhook event name to an EventType. Unsupported
// names map to the empty type, which callers treat as "ignore".
func ParseEventType(s string) EventType {
	switch s {
	case "push":
		return EventTypePush
	case "pull_request":
		return EventTypePullRequest
	case "release":
		return EventTypeRelease
	case "security_advisory":
		return EventTypeSecurityAdvisory
	default:
		return ""
	}
}

// PublishOption is a function type that modifies PublishParams.
// It enables flexible configuration of event publishing behavior through
// functional options.
type PublishOption func(*PublishParams)

// PublishParams contains configuration options for publishing domain events.
type PublishParams struct {
	// Key is used as a partition key to control event routing and ordering.
	Key string
	// Headers contain metadata key-value pairs attached to the event.
	Headers map[string]string
}

// WithKey returns a PublishOption that sets the partition key for event
// routing. The key helps ensure related events are processed in order by the
// same consumer.
func WithKey(key string) PublishOption {
	return func(p *PublishParams) { p.Key = key }
}

// WithHeaders returns a PublishOption that attaches metadata headers to an
// event.
func WithHeaders(headers map[string]string) PublishOption {
	return func(p *PublishParams) { p.Headers = headers }
}
