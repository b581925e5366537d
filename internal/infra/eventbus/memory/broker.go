// Package memory provides an in-memory implementation of the event bus.
// It offers a lightweight, non-persistent broker suitable for testing and
// development environments where durability is not required, while keeping
// the delivery contract of the durable bus: an event stays pending until a
// subscriber acknowledges it, and pending events can be redelivered.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"secintel/internal/domain/events"
	"secintel/internal/infra/eventbus/serialization"
)

var _ events.EventBus = (*Broker)(nil)

// Broker is an in-memory events.EventBus. Published events are serialized
// and deserialized through the same codec as the durable bus, so subscribers
// observe identical payload types. Each event is tracked on a pending list
// until its ack fires with a nil error; Redeliver replays everything still
// pending, simulating a consumer restart.
type Broker struct {
	mu sync.Mutex

	handlers map[events.EventType][]events.HandlerFunc
	pending  map[string]events.EventEnvelope
	order    []string

	nextID int64
	closed bool
}

// NewBroker creates an empty in-memory broker.
func NewBroker() *Broker {
	return &Broker{
		handlers: make(map[events.EventType][]events.HandlerFunc),
		pending:  make(map[string]events.EventEnvelope),
	}
}

// Publish serializes the event, places it on the pending list, and delivers
// it synchronously to all subscribed handlers.
func (b *Broker) Publish(ctx context.Context, event events.EventEnvelope, opts ...events.PublishOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var pParams events.PublishParams
	for _, opt := range opts {
		opt(&pParams)
	}
	if pParams.Key != "" {
		event.Key = pParams.Key
	}

	// Round-trip through the wire codec so handlers receive the same
	// payload types they would from the durable bus.
	wire, err := serialization.SerializeEventEnvelope(event.Type, event.Payload)
	if err != nil {
		return fmt.Errorf("memory broker publish: %w", err)
	}
	evtType, payloadBytes, err := serialization.UnmarshalUniversalEnvelope(wire)
	if err != nil {
		return fmt.Errorf("memory broker publish: %w", err)
	}
	payload, err := serialization.DeserializePayload(evtType, payloadBytes)
	if err != nil {
		return fmt.Errorf("memory broker publish: %w", err)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.New("memory broker is closed")
	}
	b.nextID++
	envelope := events.EventEnvelope{
		Type:      evtType,
		ID:        fmt.Sprintf("mem-%d", b.nextID),
		Key:       event.Key,
		Timestamp: time.Now(),
		Payload:   payload,
	}
	b.pending[envelope.ID] = envelope
	b.order = append(b.order, envelope.ID)
	handlers := append([]events.HandlerFunc(nil), b.handlers[evtType]...)
	b.mu.Unlock()

	return b.deliver(ctx, envelope, handlers)
}

// Subscribe registers a handler for the given event types. Subscribing the
// same types again adds another handler; there is no group bookkeeping to
// collide with, which matches the idempotent group-creation contract.
func (b *Broker) Subscribe(ctx context.Context, eventTypes []events.EventType, handler events.HandlerFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("memory broker is closed")
	}
	for _, et := range eventTypes {
		b.handlers[et] = append(b.handlers[et], handler)
	}
	return nil
}

// Redeliver replays every pending event to the current subscribers, in the
// order originally published. It simulates the broker reassigning events
// whose consumer died before acknowledging.
func (b *Broker) Redeliver(ctx context.Context) error {
	b.mu.Lock()
	ids := append([]string(nil), b.order...)
	envelopes := make([]events.EventEnvelope, 0, len(ids))
	for _, id := range ids {
		if env, ok := b.pending[id]; ok {
			envelopes = append(envelopes, env)
		}
	}
	handlersByType := make(map[events.EventType][]events.HandlerFunc, len(b.handlers))
	for et, hs := range b.handlers {
		handlersByType[et] = append([]events.HandlerFunc(nil), hs...)
	}
	b.mu.Unlock()

	for _, env := range envelopes {
		if err := b.deliver(ctx, env, handlersByType[env.Type]); err != nil {
			return err
		}
	}
	return nil
}

// PendingCount reports how many published events have not been acknowledged.
func (b *Broker) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Close shuts down the broker. Pending events are discarded.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = make(map[events.EventType][]events.HandlerFunc)
	b.pending = make(map[string]events.EventEnvelope)
	b.order = nil
	return nil
}

func (b *Broker) deliver(ctx context.Context, envelope events.EventEnvelope, handlers []events.HandlerFunc) error {
	for _, handler := range handlers {
		if err := ctx.Err(); err != nil {
			return err
		}

		ack := func(err error) {
			if err != nil {
				return
			}
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.pending, envelope.ID)
			for i, id := range b.order {
				if id == envelope.ID {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		}

		if err := handler(ctx, envelope, ack); err != nil {
			return err
		}
	}
	return nil
}
