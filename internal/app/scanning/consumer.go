package scanning

import (
	"context"
	"fmt"

	"secintel/internal/domain/events"
	"secintel/pkg/common/logger"
)

// Consumer ties the orchestrator to the event bus and runs until its context
// is cancelled. Shutdown is cooperative: cancellation stops further polling
// while the event currently in flight still runs to a terminal state.
type Consumer struct {
	bus          events.EventBus
	orchestrator *Orchestrator
	logger       *logger.Logger
}

// NewConsumer creates a consumer that feeds push events to the orchestrator.
func NewConsumer(bus events.EventBus, orchestrator *Orchestrator, log *logger.Logger) *Consumer {
	return &Consumer{
		bus:          bus,
		orchestrator: orchestrator,
		logger:       log.With("component", "scan_consumer"),
	}
}

// Run subscribes to push events and blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	err := c.bus.Subscribe(ctx, []events.EventType{events.EventTypePush}, c.orchestrator.HandleEvent)
	if err != nil {
		return fmt.Errorf("subscribe to push events: %w", err)
	}

	c.logger.Info(ctx, "Scan consumer running")
	<-ctx.Done()
	c.logger.Info(ctx, "Scan consumer shutting down")
	return ctx.Err()
}
