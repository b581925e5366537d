package kafka

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/otel/trace"

	"secintel/internal/domain/events"
	"secintel/pkg/common/logger"
)

// ConnectWithRetry attempts to establish a connection to Kafka with
// exponential backoff. It retries failed connection attempts for up to
// 5 minutes, starting with 5 second intervals, to ride out temporary
// network issues or broker unavailability during startup.
func ConnectWithRetry(cfg *Config, logger *logger.Logger, metrics EventBusMetrics, tracer trace.Tracer) (events.EventBus, error) {
	var bus events.EventBus

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = 5 * time.Minute
	expBackoff.InitialInterval = 5 * time.Second

	operation := func() error {
		var err error
		bus, err = NewEventBusFromConfig(cfg, logger, metrics, tracer)
		return err
	}

	if err := backoff.Retry(operation, expBackoff); err != nil {
		return nil, fmt.Errorf("failed to connect to Kafka after retries: %w", err)
	}

	return bus, nil
}
