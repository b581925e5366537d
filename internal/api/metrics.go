package api

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"secintel/internal/infra/eventbus/kafka"
)

const namespace = "webhook_api"

// APIMetrics defines metrics operations needed by the webhook API.
type APIMetrics interface {
	// EventBus metrics
	kafka.EventBusMetrics

	// Webhook metrics
	IncWebhookReceived(ctx context.Context, eventType string)
	IncWebhookRejected(ctx context.Context, reason string)
}

type apiMetrics struct {
	// Kafka metrics
	messagesPublished metric.Int64Counter
	messagesConsumed  metric.Int64Counter
	publishErrors     metric.Int64Counter
	consumeErrors     metric.Int64Counter

	// Webhook metrics
	webhooksReceived metric.Int64Counter
	webhooksRejected metric.Int64Counter
}

func NewAPIMetrics(mp metric.MeterProvider) (*apiMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(apiMetrics)
	var err error

	// Kafka metrics
	if m.messagesPublished, err = meter.Int64Counter(
		"messages_published_total",
		metric.WithDescription("Total number of messages published"),
	); err != nil {
		return nil, err
	}

	if m.messagesConsumed, err = meter.Int64Counter(
		"messages_consumed_total",
		metric.WithDescription("Total number of messages consumed"),
	); err != nil {
		return nil, err
	}

	if m.publishErrors, err = meter.Int64Counter(
		"publish_errors_total",
		metric.WithDescription("Total number of publish errors"),
	); err != nil {
		return nil, err
	}

	if m.consumeErrors, err = meter.Int64Counter(
		"consume_errors_total",
		metric.WithDescription("Total number of consume errors"),
	); err != nil {
		return nil, err
	}

	// Webhook metrics
	if m.webhooksReceived, err = meter.Int64Counter(
		"webhooks_received_total",
		metric.WithDescription("Total number of accepted webhook deliveries"),
	); err != nil {
		return nil, err
	}

	if m.webhooksRejected, err = meter.Int64Counter(
		"webhooks_rejected_total",
		metric.WithDescription("Total number of rejected webhook deliveries"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// EventBusMetrics implementation
func (m *apiMetrics) IncMessagePublished(ctx context.Context, topic string) {
	m.messagesPublished.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (m *apiMetrics) IncMessageConsumed(ctx context.Context, topic string) {
	m.messagesConsumed.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (m *apiMetrics) IncPublishError(ctx context.Context, topic string) {
	m.publishErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (m *apiMetrics) IncConsumeError(ctx context.Context, topic string) {
	m.consumeErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

// Webhook metrics implementation
func (m *apiMetrics) IncWebhookReceived(ctx context.Context, eventType string) {
	m.webhooksReceived.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", eventType)))
}

func (m *apiMetrics) IncWebhookRejected(ctx context.Context, reason string) {
	m.webhooksRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
