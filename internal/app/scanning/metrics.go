package scanning

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"secintel/internal/infra/eventbus/kafka"
)

// WorkerMetrics defines metrics operations needed by the scan worker.
type WorkerMetrics interface {
	// Messaging metrics
	kafka.EventBusMetrics

	// Scan job metrics
	IncJobsCompleted(ctx context.Context)
	IncJobsFailed(ctx context.Context)
	TrackScanJob(ctx context.Context, f func() error) error

	// Finding metrics
	ObserveFindings(ctx context.Context, repository string, count int)

	// File metrics
	IncFilesScanned(ctx context.Context)
	IncFilesSkipped(ctx context.Context, reason string)
	IncFileErrors(ctx context.Context)
}

// workerMetrics implements WorkerMetrics.
type workerMetrics struct {
	messagesPublished metric.Int64Counter
	messagesConsumed  metric.Int64Counter
	publishErrors     metric.Int64Counter
	consumeErrors     metric.Int64Counter

	jobsCompleted  metric.Int64Counter
	jobsFailed     metric.Int64Counter
	activeJobs     metric.Int64UpDownCounter
	jobProcessTime metric.Float64Histogram

	findingsPerJob metric.Float64Histogram

	filesScanned metric.Int64Counter
	filesSkipped metric.Int64Counter
	fileErrors   metric.Int64Counter
}

const namespace = "scan_worker"

// NewWorkerMetrics creates a new worker metrics instance.
func NewWorkerMetrics(mp metric.MeterProvider) (*workerMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(workerMetrics)
	var err error

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

	if m.jobsCompleted, err = meter.Int64Counter(
		"scan_jobs_completed_total",
		metric.WithDescription("Total number of scan jobs completed"),
	); err != nil {
		return nil, err
	}

	if m.jobsFailed, err = meter.Int64Counter(
		"scan_jobs_failed_total",
		metric.WithDescription("Total number of scan jobs failed"),
	); err != nil {
		return nil, err
	}

	if m.activeJobs, err = meter.Int64UpDownCounter(
		"active_scan_jobs",
		metric.WithDescription("Number of scan jobs currently being processed"),
	); err != nil {
		return nil, err
	}

	if m.jobProcessTime, err = meter.Float64Histogram(
		"scan_job_duration_seconds",
		metric.WithDescription("Time taken to process scan jobs"),
	); err != nil {
		return nil, err
	}

	if m.findingsPerJob, err = meter.Float64Histogram(
		"findings_per_job",
		metric.WithDescription("Number of findings detected per scan job"),
	); err != nil {
		return nil, err
	}

	if m.filesScanned, err = meter.Int64Counter(
		"files_scanned_total",
		metric.WithDescription("Total number of files scanned"),
	); err != nil {
		return nil, err
	}

	if m.filesSkipped, err = meter.Int64Counter(
		"files_skipped_total",
		metric.WithDescription("Total number of files skipped before scanning"),
	); err != nil {
		return nil, err
	}

	if m.fileErrors, err = meter.Int64Counter(
		"file_errors_total",
		metric.WithDescription("Total number of per-file fetch or scan errors"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *workerMetrics) IncMessagePublished(ctx context.Context, topic string) {
	m.messagesPublished.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (m *workerMetrics) IncMessageConsumed(ctx context.Context, topic string) {
	m.messagesConsumed.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (m *workerMetrics) IncPublishError(ctx context.Context, topic string) {
	m.publishErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (m *workerMetrics) IncConsumeError(ctx context.Context, topic string) {
	m.consumeErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (m *workerMetrics) IncJobsCompleted(ctx context.Context) { m.jobsCompleted.Add(ctx, 1) }

func (m *workerMetrics) IncJobsFailed(ctx context.Context) { m.jobsFailed.Add(ctx, 1) }

func (m *workerMetrics) TrackScanJob(ctx context.Context, f func() error) error {
	m.activeJobs.Add(ctx, 1)
	defer m.activeJobs.Add(ctx, -1)

	start := time.Now()
	err := f()
	m.jobProcessTime.Record(ctx, time.Since(start).Seconds())
	return err
}

func (m *workerMetrics) ObserveFindings(ctx context.Context, repository string, count int) {
	m.findingsPerJob.Record(ctx, float64(count), metric.WithAttributes(
		attribute.String("repository", repository),
	))
}

func (m *workerMetrics) IncFilesScanned(ctx context.Context) { m.filesScanned.Add(ctx, 1) }

func (m *workerMetrics) IncFilesSkipped(ctx context.Context, reason string) {
	m.filesSkipped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *workerMetrics) IncFileErrors(ctx context.Context) { m.fileErrors.Add(ctx, 1) }
