// Package scanning coordinates the scan worker: it consumes repository
// change events, drives the detection engine over the changed files, and
// records jobs and findings.
package scanning

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"secintel/internal/domain/detection"
	"secintel/internal/domain/events"
	"secintel/internal/domain/scanning"
	"secintel/pkg/common/logger"
)

// Config bounds how much of an event the orchestrator processes.
type Config struct {
	// MaxCommits caps how many of the most recent commits are scanned per
	// push event.
	MaxCommits int

	// MaxDeclaredChanges skips files whose webhook-declared line-change
	// count exceeds the limit, before any content is fetched.
	MaxDeclaredChanges int

	// MaxFileSizeBytes skips files whose fetched size exceeds the limit.
	MaxFileSizeBytes int64
}

// DefaultConfig returns the orchestrator limits used in production.
func DefaultConfig() Config {
	return Config{
		MaxCommits:         10,
		MaxDeclaredChanges: 1000,
		MaxFileSizeBytes:   10 << 20,
	}
}

// Orchestrator processes one change event at a time: create a scan job, walk
// the event's commits and changed files through the detection engine, persist
// the buffered findings in a single batch, and record the job's terminal
// state. The event is acknowledged only after that terminal state is durably
// recorded; anything less leaves the event pending for redelivery.
type Orchestrator struct {
	// mu serializes event processing: one worker handles one event fully
	// before the next, even when the bus delivers from several partitions.
	mu sync.Mutex

	engine   *detection.Engine
	jobs     scanning.JobRepository
	findings scanning.FindingRepository
	fetcher  scanning.ContentFetcher

	cfg Config

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics WorkerMetrics
}

// NewOrchestrator creates an orchestrator wired to its collaborators.
func NewOrchestrator(
	engine *detection.Engine,
	jobs scanning.JobRepository,
	findings scanning.FindingRepository,
	fetcher scanning.ContentFetcher,
	cfg Config,
	log *logger.Logger,
	tracer trace.Tracer,
	metrics WorkerMetrics,
) *Orchestrator {
	return &Orchestrator{
		engine:   engine,
		jobs:     jobs,
		findings: findings,
		fetcher:  fetcher,
		cfg:      cfg,
		logger:   log.With("component", "scan_orchestrator"),
		tracer:   tracer,
		metrics:  metrics,
	}
}

// HandleEvent is the events.HandlerFunc for push events. It owns the ack
// decision: ack with nil only after the job's terminal state is recorded,
// ack with the error (leaving the event pending) when recording failed.
func (o *Orchestrator) HandleEvent(ctx context.Context, envelope events.EventEnvelope, ack events.AckFunc) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	ctx, span := o.tracer.Start(ctx, "scan_orchestrator.handle_event",
		trace.WithAttributes(
			attribute.String("event.type", string(envelope.Type)),
			attribute.String("event.id", envelope.ID),
		))
	defer span.End()

	payload, ok := envelope.Payload.(*events.PushEventPayload)
	if !ok {
		// A mistyped payload can never succeed; acknowledging avoids an
		// endless redelivery loop.
		o.logger.Warn(ctx, "Dropping event with unexpected payload type",
			"event_id", envelope.ID, "payload_type", fmt.Sprintf("%T", envelope.Payload))
		ack(nil)
		return nil
	}

	span.SetAttributes(attribute.String("repository", payload.Repository))

	return o.metrics.TrackScanJob(ctx, func() error {
		return o.processPushEvent(ctx, payload, ack, span)
	})
}

func (o *Orchestrator) processPushEvent(
	ctx context.Context,
	payload *events.PushEventPayload,
	ack events.AckFunc,
	span trace.Span,
) error {
	log := o.logger.With("repository", payload.Repository, "commits", len(payload.Commits))

	job := scanning.NewJob(payload.Repository, scanning.JobKindPushScan)
	if err := job.Start(); err != nil {
		return fmt.Errorf("start job: %w", err)
	}
	if err := o.jobs.CreateJob(ctx, job); err != nil {
		// Nothing recorded: no ack, the event is redelivered.
		span.RecordError(err)
		ack(err)
		return fmt.Errorf("create scan job: %w", err)
	}

	log = log.With("job_id", job.ID().String())
	log.Info(ctx, "Scan job started")

	records, jobErr := o.scanCommits(ctx, job, payload)
	if jobErr != nil {
		return o.failJob(ctx, job, jobErr, ack, log, span)
	}

	if err := o.findings.SaveFindings(ctx, records); err != nil {
		// The findings batch is not durable, so the terminal state cannot
		// be recorded either. Leave the event pending.
		span.RecordError(err)
		ack(err)
		return fmt.Errorf("persist findings: %w", err)
	}

	if err := job.Complete(len(records)); err != nil {
		return o.failJob(ctx, job, err, ack, log, span)
	}
	if err := o.jobs.UpdateJob(ctx, job); err != nil {
		span.RecordError(err)
		ack(err)
		return fmt.Errorf("record completed job: %w", err)
	}

	o.metrics.IncJobsCompleted(ctx)
	o.metrics.ObserveFindings(ctx, payload.Repository, len(records))
	log.Info(ctx, "Scan job completed", "findings", len(records))

	ack(nil)
	return nil
}

// failJob records the failed terminal state. If the record is durable the
// event is acknowledged; the failure itself is not retried.
func (o *Orchestrator) failJob(
	ctx context.Context,
	job *scanning.Job,
	cause error,
	ack events.AckFunc,
	log *logger.Logger,
	span trace.Span,
) error {
	span.RecordError(cause)
	span.SetStatus(codes.Error, "scan job failed")

	if err := job.Fail(cause); err != nil {
		ack(err)
		return fmt.Errorf("mark job failed: %w", err)
	}
	if err := o.jobs.UpdateJob(ctx, job); err != nil {
		ack(err)
		return fmt.Errorf("record failed job: %w", err)
	}

	o.metrics.IncJobsFailed(ctx)
	log.Error(ctx, "Scan job failed", "error", cause)

	ack(nil)
	return nil
}

// scanCommits walks up to MaxCommits commits, scanning each eligible changed
// file and buffering the findings. Per-file and per-commit errors are logged
// and skipped; only repository-level failures abort the job.
func (o *Orchestrator) scanCommits(
	ctx context.Context,
	job *scanning.Job,
	payload *events.PushEventPayload,
) ([]*scanning.FindingRecord, error) {
	if payload.Repository == "" {
		return nil, fmt.Errorf("%w: event carries no repository", scanning.ErrRepositoryUnavailable)
	}

	commits := payload.Commits
	if len(commits) > o.cfg.MaxCommits {
		commits = commits[len(commits)-o.cfg.MaxCommits:]
	}

	var records []*scanning.FindingRecord
	for _, commit := range commits {
		for _, file := range commit.Files {
			findings, err := o.scanFile(ctx, payload.Repository, commit.SHA, file)
			if err != nil {
				if errors.Is(err, scanning.ErrRepositoryUnavailable) {
					return nil, err
				}
				o.metrics.IncFileErrors(ctx)
				o.logger.Error(ctx, "Error scanning file",
					"job_id", job.ID().String(),
					"file", file.Path,
					"commit", commit.SHA,
					"error", err,
				)
				continue
			}

			for _, f := range findings {
				records = append(records, scanning.NewFindingRecord(job.ID(), payload.Repository, commit.SHA, f))
				o.logger.Warn(ctx, "Secret detected",
					"repository", payload.Repository,
					"file", f.FilePath,
					"secret_type", f.SecretType,
					"severity", f.Severity.String(),
				)
			}
		}
	}

	return records, nil
}

// scanFile fetches and scans a single changed file, applying the skip rules
// that keep the worker away from content it should not touch.
func (o *Orchestrator) scanFile(
	ctx context.Context,
	repository, sha string,
	file events.CommitFile,
) ([]detection.Finding, error) {
	// Only additions and modifications have content at this revision.
	if file.Status != events.FileStatusAdded && file.Status != events.FileStatusModified {
		return nil, nil
	}
	if !o.engine.ShouldScan(file.Path) {
		o.metrics.IncFilesSkipped(ctx, "extension")
		return nil, nil
	}
	if file.Changes > o.cfg.MaxDeclaredChanges {
		o.metrics.IncFilesSkipped(ctx, "declared_changes")
		o.logger.Debug(ctx, "Skipping large file", "file", file.Path, "changes", file.Changes)
		return nil, nil
	}

	content, err := o.fetcher.FetchFile(ctx, repository, file.Path, sha)
	if err != nil {
		return nil, fmt.Errorf("fetch %s@%s: %w", file.Path, sha, err)
	}
	if content.Size > o.cfg.MaxFileSizeBytes {
		o.metrics.IncFilesSkipped(ctx, "size")
		o.logger.Debug(ctx, "Skipping file, too large", "file", file.Path, "size", content.Size)
		return nil, nil
	}

	o.metrics.IncFilesScanned(ctx)
	return o.engine.Scan(content.Text, file.Path), nil
}
