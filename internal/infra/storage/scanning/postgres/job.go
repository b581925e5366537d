// Package postgres provides PostgreSQL-backed persistence for scan jobs.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"secintel/internal/domain/scanning"
	"secintel/internal/infra/storage"
)

var _ scanning.JobRepository = (*jobStore)(nil)

// jobStore implements scanning.JobRepository using PostgreSQL as the backing
// store, tracking job status, counts, and timing.
type jobStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewJobStore creates a new PostgreSQL-backed job repository with tracing
// capabilities.
func NewJobStore(pool *pgxpool.Pool, tracer trace.Tracer) *jobStore {
	return &jobStore{db: pool, tracer: tracer}
}

// defaultDBAttributes defines standard OpenTelemetry attributes for database
// operations.
var defaultDBAttributes = []attribute.KeyValue{
	attribute.String("db.system", "postgresql"),
}

// CreateJob persists a new scan job.
func (r *jobStore) CreateJob(ctx context.Context, job *scanning.Job) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("job_id", job.ID().String()),
		attribute.String("status", string(job.Status())),
		attribute.String("repository", job.Repository()),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.create_job", dbAttrs, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()

		_, err := r.db.Exec(ctx, `
			INSERT INTO scan_jobs (id, repository, kind, status, findings_count, error_detail, started_at, completed_at, last_update)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			pgtype.UUID{Bytes: job.ID(), Valid: true},
			job.Repository(),
			string(job.Kind()),
			string(job.Status()),
			job.FindingsCount(),
			job.ErrorDetail(),
			job.Timeline().StartedAt(),
			nullableTime(job.Timeline().CompletedAt()),
			job.Timeline().LastUpdate(),
		)
		return err
	})
}

// UpdateJob modifies an existing job's state in the database.
func (r *jobStore) UpdateJob(ctx context.Context, job *scanning.Job) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("job_id", job.ID().String()),
		attribute.String("status", string(job.Status())),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.update_job", dbAttrs, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()

		tag, err := r.db.Exec(ctx, `
			UPDATE scan_jobs
			SET status = $2, findings_count = $3, error_detail = $4, completed_at = $5, last_update = $6
			WHERE id = $1`,
			pgtype.UUID{Bytes: job.ID(), Valid: true},
			string(job.Status()),
			job.FindingsCount(),
			job.ErrorDetail(),
			nullableTime(job.Timeline().CompletedAt()),
			job.Timeline().LastUpdate(),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return scanning.ErrJobNotFound
		}
		return nil
	})
}

// GetJob retrieves a job by ID.
func (r *jobStore) GetJob(ctx context.Context, id uuid.UUID) (*scanning.Job, error) {
	dbAttrs := append(defaultDBAttributes, attribute.String("job_id", id.String()))

	var job *scanning.Job
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.get_job", dbAttrs, func(ctx context.Context) error {
		row := r.db.QueryRow(ctx, `
			SELECT id, repository, kind, status, findings_count, error_detail, started_at, completed_at, last_update
			FROM scan_jobs
			WHERE id = $1`,
			pgtype.UUID{Bytes: id, Valid: true},
		)

		var (
			jobID         pgtype.UUID
			repository    string
			kind          string
			status        string
			findingsCount int
			errorDetail   string
			startedAt     time.Time
			completedAt   pgtype.Timestamptz
			lastUpdate    time.Time
		)
		if err := row.Scan(&jobID, &repository, &kind, &status, &findingsCount, &errorDetail, &startedAt, &completedAt, &lastUpdate); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return scanning.ErrJobNotFound
			}
			return err
		}

		var completed time.Time
		if completedAt.Valid {
			completed = completedAt.Time
		}

		job = scanning.ReconstructJob(
			uuid.UUID(jobID.Bytes),
			repository,
			scanning.JobKind(kind),
			scanning.ParseJobStatus(status),
			findingsCount,
			errorDetail,
			scanning.ReconstructTimeline(startedAt, completed, lastUpdate),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// nullableTime maps the zero time to SQL NULL.
func nullableTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}
