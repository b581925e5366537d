package scanning

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrJobNotFound indicates a requested scan job does not exist.
	ErrJobNotFound = errors.New("scan job not found")

	// ErrFindingNotFound indicates a requested finding does not exist.
	ErrFindingNotFound = errors.New("finding not found")

	// ErrRepositoryUnavailable marks a fetch failure that dooms the whole
	// job, such as the repository being deleted or the token lacking
	// access. Fetchers wrap it so the orchestrator can tell job-level
	// failures from per-file ones.
	ErrRepositoryUnavailable = errors.New("repository unavailable")
)

// JobRepository persists scan job lifecycle state.
type JobRepository interface {
	// CreateJob stores a new job. Fails if the job ID already exists.
	CreateJob(ctx context.Context, job *Job) error

	// UpdateJob persists the job's current status, findings count, error
	// detail and timeline.
	UpdateJob(ctx context.Context, job *Job) error

	// GetJob retrieves a job by ID, returning ErrJobNotFound if absent.
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)
}

// FindingRepository persists and queries detection results.
type FindingRepository interface {
	// SaveFindings stores a batch of finding records in one operation.
	// An empty batch is a no-op.
	SaveFindings(ctx context.Context, records []*FindingRecord) error

	// ListFindings returns records matching the filter, newest first.
	ListFindings(ctx context.Context, filter FindingFilter) ([]*FindingRecord, error)

	// GetFinding retrieves a record by ID, returning ErrFindingNotFound
	// if absent.
	GetFinding(ctx context.Context, id uuid.UUID) (*FindingRecord, error)

	// UpdateFindingStatus changes the triage status of a record.
	UpdateFindingStatus(ctx context.Context, id uuid.UUID, status FindingStatus) error

	// FindingStats aggregates counts over findings created within the
	// last N days. days <= 0 means all time.
	FindingStats(ctx context.Context, days int) (*FindingStats, error)
}

// FileContent is a fetched repository file decoded to text.
type FileContent struct {
	// Text is the file body decoded to valid UTF-8. Bytes that do not
	// decode are replaced rather than failing the fetch.
	Text string

	// Size is the size reported by the source in bytes, which may differ
	// from len(Text) after decoding.
	Size int64
}

// ContentFetcher retrieves file contents from a source repository at a
// specific revision.
type ContentFetcher interface {
	FetchFile(ctx context.Context, repository, path, ref string) (*FileContent, error)
}
