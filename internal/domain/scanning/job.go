// Package scanning holds the scan-job lifecycle domain: the unit-of-work
// record tracking one change event's scan from receipt to terminal state,
// and the ports its collaborators implement.
package scanning

import (
	"fmt"

	"github.com/google/uuid"
)

// JobKind identifies what triggered a scan job.
type JobKind string

const (
	JobKindPushScan             JobKind = "push_scan"
	JobKindPullRequestScan      JobKind = "pull_request_scan"
	JobKindReleaseScan          JobKind = "release_scan"
	JobKindSecurityAdvisoryScan JobKind = "security_advisory_scan"
)

// Job tracks one scan's lifecycle. The orchestrator is the only writer:
// jobs are created when an event is received and become immutable once a
// terminal status is recorded.
type Job struct {
	id         uuid.UUID
	repository string
	kind       JobKind

	status        JobStatus
	findingsCount int
	errorDetail   string

	timeline *Timeline
}

// NewJob creates a pending Job for the given repository and kind.
func NewJob(repository string, kind JobKind) *Job {
	return &Job{
		id:         uuid.New(),
		repository: repository,
		kind:       kind,
		status:     JobStatusPending,
		timeline:   NewTimeline(realTimeProvider{}),
	}
}

// NewJobWithTimeProvider creates a pending Job with an injected clock.
// Used by tests that assert on job timing.
func NewJobWithTimeProvider(repository string, kind JobKind, tp TimeProvider) *Job {
	return &Job{
		id:         uuid.New(),
		repository: repository,
		kind:       kind,
		status:     JobStatusPending,
		timeline:   NewTimeline(tp),
	}
}

// ReconstructJob creates a Job from stored fields, bypassing creation
// invariants. This should only be used by repositories when loading from
// the database.
func ReconstructJob(
	id uuid.UUID,
	repository string,
	kind JobKind,
	status JobStatus,
	findingsCount int,
	errorDetail string,
	timeline *Timeline,
) *Job {
	return &Job{
		id:            id,
		repository:    repository,
		kind:          kind,
		status:        status,
		findingsCount: findingsCount,
		errorDetail:   errorDetail,
		timeline:      timeline,
	}
}

// ID returns the unique identifier for this scan job.
func (j *Job) ID() uuid.UUID { return j.id }

// Repository returns the full name of the repository being scanned.
func (j *Job) Repository() string { return j.repository }

// Kind returns what triggered this job.
func (j *Job) Kind() JobKind { return j.kind }

// Status returns the current execution status of the scan job.
func (j *Job) Status() JobStatus { return j.status }

// FindingsCount returns the number of findings persisted for this job.
// It is only meaningful once the job has completed.
func (j *Job) FindingsCount() int { return j.findingsCount }

// ErrorDetail returns the captured failure message for failed jobs.
func (j *Job) ErrorDetail() string { return j.errorDetail }

// Timeline provides access to the job's timing information.
func (j *Job) Timeline() *Timeline { return j.timeline }

// Start transitions the job from pending to running.
func (j *Job) Start() error {
	if err := j.status.ValidateTransition(JobStatusRunning); err != nil {
		return err
	}
	j.status = JobStatusRunning
	j.timeline.UpdateLastUpdate()
	return nil
}

// Complete marks the job completed with the number of findings persisted
// for it. The count must equal what the findings store accepted.
func (j *Job) Complete(findingsCount int) error {
	if err := j.status.ValidateTransition(JobStatusCompleted); err != nil {
		return err
	}
	if findingsCount < 0 {
		return fmt.Errorf("findings count cannot be negative: %d", findingsCount)
	}
	j.status = JobStatusCompleted
	j.findingsCount = findingsCount
	j.timeline.MarkCompleted()
	return nil
}

// Fail marks the job failed, capturing the cause. A pending job may fail
// directly when it cannot even start.
func (j *Job) Fail(cause error) error {
	if err := j.status.ValidateTransition(JobStatusFailed); err != nil {
		return err
	}
	j.status = JobStatusFailed
	if cause != nil {
		j.errorDetail = cause.Error()
	}
	j.timeline.MarkCompleted()
	return nil
}
