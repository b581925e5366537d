package scanning

import "fmt"

// JobStatus represents the current state of a scan job. It enables tracking
// of job lifecycle from receipt of a change event through completion or
// failure.
type JobStatus string

const (
	// JobStatusPending indicates a job has been created but not yet started.
	JobStatusPending JobStatus = "PENDING"

	// JobStatusRunning indicates a job is actively fetching and scanning.
	JobStatusRunning JobStatus = "RUNNING"

	// JobStatusCompleted indicates the job finished and its findings were
	// persisted.
	JobStatusCompleted JobStatus = "COMPLETED"

	// JobStatusFailed indicates the job encountered an unrecoverable error.
	JobStatusFailed JobStatus = "FAILED"
)

func (s JobStatus) String() string { return string(s) }

// IsTerminal reports whether the status is a terminal state.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ParseJobStatus converts a string to a JobStatus. Unknown values map to the
// empty status.
func ParseJobStatus(s string) JobStatus {
	switch s {
	case "PENDING":
		return JobStatusPending
	case "RUNNING":
		return JobStatusRunning
	case "COMPLETED":
		return JobStatusCompleted
	case "FAILED":
		return JobStatusFailed
	default:
		return ""
	}
}

// ValidateTransition checks if a status transition is valid and returns an
// error if not.
func (s JobStatus) ValidateTransition(target JobStatus) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid job status transition from %s to %s", s, target)
	}
	return nil
}

// isValidTransition enforces the job lifecycle rules to prevent invalid
// state changes.
func (s JobStatus) isValidTransition(target JobStatus) bool {
	switch s {
	case JobStatusPending:
		return target == JobStatusRunning || target == JobStatusFailed
	case JobStatusRunning:
		return target == JobStatusCompleted || target == JobStatusFailed
	case JobStatusCompleted, JobStatusFailed:
		// Terminal states - no further transitions allowed.
		return false
	default:
		return false
	}
}
