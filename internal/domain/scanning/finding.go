package scanning

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"secintel/internal/domain/detection"
)

// FindingStatus tracks the triage state of a persisted finding. New findings
// start open and move through triage via the API.
type FindingStatus string

const (
	FindingStatusOpen          FindingStatus = "open"
	FindingStatusAcknowledged  FindingStatus = "acknowledged"
	FindingStatusResolved      FindingStatus = "resolved"
	FindingStatusFalsePositive FindingStatus = "false_positive"
)

func (s FindingStatus) String() string { return string(s) }

// ParseFindingStatus converts a string to a FindingStatus, returning an error
// for unknown values.
func ParseFindingStatus(s string) (FindingStatus, error) {
	switch s {
	case "open":
		return FindingStatusOpen, nil
	case "acknowledged":
		return FindingStatusAcknowledged, nil
	case "resolved":
		return FindingStatusResolved, nil
	case "false_positive":
		return FindingStatusFalsePositive, nil
	default:
		return "", fmt.Errorf("unknown finding status: %q", s)
	}
}

// FindingRecord is the persisted form of a detection result, tied to the scan
// job that produced it. Records are written once by the orchestrator in a
// single batch per job; only Status changes afterwards.
type FindingRecord struct {
	ID         uuid.UUID
	JobID      uuid.UUID
	Repository string
	CommitSHA  string

	detection.Finding

	Status    FindingStatus
	CreatedAt time.Time
}

// NewFindingRecord creates an open FindingRecord for a detection result.
func NewFindingRecord(jobID uuid.UUID, repository, commitSHA string, f detection.Finding) *FindingRecord {
	return &FindingRecord{
		ID:         uuid.New(),
		JobID:      jobID,
		Repository: repository,
		CommitSHA:  commitSHA,
		Finding:    f,
		Status:     FindingStatusOpen,
		CreatedAt:  time.Now().UTC(),
	}
}

// FindingFilter narrows finding reads. Zero values mean "no constraint".
type FindingFilter struct {
	Severity   string
	SecretType string
	Status     string
	Repository string

	// Days limits results to findings created within the last N days.
	Days int

	Limit  int
	Offset int
}

// FindingStats aggregates finding counts for the summary endpoint.
type FindingStats struct {
	Total        int
	BySeverity   map[string]int
	BySecretType map[string]int
	ByStatus     map[string]int
}
