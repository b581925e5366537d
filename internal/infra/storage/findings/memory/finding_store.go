// Package memory provides an in-memory finding store for testing and
// development environments where persistence is not required.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"secintel/internal/domain/scanning"
)

var _ scanning.FindingRepository = (*FindingStore)(nil)

// FindingStore is an in-memory implementation of scanning.FindingRepository.
type FindingStore struct {
	mu      sync.RWMutex
	records []*scanning.FindingRecord
}

// NewFindingStore creates an empty in-memory finding store.
func NewFindingStore() *FindingStore {
	return &FindingStore{}
}

// SaveFindings appends a batch of records. Duplicate IDs are stored as-is;
// redelivered events may legitimately produce duplicate findings.
func (s *FindingStore) SaveFindings(ctx context.Context, records []*scanning.FindingRecord) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	return nil
}

// ListFindings returns records matching the filter, newest first.
func (s *FindingStore) ListFindings(ctx context.Context, filter scanning.FindingFilter) ([]*scanning.FindingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cutoff time.Time
	if filter.Days > 0 {
		cutoff = time.Now().UTC().AddDate(0, 0, -filter.Days)
	}

	var out []*scanning.FindingRecord
	for _, rec := range s.records {
		if filter.Severity != "" && rec.Severity.String() != filter.Severity {
			continue
		}
		if filter.SecretType != "" && rec.SecretType != filter.SecretType {
			continue
		}
		if filter.Status != "" && string(rec.Status) != filter.Status {
			continue
		}
		if filter.Repository != "" && rec.Repository != filter.Repository {
			continue
		}
		if !cutoff.IsZero() && rec.CreatedAt.Before(cutoff) {
			continue
		}
		out = append(out, rec)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// GetFinding retrieves a record by ID.
func (s *FindingStore) GetFinding(ctx context.Context, id uuid.UUID) (*scanning.FindingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, scanning.ErrFindingNotFound
}

// UpdateFindingStatus changes the triage status of a record.
func (s *FindingStore) UpdateFindingStatus(ctx context.Context, id uuid.UUID, status scanning.FindingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.ID == id {
			rec.Status = status
			return nil
		}
	}
	return scanning.ErrFindingNotFound
}

// FindingStats aggregates counts over findings created within the last N
// days. days <= 0 means all time.
func (s *FindingStore) FindingStats(ctx context.Context, days int) (*scanning.FindingStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cutoff time.Time
	if days > 0 {
		cutoff = time.Now().UTC().AddDate(0, 0, -days)
	}

	stats := &scanning.FindingStats{
		BySeverity:   make(map[string]int),
		BySecretType: make(map[string]int),
		ByStatus:     make(map[string]int),
	}
	for _, rec := range s.records {
		if !cutoff.IsZero() && rec.CreatedAt.Before(cutoff) {
			continue
		}
		stats.Total++
		stats.BySeverity[rec.Severity.String()]++
		stats.BySecretType[rec.SecretType]++
		stats.ByStatus[string(rec.Status)]++
	}
	return stats, nil
}

// Records returns all stored records, for test assertions.
func (s *FindingStore) Records() []*scanning.FindingRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*scanning.FindingRecord(nil), s.records...)
}
