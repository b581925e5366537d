// Package memory provides an in-memory scan job store for testing and
// development environments where persistence is not required.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"secintel/internal/domain/scanning"
)

var _ scanning.JobRepository = (*JobStore)(nil)

// JobStore is an in-memory implementation of scanning.JobRepository.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*scanning.Job
}

// NewJobStore creates an empty in-memory job store.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[uuid.UUID]*scanning.Job)}
}

// CreateJob stores a new job, failing if the ID already exists.
func (s *JobStore) CreateJob(ctx context.Context, job *scanning.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID()]; exists {
		return fmt.Errorf("job %s already exists", job.ID())
	}
	s.jobs[job.ID()] = job
	return nil
}

// UpdateJob replaces the stored job state.
func (s *JobStore) UpdateJob(ctx context.Context, job *scanning.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID()]; !exists {
		return scanning.ErrJobNotFound
	}
	s.jobs[job.ID()] = job
	return nil
}

// GetJob retrieves a job by ID.
func (s *JobStore) GetJob(ctx context.Context, id uuid.UUID) (*scanning.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, scanning.ErrJobNotFound
	}
	return job, nil
}

// Jobs returns all stored jobs, for test assertions.
func (s *JobStore) Jobs() []*scanning.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*scanning.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out
}
