package scanning

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockTimeProvider struct{ now time.Time }

func (m *mockTimeProvider) Now() time.Time { return m.now }

func (m *mockTimeProvider) Advance(d time.Duration) { m.now = m.now.Add(d) }

func TestNewJob(t *testing.T) {
	t.Parallel()

	job := NewJob("acme/payments", JobKindPushScan)

	assert.NotEqual(t, uuid.Nil, job.ID())
	assert.Equal(t, "acme/payments", job.Repository())
	assert.Equal(t, JobKindPushScan, job.Kind())
	assert.Equal(t, JobStatusPending, job.Status())
	assert.Zero(t, job.FindingsCount())
	assert.Empty(t, job.ErrorDetail())
	assert.False(t, job.Timeline().IsCompleted())
}

func TestJobLifecycleCompleted(t *testing.T) {
	t.Parallel()

	tp := &mockTimeProvider{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	job := NewJobWithTimeProvider("acme/payments", JobKindPushScan, tp)

	require.NoError(t, job.Start())
	assert.Equal(t, JobStatusRunning, job.Status())

	tp.Advance(3 * time.Second)
	require.NoError(t, job.Complete(7))

	assert.Equal(t, JobStatusCompleted, job.Status())
	assert.Equal(t, 7, job.FindingsCount())
	assert.True(t, job.Timeline().IsCompleted())
	assert.Equal(t, tp.now, job.Timeline().CompletedAt())
}

func TestJobLifecycleFailed(t *testing.T) {
	t.Parallel()

	job := NewJob("acme/payments", JobKindPullRequestScan)
	require.NoError(t, job.Start())
	require.NoError(t, job.Fail(errors.New("contents fetch: 502 bad gateway")))

	assert.Equal(t, JobStatusFailed, job.Status())
	assert.Equal(t, "contents fetch: 502 bad gateway", job.ErrorDetail())
	assert.True(t, job.Timeline().IsCompleted())
}

func TestJobFailsBeforeStart(t *testing.T) {
	t.Parallel()

	job := NewJob("acme/payments", JobKindReleaseScan)
	require.NoError(t, job.Fail(errors.New("repository inaccessible")))
	assert.Equal(t, JobStatusFailed, job.Status())
}

func TestJobInvalidTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		prepare func(j *Job)
		action  func(j *Job) error
	}{
		{
			name:    "complete before start",
			prepare: func(j *Job) {},
			action:  func(j *Job) error { return j.Complete(0) },
		},
		{
			name:    "start twice",
			prepare: func(j *Job) { _ = j.Start() },
			action:  func(j *Job) error { return j.Start() },
		},
		{
			name: "complete twice",
			prepare: func(j *Job) {
				_ = j.Start()
				_ = j.Complete(1)
			},
			action: func(j *Job) error { return j.Complete(1) },
		},
		{
			name: "fail after complete",
			prepare: func(j *Job) {
				_ = j.Start()
				_ = j.Complete(1)
			},
			action: func(j *Job) error { return j.Fail(errors.New("late")) },
		},
		{
			name: "start after fail",
			prepare: func(j *Job) {
				_ = j.Start()
				_ = j.Fail(errors.New("boom"))
			},
			action: func(j *Job) error { return j.Start() },
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			job := NewJob("acme/payments", JobKindPushScan)
			tt.prepare(job)
			assert.Error(t, tt.action(job))
		})
	}
}

func TestJobCompleteRejectsNegativeCount(t *testing.T) {
	t.Parallel()

	job := NewJob("acme/payments", JobKindPushScan)
	require.NoError(t, job.Start())
	assert.Error(t, job.Complete(-1))
	// The failed call must not have changed state.
	assert.Equal(t, JobStatusRunning, job.Status())
}

func TestReconstructJob(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	completed := started.Add(5 * time.Second)
	tl := ReconstructTimeline(started, completed, completed)

	job := ReconstructJob(id, "acme/payments", JobKindPushScan, JobStatusCompleted, 3, "", tl)

	assert.Equal(t, id, job.ID())
	assert.Equal(t, JobStatusCompleted, job.Status())
	assert.Equal(t, 3, job.FindingsCount())
	assert.Equal(t, started, job.Timeline().StartedAt())
	assert.Equal(t, completed, job.Timeline().CompletedAt())
}

func TestJobStatusParsing(t *testing.T) {
	t.Parallel()

	assert.Equal(t, JobStatusRunning, ParseJobStatus("RUNNING"))
	assert.Equal(t, JobStatus(""), ParseJobStatus("bogus"))
	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
	assert.False(t, JobStatusRunning.IsTerminal())
}

func TestParseFindingStatus(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"open", "acknowledged", "resolved", "false_positive"} {
		got, err := ParseFindingStatus(s)
		require.NoError(t, err)
		assert.Equal(t, s, got.String())
	}

	_, err := ParseFindingStatus("closed")
	assert.Error(t, err)
}
