package scanning

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"secintel/internal/domain/detection"
	"secintel/internal/domain/events"
	"secintel/internal/domain/scanning"
	"secintel/internal/infra/eventbus/memory"
	findingsmem "secintel/internal/infra/storage/findings/memory"
	scanmem "secintel/internal/infra/storage/scanning/memory"
	"secintel/pkg/common/logger"
)

// noopMetrics satisfies WorkerMetrics without a meter provider.
type noopMetrics struct{}

func (noopMetrics) IncMessagePublished(context.Context, string)     {}
func (noopMetrics) IncMessageConsumed(context.Context, string)      {}
func (noopMetrics) IncPublishError(context.Context, string)         {}
func (noopMetrics) IncConsumeError(context.Context, string)         {}
func (noopMetrics) IncJobsCompleted(context.Context)                {}
func (noopMetrics) IncJobsFailed(context.Context)                   {}
func (noopMetrics) ObserveFindings(context.Context, string, int)    {}
func (noopMetrics) IncFilesScanned(context.Context)                 {}
func (noopMetrics) IncFilesSkipped(context.Context, string)         {}
func (noopMetrics) IncFileErrors(context.Context)                   {}
func (noopMetrics) TrackScanJob(_ context.Context, f func() error) error {
	return f()
}

// fakeFetcher serves file contents from a map keyed by "path@ref".
// Missing keys fail the fetch.
type fakeFetcher struct {
	contents map[string]string
	repoErr  error
}

func (f *fakeFetcher) FetchFile(ctx context.Context, repository, path, ref string) (*scanning.FileContent, error) {
	if f.repoErr != nil {
		return nil, f.repoErr
	}
	text, ok := f.contents[path+"@"+ref]
	if !ok {
		return nil, fmt.Errorf("contents fetch: 404 not found")
	}
	return &scanning.FileContent{Text: text, Size: int64(len(text))}, nil
}

// failingJobStore wraps the memory store and fails updates on demand, to
// exercise the no-ack path when terminal states cannot be recorded.
type failingJobStore struct {
	*scanmem.JobStore
	failUpdate bool
}

func (s *failingJobStore) UpdateJob(ctx context.Context, job *scanning.Job) error {
	if s.failUpdate {
		return errors.New("connection reset")
	}
	return s.JobStore.UpdateJob(ctx, job)
}

type fixture struct {
	orchestrator *Orchestrator
	jobs         *failingJobStore
	findings     *findingsmem.FindingStore
	fetcher      *fakeFetcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	jobs := &failingJobStore{JobStore: scanmem.NewJobStore()}
	findings := findingsmem.NewFindingStore()
	fetcher := &fakeFetcher{contents: make(map[string]string)}
	log := logger.New(io.Discard, logger.LevelError, "test", nil)

	orchestrator := NewOrchestrator(
		detection.NewEngine(detection.DefaultConfig()),
		jobs,
		findings,
		fetcher,
		DefaultConfig(),
		log,
		noop.NewTracerProvider().Tracer("test"),
		noopMetrics{},
	)
	return &fixture{orchestrator: orchestrator, jobs: jobs, findings: findings, fetcher: fetcher}
}

func pushEvent(repo string, commits ...events.Commit) events.EventEnvelope {
	return events.EventEnvelope{
		Type: events.EventTypePush,
		ID:   "evt-1",
		Payload: &events.PushEventPayload{
			Repository: repo,
			Sender:     "octocat",
			Commits:    commits,
		},
	}
}

func modified(path string, changes int) events.CommitFile {
	return events.CommitFile{Path: path, Status: events.FileStatusModified, Changes: changes}
}

const secretLine = "aws_key = \"wJalrXUtnFEMI/K7MDENG/bPxRfiCYSTAGINGKEY1\"\n"

func TestHandleEventCompletesAndAcks(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.fetcher.contents["config/settings.py@sha1"] = secretLine

	acked := false
	var ackErr error
	err := f.orchestrator.HandleEvent(context.Background(),
		pushEvent("acme/payments", events.Commit{SHA: "sha1", Files: []events.CommitFile{modified("config/settings.py", 5)}}),
		func(err error) { acked = true; ackErr = err },
	)
	require.NoError(t, err)
	require.True(t, acked)
	assert.NoError(t, ackErr)

	jobs := f.jobs.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, scanning.JobStatusCompleted, jobs[0].Status())

	records := f.findings.Records()
	require.NotEmpty(t, records)
	assert.Equal(t, jobs[0].FindingsCount(), len(records))
	assert.Equal(t, "acme/payments", records[0].Repository)
	assert.Equal(t, "sha1", records[0].CommitSHA)
}

func TestHandleEventOneFileFailsOthersStillScan(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.fetcher.contents["a.py@sha1"] = secretLine
	f.fetcher.contents["c.py@sha1"] = secretLine
	// b.py has no content registered, its fetch fails.

	acked := false
	err := f.orchestrator.HandleEvent(context.Background(),
		pushEvent("acme/payments", events.Commit{SHA: "sha1", Files: []events.CommitFile{
			modified("a.py", 5), modified("b.py", 5), modified("c.py", 5),
		}}),
		func(err error) { acked = err == nil },
	)
	require.NoError(t, err)
	require.True(t, acked)

	jobs := f.jobs.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, scanning.JobStatusCompleted, jobs[0].Status(),
		"a single failing file must not fail the job")

	paths := make(map[string]bool)
	for _, rec := range f.findings.Records() {
		paths[rec.FilePath] = true
	}
	assert.True(t, paths["a.py"])
	assert.True(t, paths["c.py"])
	assert.False(t, paths["b.py"])
}

func TestHandleEventRepositoryUnavailableFailsJobAndAcks(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.fetcher.repoErr = fmt.Errorf("%w: repository deleted", scanning.ErrRepositoryUnavailable)

	acked := false
	var ackErr error
	err := f.orchestrator.HandleEvent(context.Background(),
		pushEvent("acme/gone", events.Commit{SHA: "sha1", Files: []events.CommitFile{modified("a.py", 5)}}),
		func(err error) { acked = true; ackErr = err },
	)
	require.NoError(t, err)

	jobs := f.jobs.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, scanning.JobStatusFailed, jobs[0].Status())
	assert.Contains(t, jobs[0].ErrorDetail(), "repository deleted")

	// The failed state was durably recorded, so the event is settled.
	assert.True(t, acked)
	assert.NoError(t, ackErr)
}

func TestHandleEventNoAckWhenTerminalStateNotRecorded(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.fetcher.contents["a.py@sha1"] = secretLine
	f.jobs.failUpdate = true

	var ackErr error
	ackCalled := false
	err := f.orchestrator.HandleEvent(context.Background(),
		pushEvent("acme/payments", events.Commit{SHA: "sha1", Files: []events.CommitFile{modified("a.py", 5)}}),
		func(err error) { ackCalled = true; ackErr = err },
	)
	require.Error(t, err)
	require.True(t, ackCalled)
	assert.Error(t, ackErr, "the broker must keep the event pending")
}

func TestHandleEventCapsCommits(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	var commits []events.Commit
	for i := 0; i < 15; i++ {
		sha := fmt.Sprintf("sha%02d", i)
		f.fetcher.contents[fmt.Sprintf("f%02d.py@%s", i, sha)] = secretLine
		commits = append(commits, events.Commit{
			SHA:   sha,
			Files: []events.CommitFile{modified(fmt.Sprintf("f%02d.py", i), 1)},
		})
	}

	err := f.orchestrator.HandleEvent(context.Background(), pushEvent("acme/payments", commits...), func(error) {})
	require.NoError(t, err)

	shas := make(map[string]bool)
	for _, rec := range f.findings.Records() {
		shas[rec.CommitSHA] = true
	}
	assert.Len(t, shas, 10)
	assert.True(t, shas["sha14"], "the most recent commits are kept")
	assert.False(t, shas["sha00"], "the oldest commits beyond the cap are dropped")
}

func TestHandleEventSkipRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		file events.CommitFile
		body string
	}{
		{
			name: "removed file untouched",
			file: events.CommitFile{Path: "a.py", Status: events.FileStatusRemoved, Changes: 1},
			body: secretLine,
		},
		{
			name: "unscannable extension",
			file: modified("logo.png", 1),
			body: secretLine,
		},
		{
			name: "declared changes over limit",
			file: modified("a.py", 5000),
			body: secretLine,
		},
		{
			name: "fetched size over limit",
			file: modified("a.py", 10),
			body: secretLine + strings.Repeat("x", 11<<20),
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			f.fetcher.contents[tt.file.Path+"@sha1"] = tt.body

			err := f.orchestrator.HandleEvent(context.Background(),
				pushEvent("acme/payments", events.Commit{SHA: "sha1", Files: []events.CommitFile{tt.file}}),
				func(error) {},
			)
			require.NoError(t, err)

			assert.Empty(t, f.findings.Records())
			jobs := f.jobs.Jobs()
			require.Len(t, jobs, 1)
			assert.Equal(t, scanning.JobStatusCompleted, jobs[0].Status())
		})
	}
}

func TestHandleEventUnexpectedPayloadDropped(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	acked := false
	err := f.orchestrator.HandleEvent(context.Background(),
		events.EventEnvelope{Type: events.EventTypePush, Payload: "not a push payload"},
		func(err error) { acked = err == nil },
	)
	require.NoError(t, err)
	assert.True(t, acked)
	assert.Empty(t, f.jobs.Jobs())
}

func TestRedeliveryDuplicatesFindings(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.fetcher.contents["a.py@sha1"] = secretLine

	broker := memory.NewBroker()
	defer broker.Close()

	// First delivery crashes after persisting findings but before the
	// terminal job state is recorded, so the event stays pending.
	f.jobs.failUpdate = true
	require.NoError(t, broker.Subscribe(context.Background(),
		[]events.EventType{events.EventTypePush}, f.orchestrator.HandleEvent))

	err := broker.Publish(context.Background(), events.EventEnvelope{
		Type: events.EventTypePush,
		Payload: events.PushEventPayload{
			Repository: "acme/payments",
			Sender:     "octocat",
			Commits: []events.Commit{
				{SHA: "sha1", Files: []events.CommitFile{modified("a.py", 5)}},
			},
		},
	})
	require.Error(t, err)
	require.Equal(t, 1, broker.PendingCount())
	firstCount := len(f.findings.Records())
	require.NotZero(t, firstCount)

	// Recovery: the store is healthy again and the broker redelivers.
	f.jobs.failUpdate = false
	require.NoError(t, broker.Redeliver(context.Background()))
	require.Zero(t, broker.PendingCount())

	// At-least-once delivery reprocesses from scratch: the findings from
	// the aborted first pass remain alongside the new batch.
	assert.Equal(t, firstCount*2, len(f.findings.Records()))
}
