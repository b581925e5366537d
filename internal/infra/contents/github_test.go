package contents

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"secintel/internal/domain/scanning"
	"secintel/pkg/common/logger"
)

func newTestFetcher(t *testing.T, handler http.HandlerFunc) *GitHubFetcher {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	log := logger.New(io.Discard, logger.LevelError, "test", nil)
	return NewGitHubFetcher(srv.Client(), "test-token", log, noop.NewTracerProvider().Tracer("test"), WithBaseURL(srv.URL))
}

func contentsJSON(t *testing.T, body string, size int64) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"content":  base64.StdEncoding.EncodeToString([]byte(body)),
		"encoding": "base64",
		"size":     size,
	})
	require.NoError(t, err)
	return payload
}

func TestFetchFileDecodesBase64(t *testing.T) {
	t.Parallel()

	const body = "API_KEY = \"123\"\n"
	f := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/payments/contents/config/settings.py", r.URL.Path)
		assert.Equal(t, "abc123", r.URL.Query().Get("ref"))
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Write(contentsJSON(t, body, int64(len(body))))
	})

	got, err := f.FetchFile(context.Background(), "acme/payments", "config/settings.py", "abc123")
	require.NoError(t, err)
	assert.Equal(t, body, got.Text)
	assert.Equal(t, int64(len(body)), got.Size)
}

func TestFetchFileDropsInvalidUTF8(t *testing.T) {
	t.Parallel()

	raw := append([]byte("hello "), 0xff, 0xfe)
	raw = append(raw, []byte(" world")...)
	f := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		payload, err := json.Marshal(map[string]any{
			"content":  base64.StdEncoding.EncodeToString(raw),
			"encoding": "base64",
			"size":     len(raw),
		})
		require.NoError(t, err)
		w.Write(payload)
	})

	got, err := f.FetchFile(context.Background(), "acme/payments", "data.bin.py", "abc123")
	require.NoError(t, err)
	assert.Equal(t, "hello  world", got.Text)
}

func TestFetchFileNotFound(t *testing.T) {
	t.Parallel()

	f := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	})

	_, err := f.FetchFile(context.Background(), "acme/payments", "missing.py", "abc123")
	require.Error(t, err)
	assert.NotErrorIs(t, err, scanning.ErrRepositoryUnavailable,
		"a missing file is a per-file error, not a repository-level one")
}

func TestFetchFileForbiddenIsRepositoryLevel(t *testing.T) {
	t.Parallel()

	f := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Forbidden"}`, http.StatusForbidden)
	})

	_, err := f.FetchFile(context.Background(), "acme/private", "a.py", "abc123")
	assert.ErrorIs(t, err, scanning.ErrRepositoryUnavailable)
}

func TestFetchFileRetriesServerErrors(t *testing.T) {
	t.Parallel()

	calls := 0
	f := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "bad gateway", http.StatusBadGateway)
			return
		}
		w.Write(contentsJSON(t, "ok", 2))
	})

	got, err := f.FetchFile(context.Background(), "acme/payments", "a.py", "abc123")
	require.NoError(t, err)
	assert.Equal(t, "ok", got.Text)
	assert.Equal(t, 2, calls)
}

func TestFetchFileUnsupportedEncoding(t *testing.T) {
	t.Parallel()

	f := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"content":"","encoding":"gzip","size":10}`)
	})

	_, err := f.FetchFile(context.Background(), "acme/payments", "a.py", "abc123")
	assert.Error(t, err)
}
