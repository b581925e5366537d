// Package contents fetches repository file contents from source hosting
// providers for scanning.
package contents

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"secintel/internal/domain/scanning"
	"secintel/pkg/common"
	"secintel/pkg/common/logger"
)

const defaultBaseURL = "https://api.github.com"

var _ scanning.ContentFetcher = (*GitHubFetcher)(nil)

// GitHubFetcher retrieves file contents through the GitHub contents API,
// with rate limiting and tracing.
type GitHubFetcher struct {
	httpClient  *http.Client
	rateLimiter *common.RateLimiter
	token       string
	baseURL     string

	logger *logger.Logger
	tracer trace.Tracer
}

// Option configures a GitHubFetcher.
type Option func(*GitHubFetcher)

// WithBaseURL points the fetcher at a different API host, for GitHub
// Enterprise installs and tests.
func WithBaseURL(u string) Option {
	return func(f *GitHubFetcher) { f.baseURL = strings.TrimRight(u, "/") }
}

// NewGitHubFetcher creates a fetcher authenticated with the given token.
// GitHub's default rate limit is 5000 requests per hour; the initial rate is
// set to 4500/hour (1.25/second) to be conservative, then adjusted from the
// rate limit headers on each response.
func NewGitHubFetcher(httpClient *http.Client, token string, log *logger.Logger, tracer trace.Tracer, opts ...Option) *GitHubFetcher {
	f := &GitHubFetcher{
		httpClient:  httpClient,
		rateLimiter: common.NewRateLimiter(1.25, 5),
		token:       token,
		baseURL:     defaultBaseURL,
		logger:      log.With("component", "github_fetcher"),
		tracer:      tracer,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// contentsResponse is the subset of the GitHub contents API response the
// fetcher needs.
type contentsResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	Size     int64  `json:"size"`
}

// FetchFile retrieves one file at a revision and decodes it to text.
// Undecodable bytes are dropped rather than failing the fetch. Transient
// server errors are retried with exponential backoff; authorization
// failures are reported as repository-level errors.
func (f *GitHubFetcher) FetchFile(ctx context.Context, repository, path, ref string) (*scanning.FileContent, error) {
	ctx, span := f.tracer.Start(ctx, "github_fetcher.fetch_file",
		trace.WithAttributes(
			attribute.String("repository", repository),
			attribute.String("path", path),
			attribute.String("ref", ref),
		))
	defer span.End()

	reqURL := fmt.Sprintf("%s/repos/%s/contents/%s?ref=%s",
		f.baseURL, repository, escapePath(path), url.QueryEscape(ref))

	var body []byte
	operation := func() error {
		if err := f.rateLimiter.Wait(ctx); err != nil {
			return backoff.Permanent(fmt.Errorf("rate limiter wait failed: %w", err))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		if f.token != "" {
			req.Header.Set("Authorization", "Bearer "+f.token)
		}
		req.Header.Set("Accept", "application/vnd.github+json")

		resp, err := f.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		f.updateRateLimits(ctx, resp.Header)

		switch {
		case resp.StatusCode == http.StatusOK:
			body, err = io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			return nil
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return backoff.Permanent(fmt.Errorf("%w: %s returned %d",
				scanning.ErrRepositoryUnavailable, repository, resp.StatusCode))
		case resp.StatusCode >= 500:
			// Transient upstream failure, worth retrying.
			return fmt.Errorf("github contents api: %d for %s", resp.StatusCode, path)
		default:
			data, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(fmt.Errorf("github contents api: %d for %s: %s",
				resp.StatusCode, path, strings.TrimSpace(string(data))))
		}
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx)); err != nil {
		span.RecordError(err)
		return nil, err
	}

	var cr contentsResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("decode contents response: %w", err)
	}

	text, err := decodeContent(&cr)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int64("file.size", cr.Size))
	return &scanning.FileContent{Text: text, Size: cr.Size}, nil
}

// decodeContent converts the API payload to text. Base64 content arrives
// with embedded newlines; bytes that are not valid UTF-8 are dropped.
func decodeContent(cr *contentsResponse) (string, error) {
	switch cr.Encoding {
	case "base64":
		raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(cr.Content, "\n", ""))
		if err != nil {
			return "", fmt.Errorf("decode base64 content: %w", err)
		}
		return strings.ToValidUTF8(string(raw), ""), nil
	case "", "none":
		return strings.ToValidUTF8(cr.Content, ""), nil
	default:
		return "", fmt.Errorf("unsupported content encoding %q", cr.Encoding)
	}
}

// escapePath escapes each path segment while keeping the separators.
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// updateRateLimits adjusts the rate limiter from GitHub's rate limit
// headers, targeting 90% of the remaining budget until the window resets.
func (f *GitHubFetcher) updateRateLimits(ctx context.Context, headers http.Header) {
	remaining, _ := strconv.ParseInt(headers.Get("X-RateLimit-Remaining"), 10, 64)
	reset, _ := strconv.ParseInt(headers.Get("X-RateLimit-Reset"), 10, 64)
	limit, _ := strconv.ParseInt(headers.Get("X-RateLimit-Limit"), 10, 64)

	if remaining <= 0 || reset <= 0 || limit <= 0 {
		return
	}

	duration := time.Until(time.Unix(reset, 0))
	if duration <= 0 {
		return
	}

	rps := float64(remaining) * 0.9 / duration.Seconds()
	f.rateLimiter.UpdateLimits(rps, int(rps)+1)
	f.logger.Debug(ctx, "Adjusted rate limits from response headers",
		"requests_per_second", rps,
		"remaining", remaining,
		"reset_in", duration.String(),
	)
}
