package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"secintel/internal/domain/events"
)

// 1 MiB is far beyond any legitimate webhook delivery.
const maxWebhookBody = 1 << 20

// githubRepository is the subset of the webhook repository object we read.
type githubRepository struct {
	FullName string `json:"full_name"`
}

type githubSender struct {
	Login string `json:"login"`
}

// githubPushEvent mirrors the push delivery shape. Commits list changed
// files as separate added/modified/removed path arrays.
type githubPushEvent struct {
	Ref        string           `json:"ref"`
	Repository githubRepository `json:"repository"`
	Sender     githubSender     `json:"sender"`
	Commits    []struct {
		ID       string   `json:"id"`
		Message  string   `json:"message"`
		Added    []string `json:"added"`
		Modified []string `json:"modified"`
		Removed  []string `json:"removed"`
	} `json:"commits"`
}

type githubPullRequestEvent struct {
	Action      string           `json:"action"`
	Number      int              `json:"number"`
	Repository  githubRepository `json:"repository"`
	Sender      githubSender     `json:"sender"`
	PullRequest struct {
		Head struct {
			SHA string `json:"sha"`
		} `json:"head"`
	} `json:"pull_request"`
}

type githubReleaseEvent struct {
	Action     string           `json:"action"`
	Repository githubRepository `json:"repository"`
	Sender     githubSender     `json:"sender"`
	Release    struct {
		TagName string `json:"tag_name"`
	} `json:"release"`
}

type githubSecurityAdvisoryEvent struct {
	Action   string       `json:"action"`
	Sender   githubSender `json:"sender"`
	Advisory struct {
		Summary  string `json:"summary"`
		Severity string `json:"severity"`
	} `json:"security_advisory"`
}

// verifySignature checks the X-Hub-Signature-256 header against the raw
// body. An unset secret disables verification.
func (s *Server) verifySignature(body []byte, signature string) bool {
	if s.cfg.WebhookSecret == "" {
		return true
	}
	if signature == "" {
		return false
	}

	algorithm, hexDigest, found := strings.Cut(signature, "=")
	if !found || algorithm != "sha256" {
		return false
	}

	expected, err := hex.DecodeString(hexDigest)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(s.cfg.WebhookSecret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}

func (s *Server) handleGitHubWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	eventName := r.Header.Get("X-GitHub-Event")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if s.cfg.WebhookSecret == "" {
		s.logger.Warn(ctx, "webhook secret not configured, skipping signature verification")
	}
	if !s.verifySignature(body, r.Header.Get("X-Hub-Signature-256")) {
		s.logger.Warn(ctx, "invalid webhook signature", "event_type", eventName)
		if s.metrics != nil {
			s.metrics.IncWebhookRejected(ctx, "invalid_signature")
		}
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	eventType := events.ParseEventType(eventName)
	if eventType == "" {
		s.logger.Debug(ctx, "ignored unsupported event type", "event_type", eventName)
		writeJSON(w, http.StatusAccepted, map[string]string{
			"status": "ignored",
			"event":  eventName,
		})
		return
	}

	payload, repository, err := parseWebhookPayload(eventType, body)
	if err != nil {
		s.logger.Error(ctx, "failed to parse webhook payload",
			"event_type", eventName, "error", err)
		if s.metrics != nil {
			s.metrics.IncWebhookRejected(ctx, "malformed_payload")
		}
		writeError(w, http.StatusBadRequest, "malformed payload")
		return
	}

	s.logger.Info(ctx, "Received GitHub webhook",
		"event_type", eventName,
		"repository", repository,
	)

	envelope := events.EventEnvelope{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	if err := s.eventBus.Publish(ctx, envelope, events.WithKey(repository)); err != nil {
		s.logger.Error(ctx, "failed to publish webhook event",
			"event_type", eventName, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to publish event")
		return
	}

	if s.metrics != nil {
		s.metrics.IncWebhookReceived(ctx, eventName)
	}
	s.logger.Info(ctx, "Published event to stream",
		"event_type", eventName,
		"repository", repository,
	)

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"event":  eventName,
	})
}

// parseWebhookPayload converts a raw delivery into the typed payload that
// goes on the stream, returning the repository name used as partition key.
func parseWebhookPayload(eventType events.EventType, body []byte) (any, string, error) {
	switch eventType {
	case events.EventTypePush:
		var raw githubPushEvent
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, "", fmt.Errorf("decoding push event: %w", err)
		}

		payload := events.PushEventPayload{
			Repository: raw.Repository.FullName,
			Sender:     raw.Sender.Login,
			Ref:        raw.Ref,
			Commits:    make([]events.Commit, 0, len(raw.Commits)),
		}
		for _, c := range raw.Commits {
			commit := events.Commit{SHA: c.ID, Message: c.Message}
			for _, p := range c.Added {
				commit.Files = append(commit.Files, events.CommitFile{Path: p, Status: events.FileStatusAdded})
			}
			for _, p := range c.Modified {
				commit.Files = append(commit.Files, events.CommitFile{Path: p, Status: events.FileStatusModified})
			}
			for _, p := range c.Removed {
				commit.Files = append(commit.Files, events.CommitFile{Path: p, Status: events.FileStatusRemoved})
			}
			payload.Commits = append(payload.Commits, commit)
		}
		return payload, payload.Repository, nil

	case events.EventTypePullRequest:
		var raw githubPullRequestEvent
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, "", fmt.Errorf("decoding pull request event: %w", err)
		}
		return events.PullRequestEventPayload{
			Repository: raw.Repository.FullName,
			Sender:     raw.Sender.Login,
			Action:     raw.Action,
			Number:     raw.Number,
			HeadSHA:    raw.PullRequest.Head.SHA,
		}, raw.Repository.FullName, nil

	case events.EventTypeRelease:
		var raw githubReleaseEvent
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, "", fmt.Errorf("decoding release event: %w", err)
		}
		return events.ReleaseEventPayload{
			Repository: raw.Repository.FullName,
			Sender:     raw.Sender.Login,
			Action:     raw.Action,
			TagName:    raw.Release.TagName,
		}, raw.Repository.FullName, nil

	case events.EventTypeSecurityAdvisory:
		var raw githubSecurityAdvisoryEvent
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, "", fmt.Errorf("decoding security advisory event: %w", err)
		}
		return events.SecurityAdvisoryEventPayload{
			Sender:   raw.Sender.Login,
			Action:   raw.Action,
			Summary:  raw.Advisory.Summary,
			Severity: raw.Advisory.Severity,
		}, "security-advisories", nil

	default:
		return nil, "", fmt.Errorf("unsupported event type %q", eventType)
	}
}

func (s *Server) handleWebhookTest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "GitHub webhook endpoint is ready",
		"webhook_url": "/api/v1/webhooks/github",
		"supported_events": []string{
			string(events.EventTypePush),
			string(events.EventTypePullRequest),
			string(events.EventTypeRelease),
			string(events.EventTypeSecurityAdvisory),
		},
	})
}
