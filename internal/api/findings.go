package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"secintel/internal/domain/scanning"
)

const (
	defaultListDays  = 7
	defaultStatsDays = 30
	defaultListLimit = 100
	maxListLimit     = 1000
	maxDays          = 365
)

// findingResponse is the JSON shape of one finding.
type findingResponse struct {
	ID          string    `json:"id"`
	JobID       string    `json:"job_id"`
	Repository  string    `json:"repository"`
	CommitSHA   string    `json:"commit_sha"`
	SecretType  string    `json:"secret_type"`
	Snippet     string    `json:"snippet"`
	FilePath    string    `json:"file_path"`
	LineNumber  int       `json:"line_number"`
	ColumnStart int       `json:"column_start"`
	ColumnEnd   int       `json:"column_end"`
	Entropy     float64   `json:"entropy"`
	Severity    string    `json:"severity"`
	Confidence  float64   `json:"confidence"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

func toFindingResponse(rec *scanning.FindingRecord) findingResponse {
	return findingResponse{
		ID:          rec.ID.String(),
		JobID:       rec.JobID.String(),
		Repository:  rec.Repository,
		CommitSHA:   rec.CommitSHA,
		SecretType:  rec.SecretType,
		Snippet:     rec.Snippet,
		FilePath:    rec.FilePath,
		LineNumber:  rec.LineNumber,
		ColumnStart: rec.ColumnStart,
		ColumnEnd:   rec.ColumnEnd,
		Entropy:     rec.Entropy,
		Severity:    rec.Severity.String(),
		Confidence:  rec.Confidence,
		Status:      rec.Status.String(),
		CreatedAt:   rec.CreatedAt,
	}
}

// queryInt parses an integer query parameter, clamping to [min, max].
// Missing or unparsable values fall back to def.
func queryInt(r *http.Request, name string, def, min, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func (s *Server) handleListFindings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := scanning.FindingFilter{
		Severity:   q.Get("severity"),
		SecretType: q.Get("secret_type"),
		Status:     q.Get("status"),
		Repository: q.Get("repository"),
		Days:       queryInt(r, "days", defaultListDays, 1, maxDays),
		Limit:      queryInt(r, "limit", defaultListLimit, 1, maxListLimit),
		Offset:     queryInt(r, "offset", 0, 0, 1<<30),
	}

	records, err := s.findings.ListFindings(r.Context(), filter)
	if err != nil {
		s.logger.Error(r.Context(), "failed to list findings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list findings")
		return
	}

	out := make([]findingResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toFindingResponse(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetFinding(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "findingID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid finding id")
		return
	}

	rec, err := s.findings.GetFinding(r.Context(), id)
	if err != nil {
		if errors.Is(err, scanning.ErrFindingNotFound) {
			writeError(w, http.StatusNotFound, "Finding not found")
			return
		}
		s.logger.Error(r.Context(), "failed to get finding", "finding_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get finding")
		return
	}

	writeJSON(w, http.StatusOK, toFindingResponse(rec))
}

func (s *Server) handleFindingStats(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", defaultStatsDays, 1, maxDays)

	stats, err := s.findings.FindingStats(r.Context(), days)
	if err != nil {
		s.logger.Error(r.Context(), "failed to compute finding stats", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_findings": stats.Total,
		"by_severity":    stats.BySeverity,
		"by_type":        stats.BySecretType,
		"by_status":      stats.ByStatus,
		"period_days":    days,
	})
}

func (s *Server) handleUpdateFindingStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "findingID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid finding id")
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	status, err := scanning.ParseFindingStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid status %q", req.Status))
		return
	}

	if err := s.findings.UpdateFindingStatus(ctx, id, status); err != nil {
		if errors.Is(err, scanning.ErrFindingNotFound) {
			writeError(w, http.StatusNotFound, "Finding not found")
			return
		}
		s.logger.Error(ctx, "failed to update finding status", "finding_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update finding")
		return
	}

	s.logger.Info(ctx, "Updated finding status",
		"finding_id", id,
		"new_status", status.String(),
	)

	rec, err := s.findings.GetFinding(ctx, id)
	if err != nil {
		s.logger.Error(ctx, "failed to load finding after update", "finding_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load finding")
		return
	}
	writeJSON(w, http.StatusOK, toFindingResponse(rec))
}
