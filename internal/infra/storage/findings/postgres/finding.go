// Package postgres provides PostgreSQL-backed persistence for findings.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"secintel/internal/domain/detection"
	"secintel/internal/domain/scanning"
	"secintel/internal/infra/storage"
)

var _ scanning.FindingRepository = (*findingStore)(nil)

// findingStore implements scanning.FindingRepository using PostgreSQL as the
// backing store.
type findingStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewFindingStore creates a new PostgreSQL-backed finding repository with
// tracing capabilities.
func NewFindingStore(pool *pgxpool.Pool, tracer trace.Tracer) *findingStore {
	return &findingStore{db: pool, tracer: tracer}
}

var defaultDBAttributes = []attribute.KeyValue{
	attribute.String("db.system", "postgresql"),
}

// SaveFindings stores a batch of finding records in one round trip using
// COPY. An empty batch is a no-op.
func (r *findingStore) SaveFindings(ctx context.Context, records []*scanning.FindingRecord) error {
	if len(records) == 0 {
		return nil
	}

	dbAttrs := append(defaultDBAttributes, attribute.Int("batch_size", len(records)))

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.save_findings", dbAttrs, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		rows := make([][]any, 0, len(records))
		for _, rec := range records {
			rows = append(rows, []any{
				pgtype.UUID{Bytes: rec.ID, Valid: true},
				pgtype.UUID{Bytes: rec.JobID, Valid: true},
				rec.Repository,
				rec.CommitSHA,
				rec.SecretType,
				rec.Snippet,
				rec.FilePath,
				rec.LineNumber,
				rec.ColumnStart,
				rec.ColumnEnd,
				rec.Entropy,
				rec.Severity.String(),
				rec.Confidence,
				string(rec.Status),
				rec.CreatedAt,
			})
		}

		_, err := r.db.CopyFrom(ctx,
			pgx.Identifier{"findings"},
			[]string{
				"id", "job_id", "repository", "commit_sha", "secret_type",
				"snippet", "file_path", "line_number", "column_start", "column_end",
				"entropy", "severity", "confidence", "status", "created_at",
			},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("copy findings: %w", err)
		}
		return nil
	})
}

const findingColumns = `id, job_id, repository, commit_sha, secret_type, snippet, file_path,
	line_number, column_start, column_end, entropy, severity, confidence, status, created_at`

// ListFindings returns records matching the filter, newest first.
func (r *findingStore) ListFindings(ctx context.Context, filter scanning.FindingFilter) ([]*scanning.FindingRecord, error) {
	var records []*scanning.FindingRecord

	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.list_findings", defaultDBAttributes, func(ctx context.Context) error {
		var sb strings.Builder
		sb.WriteString("SELECT ")
		sb.WriteString(findingColumns)
		sb.WriteString(" FROM findings")

		var (
			conds []string
			args  []any
		)
		addCond := func(cond string, arg any) {
			args = append(args, arg)
			conds = append(conds, fmt.Sprintf(cond, len(args)))
		}

		if filter.Severity != "" {
			addCond("severity = $%d", filter.Severity)
		}
		if filter.SecretType != "" {
			addCond("secret_type = $%d", filter.SecretType)
		}
		if filter.Status != "" {
			addCond("status = $%d", filter.Status)
		}
		if filter.Repository != "" {
			addCond("repository = $%d", filter.Repository)
		}
		if filter.Days > 0 {
			addCond("created_at >= $%d", time.Now().UTC().AddDate(0, 0, -filter.Days))
		}

		if len(conds) > 0 {
			sb.WriteString(" WHERE ")
			sb.WriteString(strings.Join(conds, " AND "))
		}
		sb.WriteString(" ORDER BY created_at DESC")

		if filter.Limit > 0 {
			args = append(args, filter.Limit)
			fmt.Fprintf(&sb, " LIMIT $%d", len(args))
		}
		if filter.Offset > 0 {
			args = append(args, filter.Offset)
			fmt.Fprintf(&sb, " OFFSET $%d", len(args))
		}

		rows, err := r.db.Query(ctx, sb.String(), args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := scanFindingRow(rows)
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// GetFinding retrieves a record by ID.
func (r *findingStore) GetFinding(ctx context.Context, id uuid.UUID) (*scanning.FindingRecord, error) {
	dbAttrs := append(defaultDBAttributes, attribute.String("finding_id", id.String()))

	var record *scanning.FindingRecord
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.get_finding", dbAttrs, func(ctx context.Context) error {
		rows, err := r.db.Query(ctx,
			"SELECT "+findingColumns+" FROM findings WHERE id = $1",
			pgtype.UUID{Bytes: id, Valid: true},
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		if !rows.Next() {
			if err := rows.Err(); err != nil {
				return err
			}
			return scanning.ErrFindingNotFound
		}
		record, err = scanFindingRow(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// UpdateFindingStatus changes the triage status of a record.
func (r *findingStore) UpdateFindingStatus(ctx context.Context, id uuid.UUID, status scanning.FindingStatus) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("finding_id", id.String()),
		attribute.String("status", string(status)),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.update_finding_status", dbAttrs, func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx,
			"UPDATE findings SET status = $2 WHERE id = $1",
			pgtype.UUID{Bytes: id, Valid: true},
			string(status),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return scanning.ErrFindingNotFound
		}
		return nil
	})
}

// FindingStats aggregates counts over findings created within the last N
// days. days <= 0 means all time.
func (r *findingStore) FindingStats(ctx context.Context, days int) (*scanning.FindingStats, error) {
	dbAttrs := append(defaultDBAttributes, attribute.Int("days", days))

	stats := &scanning.FindingStats{
		BySeverity:   make(map[string]int),
		BySecretType: make(map[string]int),
		ByStatus:     make(map[string]int),
	}

	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.finding_stats", dbAttrs, func(ctx context.Context) error {
		var (
			cond string
			args []any
		)
		if days > 0 {
			cond = " WHERE created_at >= $1"
			args = append(args, time.Now().UTC().AddDate(0, 0, -days))
		}

		if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM findings"+cond, args...).Scan(&stats.Total); err != nil {
			return err
		}

		for col, dest := range map[string]map[string]int{
			"severity":    stats.BySeverity,
			"secret_type": stats.BySecretType,
			"status":      stats.ByStatus,
		} {
			rows, err := r.db.Query(ctx,
				fmt.Sprintf("SELECT %s, COUNT(*) FROM findings%s GROUP BY %s", col, cond, col),
				args...,
			)
			if err != nil {
				return err
			}
			for rows.Next() {
				var key string
				var count int
				if err := rows.Scan(&key, &count); err != nil {
					rows.Close()
					return err
				}
				dest[key] = count
			}
			rows.Close()
			if err := rows.Err(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func scanFindingRow(rows pgx.Rows) (*scanning.FindingRecord, error) {
	var (
		id         pgtype.UUID
		jobID      pgtype.UUID
		repository string
		commitSHA  string
		secretType string
		snippet    string
		filePath   string
		lineNumber int
		colStart   int
		colEnd     int
		entropy    float64
		severity   string
		confidence float64
		status     string
		createdAt  time.Time
	)
	if err := rows.Scan(
		&id, &jobID, &repository, &commitSHA, &secretType, &snippet, &filePath,
		&lineNumber, &colStart, &colEnd, &entropy, &severity, &confidence, &status, &createdAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, scanning.ErrFindingNotFound
		}
		return nil, err
	}

	sev := detection.ParseSeverity(severity)
	if sev == "" {
		return nil, fmt.Errorf("stored finding %s: unknown severity %q", uuid.UUID(id.Bytes), severity)
	}
	fStatus, err := scanning.ParseFindingStatus(status)
	if err != nil {
		return nil, fmt.Errorf("stored finding %s: %w", uuid.UUID(id.Bytes), err)
	}

	return &scanning.FindingRecord{
		ID:         uuid.UUID(id.Bytes),
		JobID:      uuid.UUID(jobID.Bytes),
		Repository: repository,
		CommitSHA:  commitSHA,
		Finding: detection.Finding{
			SecretType:  secretType,
			Snippet:     snippet,
			FilePath:    filePath,
			LineNumber:  lineNumber,
			ColumnStart: colStart,
			ColumnEnd:   colEnd,
			Entropy:     entropy,
			Severity:    sev,
			Confidence:  confidence,
		},
		Status:    fStatus,
		CreatedAt: createdAt,
	}, nil
}
