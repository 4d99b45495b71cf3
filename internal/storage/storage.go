// Package storage is the PostgreSQL ledger of processing results reported to
// the coordinator.
package storage

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/KrzysztofW02/ZTP/internal/messaging"
	"github.com/KrzysztofW02/ZTP/shared/postgresql"
)

//go:embed schema.sql
var schema string

type Storage struct {
	db *sqlx.DB
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		db: pg.GetDB(),
	}
}

// EnsureSchema creates the ledger table and its indexes if missing.
func (s *Storage) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Record stores a result received by the coordinator.
func (s *Storage) Record(ctx context.Context, runID string, r messaging.Result, receivedAt time.Time) error {
	return s.InsertResult(ctx, &ProcessingResult{
		RunID:      runID,
		FileName:   r.FileName,
		Backend:    r.Backend,
		ElapsedMs:  r.ElapsedMillis,
		ReceivedAt: receivedAt,
	})
}

func (s *Storage) InsertResult(ctx context.Context, r *ProcessingResult) error {
	query := `
		INSERT INTO processing_results (
			run_id, file_name, backend, elapsed_ms, received_at
		) VALUES (
			$1, $2, $3, $4, $5
		)
		RETURNING id
	`

	err := s.db.QueryRowxContext(
		ctx,
		query,
		r.RunID,
		r.FileName,
		r.Backend,
		r.ElapsedMs,
		r.ReceivedAt,
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}

	return nil
}

type ResultFilter struct {
	RunID    string
	Backend  string
	FileName string
	PageSize int
	Cursor   *ResultCursor
}

// ResultCursor points just past the last row of the previous page.
type ResultCursor struct {
	ReceivedAt time.Time
	ID         int64
}

// ListResults returns up to PageSize+1 rows, newest first; the extra row
// tells the caller another page exists.
func (s *Storage) ListResults(ctx context.Context, filter ResultFilter) ([]ProcessingResult, error) {
	query, args := buildListQuery(filter)

	var results []ProcessingResult
	if err := s.db.SelectContext(ctx, &results, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}

	return results, nil
}

func buildListQuery(filter ResultFilter) (string, []any) {
	var b strings.Builder
	b.WriteString(`
        SELECT
            id, run_id, file_name, backend, elapsed_ms, received_at
        FROM processing_results
        WHERE 1=1`)

	args := []any{}
	argIdx := 1

	// Filters
	for _, f := range []struct {
		column, value string
	}{
		{"run_id", filter.RunID},
		{"backend", filter.Backend},
		{"file_name", filter.FileName},
	} {
		if f.value == "" {
			continue
		}
		fmt.Fprintf(&b, " AND %s = $%d", f.column, argIdx)
		args = append(args, f.value)
		argIdx++
	}

	if filter.Cursor != nil {
		fmt.Fprintf(&b, " AND (received_at, id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.ReceivedAt, filter.Cursor.ID)
		argIdx += 2
	}

	// Order by received_at DESC, id DESC for consistent pagination
	b.WriteString(" ORDER BY received_at DESC, id DESC")

	// Fetch one extra to determine if there are more results
	fmt.Fprintf(&b, " LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	return b.String(), args
}

// Summarize aggregates results per backend, optionally for one run.
func (s *Storage) Summarize(ctx context.Context, runID string) ([]BackendSummary, error) {
	query, args := buildSummaryQuery(runID)

	var summaries []BackendSummary
	if err := s.db.SelectContext(ctx, &summaries, query, args...); err != nil {
		return nil, fmt.Errorf("failed to summarize results: %w", err)
	}

	return summaries, nil
}

func buildSummaryQuery(runID string) (string, []any) {
	query := `
        SELECT
            backend,
            COUNT(*) AS count,
            COALESCE(SUM(elapsed_ms), 0) AS total_elapsed_ms,
            COALESCE(AVG(elapsed_ms), 0) AS avg_elapsed_ms,
            COALESCE(MIN(elapsed_ms), 0) AS min_elapsed_ms,
            COALESCE(MAX(elapsed_ms), 0) AS max_elapsed_ms
        FROM processing_results`

	var args []any
	if runID != "" {
		query += " WHERE run_id = $1"
		args = append(args, runID)
	}

	query += " GROUP BY backend ORDER BY backend"
	return query, args
}
