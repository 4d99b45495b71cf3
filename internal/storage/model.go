package storage

import "time"

// ProcessingResult is one row of the results ledger.
type ProcessingResult struct {
	ID         int64     `db:"id"`
	RunID      string    `db:"run_id"`
	FileName   string    `db:"file_name"`
	Backend    string    `db:"backend"`
	ElapsedMs  int64     `db:"elapsed_ms"`
	ReceivedAt time.Time `db:"received_at"`
}

// BackendSummary aggregates ledger rows per backend.
type BackendSummary struct {
	Backend        string  `db:"backend"`
	Count          int64   `db:"count"`
	TotalElapsedMs int64   `db:"total_elapsed_ms"`
	AvgElapsedMs   float64 `db:"avg_elapsed_ms"`
	MinElapsedMs   int64   `db:"min_elapsed_ms"`
	MaxElapsedMs   int64   `db:"max_elapsed_ms"`
}
