package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/iksnae/copilot-archive/internal"
)

// ScanCounts aggregates one scan run's outcome.
type ScanCounts struct {
	Added     int `json:"added"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

// ScanRun is one recorded scan, current or historical.
type ScanRun struct {
	ID         string `json:"id"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
	FullRescan bool   `json:"full_rescan"`
	ScanCounts
}

// BeginScan records the start of a scan run and returns its id for the
// per-file audit rows.
func (s *Store) BeginScan(ctx context.Context, fullRescan bool) (string, error) {
	id := uuid.NewString()
	full := 0
	if fullRescan {
		full = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scan_runs (id, started_at, full_rescan) VALUES (?, ?, ?)`,
		id, time.Now().UTC().Format(time.RFC3339), full)
	if err != nil {
		return "", &internal.StoreError{Op: "ingest", Err: err}
	}
	return id, nil
}

// RecordScanFile logs one artifact's outcome under a scan run. Status
// is added, updated, unchanged, skipped, or error; detail carries the
// reason for skips and errors.
func (s *Store) RecordScanFile(ctx context.Context, scanID, path, status, detail string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scan_files (scan_id, path, status, detail) VALUES (?, ?, ?, ?)`,
		scanID, path, status, nullable(detail))
	if err != nil {
		return &internal.StoreError{Op: "ingest", Err: err}
	}
	return nil
}

// FinishScan closes out a scan run with its final counters.
func (s *Store) FinishScan(ctx context.Context, scanID string, counts ScanCounts) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scan_runs
		SET finished_at = ?, added = ?, updated = ?, unchanged = ?, skipped = ?, errors = ?
		WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339),
		counts.Added, counts.Updated, counts.Unchanged, counts.Skipped, counts.Errors, scanID)
	if err != nil {
		return &internal.StoreError{Op: "ingest", Err: err}
	}
	return nil
}

// LastScan returns the most recent scan run, or nil when the archive
// has never been scanned.
func (s *Store) LastScan(ctx context.Context) (*ScanRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, full_rescan, added, updated, unchanged, skipped, errors
		FROM scan_runs ORDER BY started_at DESC, id LIMIT 1`)

	var run ScanRun
	var finished sql.NullString
	var full int
	err := row.Scan(&run.ID, &run.StartedAt, &finished, &full,
		&run.Added, &run.Updated, &run.Unchanged, &run.Skipped, &run.Errors)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &internal.StoreError{Op: "query", Err: err}
	}
	run.FinishedAt = finished.String
	run.FullRescan = full != 0
	return &run, nil
}
