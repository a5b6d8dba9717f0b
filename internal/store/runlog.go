// Package store persists run statistics to SQLite so completed
// collection runs can be inspected after the fact.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// RunRecord summarizes one pipeline run.
type RunRecord struct {
	RunID      string
	SinkPath   string
	StartedAt  time.Time
	FinishedAt time.Time

	FilesScanned   int
	ParseFailures  int
	Candidates     int
	BelowFloor     int
	Artifacts      int
	Timeouts       int
	RuntimeFails   int
	MalformedOut   int
	InvalidDOT     int
	Duplicates     int
	RecordsWritten int
}

// Failure is one per-candidate failure event.
type Failure struct {
	RunID   string
	Path    string
	Line    int
	Stage   string
	Message string
}

// RunLog is the SQLite-backed run-statistics store.
type RunLog struct {
	db *sql.DB
}

// Open opens (or creates) the run log database.
func Open(path string) (*RunLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return &RunLog{db: db}, nil
}

// Init creates the schema.
func (l *RunLog) Init(ctx context.Context) error {
	ddl := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL UNIQUE,
			sink_path TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			files_scanned INTEGER NOT NULL,
			parse_failures INTEGER NOT NULL,
			candidates INTEGER NOT NULL,
			below_floor INTEGER NOT NULL,
			artifacts INTEGER NOT NULL,
			timeouts INTEGER NOT NULL,
			runtime_failures INTEGER NOT NULL,
			malformed_output INTEGER NOT NULL,
			invalid_dot INTEGER NOT NULL,
			duplicates INTEGER NOT NULL,
			records_written INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS failures (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			file_path TEXT NOT NULL,
			line INTEGER NOT NULL,
			stage TEXT NOT NULL,
			message TEXT,
			created_at TEXT NOT NULL,
			FOREIGN KEY(run_id) REFERENCES runs(run_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_failures_run_id ON failures(run_id);`,
	}
	for _, stmt := range ddl {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// SaveRun inserts a completed run summary.
func (l *RunLog) SaveRun(ctx context.Context, r RunRecord) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO runs (
			run_id, sink_path, started_at, finished_at,
			files_scanned, parse_failures, candidates, below_floor,
			artifacts, timeouts, runtime_failures, malformed_output,
			invalid_dot, duplicates, records_written
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.SinkPath,
		r.StartedAt.UTC().Format(time.RFC3339),
		r.FinishedAt.UTC().Format(time.RFC3339),
		r.FilesScanned, r.ParseFailures, r.Candidates, r.BelowFloor,
		r.Artifacts, r.Timeouts, r.RuntimeFails, r.MalformedOut,
		r.InvalidDOT, r.Duplicates, r.RecordsWritten,
	)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// SaveFailures inserts per-candidate failure events for a run.
func (l *RunLog) SaveFailures(ctx context.Context, failures []Failure) error {
	if len(failures) == 0 {
		return nil
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin failures tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO failures (run_id, file_path, line, stage, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare failures insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, f := range failures {
		if _, err := stmt.ExecContext(ctx, f.RunID, f.Path, f.Line, f.Stage, f.Message, now); err != nil {
			return fmt.Errorf("insert failure: %w", err)
		}
	}
	return tx.Commit()
}

// ListRuns returns run summaries, newest first.
func (l *RunLog) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT run_id, sink_path, started_at, finished_at,
			files_scanned, parse_failures, candidates, below_floor,
			artifacts, timeouts, runtime_failures, malformed_output,
			invalid_dot, duplicates, records_written
		FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var started, finished string
		if err := rows.Scan(&r.RunID, &r.SinkPath, &started, &finished,
			&r.FilesScanned, &r.ParseFailures, &r.Candidates, &r.BelowFloor,
			&r.Artifacts, &r.Timeouts, &r.RuntimeFails, &r.MalformedOut,
			&r.InvalidDOT, &r.Duplicates, &r.RecordsWritten); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database.
func (l *RunLog) Close() error {
	return l.db.Close()
}
