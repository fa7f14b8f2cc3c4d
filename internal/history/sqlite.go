// Package history persists an audit trail of runs and their per-intent
// outcomes in a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"rmt-go/internal/rmt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// RunSummary is one row of the runs table, as shown by the history
// command.
type RunSummary struct {
	RunID         string
	Mode          string
	Collection    string
	Establishment string
	State         string
	Intents       int
	Succeeded     int
	Failed        int
	StartedAt     time.Time
	FinishedAt    sql.NullTime
}

// Store records finished runs. It is an audit trail, never an input to a
// later run: every invocation re-fetches and re-plans from the remote
// store.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite-backed run-history store.
// path can be a file path or ":memory:" for an in-memory database.
func NewStore(path string) (*Store, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	return &Store{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// This is exported for use in tools and tests that need a properly configured SQLite connection.
// path can be a file path or ":memory:" for an in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// DB exposes the underlying connection for migration checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

// RecordRun persists a finished run report and its per-intent outcomes in
// one transaction.
func (s *Store) RecordRun(report *rmt.RunReport) error {
	ctx := context.Background()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var finishedAt any
	if !report.FinishedAt.IsZero() {
		finishedAt = report.FinishedAt
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, mode, collection, establishment, state, intents, succeeded, failed, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID, report.Mode, report.Collection, report.Scope.Establishment,
		report.State.String(), len(report.Intents), report.Succeeded(), len(report.Failures()),
		report.StartedAt, finishedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	for _, o := range report.Outcomes {
		kind := ""
		if !o.OK {
			kind = o.Kind.String()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO intent_outcomes (run_id, collection, record_id, op, ok, failure_kind, error)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			report.RunID, o.Intent.Collection, o.Intent.RecordID, o.Intent.Op.String(),
			o.OK, kind, o.Err,
		)
		if err != nil {
			return fmt.Errorf("inserting outcome for %s: %w", o.Intent.RecordID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]*RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT id, mode, collection, establishment, state, intents, succeeded, failed, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []*RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.Mode, &r.Collection, &r.Establishment, &r.State,
			&r.Intents, &r.Succeeded, &r.Failed, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

// ListOutcomes returns the recorded outcomes for one run. runID may be a
// unique prefix, as printed by the run listing.
func (s *Store) ListOutcomes(runID string) ([]rmt.IntentOutcome, error) {
	if runID == "" {
		return nil, fmt.Errorf("run ID required")
	}

	rows, err := s.db.Query(`
		SELECT collection, record_id, op, ok, failure_kind, error
		FROM intent_outcomes WHERE run_id LIKE ? || '%' ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []rmt.IntentOutcome
	for rows.Next() {
		var (
			o    rmt.IntentOutcome
			op   string
			kind string
		)
		if err := rows.Scan(&o.Intent.Collection, &o.Intent.RecordID, &op, &o.OK, &kind, &o.Err); err != nil {
			return nil, fmt.Errorf("scanning outcome: %w", err)
		}
		o.Intent.Op = parseOp(op)
		o.Kind = parseFailureKind(kind)
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating outcomes: %w", err)
	}
	return outcomes, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func parseOp(s string) rmt.Op {
	switch s {
	case "clear-fields":
		return rmt.OpClearFields
	case "archive-copy":
		return rmt.OpArchiveCopy
	default:
		return rmt.OpDelete
	}
}

func parseFailureKind(s string) rmt.FailureKind {
	switch s {
	case "unavailable":
		return rmt.FailureUnavailable
	case "rejected":
		return rmt.FailureRejected
	default:
		return rmt.FailureNone
	}
}
