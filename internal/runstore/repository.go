package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mofcat/labmill-core/internal/executor"
	"github.com/mofcat/labmill-core/internal/protocol"
)

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection with the
// runs, step_results and volume_ledger tables installed.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// CreateRun inserts a new run with StatusRunning.
func (r *SQLiteRepository) CreateRun(ctx context.Context, run *Run) error {
	if run.Started.IsZero() {
		run.Started = time.Now().UTC()
	}
	run.Status = StatusRunning

	query := `
		INSERT INTO runs (id, protocol, status, error, started_at, finished_at)
		VALUES (?, ?, ?, NULL, ?, NULL)`

	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.Protocol,
		string(run.Status),
		run.Started.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrRunExists
		}
		return fmt.Errorf("inserting run: %w", err)
	}

	return nil
}

// GetRun retrieves a run by ID.
func (r *SQLiteRepository) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `
		SELECT id, protocol, status, error, started_at, finished_at
		FROM runs
		WHERE id = ?`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("querying run by id: %w", err)
	}
	return run, nil
}

// ListRuns retrieves all runs, most recent first.
func (r *SQLiteRepository) ListRuns(ctx context.Context) ([]Run, error) {
	query := `
		SELECT id, protocol, status, error, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}

	return runs, nil
}

// SaveResult persists the outcome of an executed run in a single
// transaction.
func (r *SQLiteRepository) SaveResult(ctx context.Context, steps []protocol.Step, result executor.RunResult) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var status string
	err = tx.QueryRowContext(ctx,
		"SELECT status FROM runs WHERE id = ?", result.RunID,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrRunNotFound
	}
	if err != nil {
		return fmt.Errorf("querying run status: %w", err)
	}
	if Status(status) != StatusRunning {
		return ErrRunFinished
	}

	records, ledger := recordsFromResult(steps, result)

	for i := range records {
		if err := insertStepRecord(ctx, tx, &records[i]); err != nil {
			return err
		}
	}
	for i := range ledger {
		if err := insertLedgerEntry(ctx, tx, &ledger[i]); err != nil {
			return err
		}
	}

	terminal, errMsg := statusOf(result)
	_, err = tx.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, error = ?, finished_at = ?
		WHERE id = ?`,
		string(terminal),
		nullableString(errMsg),
		result.Finished.UTC().Format(time.RFC3339),
		result.RunID,
	)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run result: %w", err)
	}

	return nil
}

// StepRecords retrieves the step records of a run in step order.
func (r *SQLiteRepository) StepRecords(ctx context.Context, runID string) ([]StepRecord, error) {
	query := `
		SELECT run_id, step_index, kind, instrument, target_ref, error,
			started_at, finished_at, capture
		FROM step_results
		WHERE run_id = ?
		ORDER BY step_index`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("querying step records: %w", err)
	}
	defer rows.Close()

	var records []StepRecord
	for rows.Next() {
		rec, err := scanStepRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning step record: %w", err)
		}
		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating step records: %w", err)
	}

	return records, nil
}

// Ledger retrieves ledger entries for a labware item in insertion
// order. Empty labware retrieves the full ledger.
func (r *SQLiteRepository) Ledger(ctx context.Context, labware string) ([]LedgerEntry, error) {
	query := `
		SELECT id, run_id, step_index, labware, cell, delta_ul, recorded_at
		FROM volume_ledger`
	var args []any
	if labware != "" {
		query += " WHERE labware = ?"
		args = append(args, labware)
	}
	query += " ORDER BY id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying ledger: %w", err)
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		var recorded string
		err := rows.Scan(&e.ID, &e.RunID, &e.StepIndex, &e.Labware, &e.Cell, &e.DeltaUL, &recorded)
		if err != nil {
			return nil, fmt.Errorf("scanning ledger entry: %w", err)
		}
		e.Recorded, err = time.Parse(time.RFC3339, recorded)
		if err != nil {
			return nil, fmt.Errorf("parsing recorded_at: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ledger: %w", err)
	}

	return entries, nil
}

// Levels derives the net volume per labware cell from the ledger.
func (r *SQLiteRepository) Levels(ctx context.Context) ([]Level, error) {
	query := `
		SELECT labware, cell, SUM(delta_ul)
		FROM volume_ledger
		GROUP BY labware, cell
		ORDER BY labware, cell`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying levels: %w", err)
	}
	defer rows.Close()

	var levels []Level
	for rows.Next() {
		var l Level
		if err := rows.Scan(&l.Labware, &l.Cell, &l.VolumeUL); err != nil {
			return nil, fmt.Errorf("scanning level: %w", err)
		}
		levels = append(levels, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating levels: %w", err)
	}

	return levels, nil
}

// execer is the subset of sql.Tx and sql.DB the insert helpers need.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertStepRecord(ctx context.Context, ex execer, rec *StepRecord) error {
	var captureJSON sql.NullString
	if rec.Capture != nil {
		b, err := json.Marshal(rec.Capture)
		if err != nil {
			return fmt.Errorf("marshalling capture: %w", err)
		}
		captureJSON = sql.NullString{String: string(b), Valid: true}
	}

	query := `
		INSERT INTO step_results (
			run_id, step_index, kind, instrument, target_ref, error,
			started_at, finished_at, capture
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := ex.ExecContext(ctx, query,
		rec.RunID,
		rec.Index,
		string(rec.Kind),
		nullableString(rec.Instrument),
		nullableString(rec.TargetRef),
		nullableString(rec.Error),
		rec.Started.UTC().Format(time.RFC3339),
		rec.Finished.UTC().Format(time.RFC3339),
		captureJSON,
	)
	if err != nil {
		return fmt.Errorf("inserting step record: %w", err)
	}

	return nil
}

func insertLedgerEntry(ctx context.Context, ex execer, e *LedgerEntry) error {
	query := `
		INSERT INTO volume_ledger (
			run_id, step_index, labware, cell, delta_ul, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?)`

	_, err := ex.ExecContext(ctx, query,
		e.RunID,
		e.StepIndex,
		e.Labware,
		e.Cell,
		e.DeltaUL,
		e.Recorded.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting ledger entry: %w", err)
	}

	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(scanner rowScanner) (*Run, error) {
	var run Run
	var status string
	var errMsg, finished sql.NullString
	var started string

	err := scanner.Scan(&run.ID, &run.Protocol, &status, &errMsg, &started, &finished)
	if err != nil {
		return nil, err
	}

	run.Status = Status(status)
	if errMsg.Valid {
		run.Error = errMsg.String
	}

	run.Started, err = time.Parse(time.RFC3339, started)
	if err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	if finished.Valid {
		t, err := time.Parse(time.RFC3339, finished.String)
		if err != nil {
			return nil, fmt.Errorf("parsing finished_at: %w", err)
		}
		run.Finished = &t
	}

	return &run, nil
}

func scanStepRecord(scanner rowScanner) (*StepRecord, error) {
	var rec StepRecord
	var kind string
	var instrument, targetRef, errMsg, captureJSON sql.NullString
	var started, finished string

	err := scanner.Scan(
		&rec.RunID,
		&rec.Index,
		&kind,
		&instrument,
		&targetRef,
		&errMsg,
		&started,
		&finished,
		&captureJSON,
	)
	if err != nil {
		return nil, err
	}

	rec.Kind = protocol.StepKind(kind)
	if instrument.Valid {
		rec.Instrument = instrument.String
	}
	if targetRef.Valid {
		rec.TargetRef = targetRef.String
	}
	if errMsg.Valid {
		rec.Error = errMsg.String
	}

	rec.Started, err = time.Parse(time.RFC3339, started)
	if err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	rec.Finished, err = time.Parse(time.RFC3339, finished)
	if err != nil {
		return nil, fmt.Errorf("parsing finished_at: %w", err)
	}

	if captureJSON.Valid && captureJSON.String != "" {
		if err := json.Unmarshal([]byte(captureJSON.String), &rec.Capture); err != nil {
			return nil, fmt.Errorf("unmarshalling capture: %w", err)
		}
	}

	return &rec, nil
}

// nullableString returns a sql.NullString that stores NULL for empty
// strings.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// isUniqueConstraintError checks if an error is a SQLite unique or
// primary key constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}
