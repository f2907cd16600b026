package runstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mofcat/labmill-core/internal/executor"
	"github.com/mofcat/labmill-core/internal/instruments"
	"github.com/mofcat/labmill-core/internal/protocol"
)

// setupTestDB creates an in-memory SQLite database with the run
// history tables.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE runs (
			id TEXT PRIMARY KEY,
			protocol TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'running',
			error TEXT,
			started_at TEXT NOT NULL,
			finished_at TEXT
		) STRICT;
		CREATE TABLE step_results (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			step_index INTEGER NOT NULL,
			kind TEXT NOT NULL,
			instrument TEXT,
			target_ref TEXT,
			error TEXT,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			capture TEXT,
			PRIMARY KEY (run_id, step_index)
		) STRICT;
		CREATE TABLE volume_ledger (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			step_index INTEGER NOT NULL,
			labware TEXT NOT NULL,
			cell TEXT NOT NULL DEFAULT '',
			delta_ul REAL NOT NULL,
			recorded_at TEXT NOT NULL
		) STRICT;
		CREATE INDEX idx_volume_ledger_labware ON volume_ledger(labware, cell);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

var testBase = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

// liquidSteps is a compiled step list with an aspirate from a vial and
// a dispense into a plate well, interleaved with moves.
func liquidSteps() []protocol.Step {
	return []protocol.Step{
		{Index: 0, Kind: protocol.StepMove},
		{
			Index: 1, Kind: protocol.StepCapture,
			Instrument: "pipette_1", Op: protocol.ActionAspirate,
			TargetRef: "vial_rinse",
		},
		{Index: 2, Kind: protocol.StepMove},
		{
			Index: 3, Kind: protocol.StepCapture,
			Instrument: "pipette_1", Op: protocol.ActionDispense,
			TargetRef: "plate_1.A1",
		},
	}
}

// liquidResult is a fully successful execution of liquidSteps.
func liquidResult(runID string) executor.RunResult {
	res := executor.RunResult{
		RunID:    runID,
		Started:  testBase,
		Finished: testBase.Add(8 * time.Second),
	}
	for i, step := range liquidSteps() {
		sr := executor.StepResult{
			Index:    i,
			Kind:     step.Kind,
			Started:  testBase.Add(time.Duration(2*i) * time.Second),
			Finished: testBase.Add(time.Duration(2*i+1) * time.Second),
		}
		if step.Kind == protocol.StepCapture {
			sr.Capture = &instruments.Result{
				Instrument: step.Instrument,
				Kind:       "liquid_transfer",
				Fields:     map[string]any{"volume_ul": 100.0, "total_ul": 100.0},
				Captured:   sr.Finished,
			}
		}
		res.Results = append(res.Results, sr)
	}
	return res
}

func createTestRun(t *testing.T, repo *SQLiteRepository, id string) *Run {
	t.Helper()
	run := &Run{ID: id, Protocol: "rinse_cycle", Started: testBase}
	if err := repo.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	return run
}

func TestCreateRun_AndGet(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	createTestRun(t, repo, "run-1")

	got, err := repo.GetRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.Protocol != "rinse_cycle" {
		t.Errorf("Protocol = %q, want %q", got.Protocol, "rinse_cycle")
	}
	if got.Status != StatusRunning {
		t.Errorf("Status = %q, want %q", got.Status, StatusRunning)
	}
	if !got.Started.Equal(testBase) {
		t.Errorf("Started = %v, want %v", got.Started, testBase)
	}
	if got.Finished != nil {
		t.Errorf("Finished = %v, want nil", got.Finished)
	}
}

func TestCreateRun_Duplicate(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	createTestRun(t, repo, "run-1")

	err := repo.CreateRun(context.Background(), &Run{ID: "run-1", Protocol: "other"})
	if !errors.Is(err, ErrRunExists) {
		t.Errorf("CreateRun() error = %v, want ErrRunExists", err)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	_, err := repo.GetRun(context.Background(), "missing")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun() error = %v, want ErrRunNotFound", err)
	}
}

func TestListRuns_MostRecentFirst(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	for i, id := range []string{"run-a", "run-b", "run-c"} {
		run := &Run{ID: id, Protocol: "rinse_cycle", Started: testBase.Add(time.Duration(i) * time.Minute)}
		if err := repo.CreateRun(ctx, run); err != nil {
			t.Fatalf("CreateRun(%q) error = %v", id, err)
		}
	}

	runs, err := repo.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("len(runs) = %d, want 3", len(runs))
	}
	if runs[0].ID != "run-c" || runs[2].ID != "run-a" {
		t.Errorf("order = [%s %s %s], want [run-c run-b run-a]", runs[0].ID, runs[1].ID, runs[2].ID)
	}
}

func TestSaveResult_PersistsStepsAndLedger(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()
	createTestRun(t, repo, "run-1")

	if err := repo.SaveResult(ctx, liquidSteps(), liquidResult("run-1")); err != nil {
		t.Fatalf("SaveResult() error = %v", err)
	}

	run, err := repo.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != StatusCompleted {
		t.Errorf("Status = %q, want %q", run.Status, StatusCompleted)
	}
	if run.Error != "" {
		t.Errorf("Error = %q, want empty", run.Error)
	}
	if run.Finished == nil || !run.Finished.Equal(testBase.Add(8*time.Second)) {
		t.Errorf("Finished = %v, want %v", run.Finished, testBase.Add(8*time.Second))
	}

	records, err := repo.StepRecords(ctx, "run-1")
	if err != nil {
		t.Fatalf("StepRecords() error = %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("len(records) = %d, want 4", len(records))
	}
	for i, rec := range records {
		if rec.Index != i {
			t.Errorf("records[%d].Index = %d, want %d", i, rec.Index, i)
		}
		if rec.Error != "" {
			t.Errorf("records[%d].Error = %q, want empty", i, rec.Error)
		}
	}
	aspirate := records[1]
	if aspirate.Instrument != "pipette_1" || aspirate.TargetRef != "vial_rinse" {
		t.Errorf("aspirate record = %+v, want instrument pipette_1 target vial_rinse", aspirate)
	}
	if got, ok := aspirate.Capture["volume_ul"].(float64); !ok || got != 100.0 {
		t.Errorf("aspirate capture volume_ul = %v, want 100", aspirate.Capture["volume_ul"])
	}
	if records[0].Capture != nil {
		t.Errorf("move record capture = %v, want nil", records[0].Capture)
	}

	ledger, err := repo.Ledger(ctx, "")
	if err != nil {
		t.Fatalf("Ledger() error = %v", err)
	}
	if len(ledger) != 2 {
		t.Fatalf("len(ledger) = %d, want 2", len(ledger))
	}
	if ledger[0].Labware != "vial_rinse" || ledger[0].Cell != "" || ledger[0].DeltaUL != -100.0 {
		t.Errorf("ledger[0] = %+v, want vial_rinse/-100", ledger[0])
	}
	if ledger[1].Labware != "plate_1" || ledger[1].Cell != "A1" || ledger[1].DeltaUL != 100.0 {
		t.Errorf("ledger[1] = %+v, want plate_1.A1/+100", ledger[1])
	}
}

func TestSaveResult_FilteredLedger(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()
	createTestRun(t, repo, "run-1")

	if err := repo.SaveResult(ctx, liquidSteps(), liquidResult("run-1")); err != nil {
		t.Fatalf("SaveResult() error = %v", err)
	}

	entries, err := repo.Ledger(ctx, "plate_1")
	if err != nil {
		t.Fatalf("Ledger() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Labware != "plate_1" {
		t.Fatalf("Ledger(plate_1) = %+v, want single plate_1 entry", entries)
	}
}

func TestSaveResult_FailedRun(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()
	createTestRun(t, repo, "run-1")

	steps := liquidSteps()
	res := liquidResult("run-1")
	stepErr := errors.New("instrument unavailable")
	res.Results = res.Results[:2]
	res.Results[1].Capture = nil
	res.Results[1].Err = stepErr
	res.Err = &executor.StepError{Index: 1, Err: stepErr}

	if err := repo.SaveResult(ctx, steps, res); err != nil {
		t.Fatalf("SaveResult() error = %v", err)
	}

	run, err := repo.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != StatusFailed {
		t.Errorf("Status = %q, want %q", run.Status, StatusFailed)
	}
	if run.Error == "" {
		t.Error("Error is empty, want failure message")
	}

	records, err := repo.StepRecords(ctx, "run-1")
	if err != nil {
		t.Fatalf("StepRecords() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	if records[1].Error == "" {
		t.Error("failed step record has empty error")
	}

	ledger, err := repo.Ledger(ctx, "")
	if err != nil {
		t.Fatalf("Ledger() error = %v", err)
	}
	if len(ledger) != 0 {
		t.Errorf("len(ledger) = %d, want 0 for failed capture", len(ledger))
	}
}

func TestSaveResult_CancelledRun(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()
	createTestRun(t, repo, "run-1")

	res := liquidResult("run-1")
	res.Results = res.Results[:1]
	res.Err = context.Canceled

	if err := repo.SaveResult(ctx, liquidSteps(), res); err != nil {
		t.Fatalf("SaveResult() error = %v", err)
	}

	run, err := repo.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != StatusCancelled {
		t.Errorf("Status = %q, want %q", run.Status, StatusCancelled)
	}
}

func TestSaveResult_UnknownRun(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	err := repo.SaveResult(context.Background(), liquidSteps(), liquidResult("ghost"))
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("SaveResult() error = %v, want ErrRunNotFound", err)
	}
}

func TestSaveResult_Twice(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()
	createTestRun(t, repo, "run-1")

	if err := repo.SaveResult(ctx, liquidSteps(), liquidResult("run-1")); err != nil {
		t.Fatalf("first SaveResult() error = %v", err)
	}
	err := repo.SaveResult(ctx, liquidSteps(), liquidResult("run-1"))
	if !errors.Is(err, ErrRunFinished) {
		t.Errorf("second SaveResult() error = %v, want ErrRunFinished", err)
	}
}

func TestLevels_SumsAcrossRuns(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	for _, id := range []string{"run-1", "run-2"} {
		createTestRun(t, repo, id)
		if err := repo.SaveResult(ctx, liquidSteps(), liquidResult(id)); err != nil {
			t.Fatalf("SaveResult(%q) error = %v", id, err)
		}
	}

	levels, err := repo.Levels(ctx)
	if err != nil {
		t.Fatalf("Levels() error = %v", err)
	}
	want := map[string]float64{
		"plate_1/A1":  200.0,
		"vial_rinse/": -200.0,
	}
	if len(levels) != len(want) {
		t.Fatalf("len(levels) = %d, want %d", len(levels), len(want))
	}
	for _, l := range levels {
		key := l.Labware + "/" + l.Cell
		if w, ok := want[key]; !ok || l.VolumeUL != w {
			t.Errorf("level %s = %v, want %v", key, l.VolumeUL, want[key])
		}
	}
}
