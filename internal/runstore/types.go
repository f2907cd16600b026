package runstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mofcat/labmill-core/internal/executor"
	"github.com/mofcat/labmill-core/internal/protocol"
)

// Status is the lifecycle state of a run.
type Status string

const (
	// StatusRunning marks a run that has started but not yet finished.
	StatusRunning Status = "running"

	// StatusCompleted marks a run where every step succeeded.
	StatusCompleted Status = "completed"

	// StatusFailed marks a run halted by a step failure.
	StatusFailed Status = "failed"

	// StatusCancelled marks a run stopped by context cancellation
	// between steps.
	StatusCancelled Status = "cancelled"
)

// Run is one execution of a compiled protocol.
type Run struct {
	ID       string
	Protocol string
	Status   Status

	// Error holds the failure message for failed runs, empty otherwise.
	Error string

	Started time.Time

	// Finished is nil while the run is in progress.
	Finished *time.Time
}

// StepRecord is the persisted outcome of a single executed step.
type StepRecord struct {
	RunID      string
	Index      int
	Kind       protocol.StepKind
	Instrument string
	TargetRef  string

	// Error holds the step failure message, empty for successful steps.
	Error string

	Started  time.Time
	Finished time.Time

	// Capture holds the instrument capture fields for successful
	// capture steps, nil otherwise.
	Capture map[string]any
}

// LedgerEntry is one signed volume change against a labware cell.
// Aspirates are negative, dispenses positive.
type LedgerEntry struct {
	ID        int64
	RunID     string
	StepIndex int
	Labware   string
	Cell      string
	DeltaUL   float64
	Recorded  time.Time
}

// Level is the derived net volume of a labware cell, summed over the
// ledger.
type Level struct {
	Labware  string
	Cell     string
	VolumeUL float64
}

// Repository defines the interface for run persistence operations.
// This abstraction allows for different implementations (SQLite, mock,
// etc.) and enables unit testing without database dependencies.
type Repository interface {
	// CreateRun inserts a new run with StatusRunning.
	// Returns ErrRunExists if the ID is already taken.
	CreateRun(ctx context.Context, run *Run) error

	// GetRun retrieves a run by ID.
	// Returns ErrRunNotFound if the run does not exist.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns retrieves all runs, most recent first.
	ListRuns(ctx context.Context) ([]Run, error)

	// SaveResult persists the outcome of an executed run in a single
	// transaction: step records, ledger entries derived from liquid
	// captures, and the run's terminal status.
	// Returns ErrRunNotFound if the run was never created and
	// ErrRunFinished if it already has a terminal status.
	SaveResult(ctx context.Context, steps []protocol.Step, result executor.RunResult) error

	// StepRecords retrieves the step records of a run in step order.
	StepRecords(ctx context.Context, runID string) ([]StepRecord, error)

	// Ledger retrieves all ledger entries for a labware item in
	// insertion order. Empty labware retrieves the full ledger.
	Ledger(ctx context.Context, labware string) ([]LedgerEntry, error)

	// Levels derives the net volume per labware cell from the ledger.
	Levels(ctx context.Context) ([]Level, error)
}

// recordsFromResult translates an executed run into persistable step
// records and ledger entries. Steps carry the compiled metadata
// (instrument, logical target, operation) that the executor's results
// do not repeat.
func recordsFromResult(steps []protocol.Step, result executor.RunResult) ([]StepRecord, []LedgerEntry) {
	records := make([]StepRecord, 0, len(result.Results))
	var ledger []LedgerEntry

	for _, sr := range result.Results {
		rec := StepRecord{
			RunID:    result.RunID,
			Index:    sr.Index,
			Kind:     sr.Kind,
			Started:  sr.Started,
			Finished: sr.Finished,
		}
		if sr.Err != nil {
			rec.Error = sr.Err.Error()
		}

		var step protocol.Step
		if sr.Index >= 0 && sr.Index < len(steps) {
			step = steps[sr.Index]
			rec.Instrument = step.Instrument
			rec.TargetRef = step.TargetRef
		}

		if sr.Capture != nil {
			rec.Capture = sr.Capture.Fields
			if entry, ok := ledgerEntry(result.RunID, step, sr); ok {
				ledger = append(ledger, entry)
			}
		}

		records = append(records, rec)
	}

	return records, ledger
}

// ledgerEntry derives a volume ledger entry from a successful liquid
// capture. Non-liquid captures and captures without a volume field
// produce no entry.
func ledgerEntry(runID string, step protocol.Step, sr executor.StepResult) (LedgerEntry, bool) {
	var sign float64
	switch step.Op {
	case protocol.ActionAspirate:
		sign = -1
	case protocol.ActionDispense:
		sign = 1
	default:
		return LedgerEntry{}, false
	}

	volume, ok := floatField(sr.Capture.Fields, "volume_ul")
	if !ok || step.TargetRef == "" {
		return LedgerEntry{}, false
	}

	labware, cell := splitTargetRef(step.TargetRef)
	return LedgerEntry{
		RunID:     runID,
		StepIndex: sr.Index,
		Labware:   labware,
		Cell:      cell,
		DeltaUL:   sign * volume,
		Recorded:  sr.Finished,
	}, true
}

// splitTargetRef splits a "labware.cell" reference. Plain labware
// references yield an empty cell.
func splitTargetRef(ref string) (labware, cell string) {
	labware, cell, _ = strings.Cut(ref, ".")
	return labware, cell
}

// floatField extracts a numeric capture field. YAML and JSON round
// trips can surface numbers as int or float64.
func floatField(fields map[string]any, key string) (float64, bool) {
	switch v := fields[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// statusOf maps a run result onto a terminal status.
func statusOf(result executor.RunResult) (Status, string) {
	if result.Err == nil {
		return StatusCompleted, ""
	}
	if errors.Is(result.Err, context.Canceled) || errors.Is(result.Err, context.DeadlineExceeded) {
		return StatusCancelled, result.Err.Error()
	}
	return StatusFailed, result.Err.Error()
}
