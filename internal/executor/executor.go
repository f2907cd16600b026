package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/mofcat/labmill-core/internal/geometry"
	"github.com/mofcat/labmill-core/internal/instruments"
	"github.com/mofcat/labmill-core/internal/protocol"
)

// Gantry is the motion surface the executor needs. *gantry.Driver
// satisfies it; tests may substitute their own.
type Gantry interface {
	MoveTo(ctx context.Context, target geometry.Point3D) error
}

// InstrumentLookup resolves mount names to instruments.
// *instruments.Set satisfies it.
type InstrumentLookup interface {
	Get(name string) (instruments.Instrument, error)
}

// Logger is the optional logging interface for the executor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Observer receives run progress. Callbacks run synchronously between
// hardware commands, so implementations must return promptly.
type Observer interface {
	RunStarted(runID string, totalSteps int)
	StepStarted(runID string, step protocol.Step)
	StepFinished(runID string, step protocol.Step, result StepResult)
	RunFinished(runID string, result RunResult)
}

// NoopObserver ignores all callbacks. Embed it to implement only the
// hooks of interest.
type NoopObserver struct{}

func (NoopObserver) RunStarted(string, int)                         {}
func (NoopObserver) StepStarted(string, protocol.Step)              {}
func (NoopObserver) StepFinished(string, protocol.Step, StepResult) {}
func (NoopObserver) RunFinished(string, RunResult)                  {}

// StepError reports which step failed and why.
type StepError struct {
	Index int
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("executor: step %d failed: %v", e.Index, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// StepResult is the outcome of one executed step. Steps after a halt
// have no result.
type StepResult struct {
	Index    int
	Kind     protocol.StepKind
	Started  time.Time
	Finished time.Time

	// Err is nil for a successful step.
	Err error

	// Capture holds the instrument result for successful Capture steps.
	Capture *instruments.Result
}

// RunResult is the outcome of a run.
type RunResult struct {
	RunID    string
	Started  time.Time
	Finished time.Time

	// Results holds one entry per executed step, in order.
	Results []StepResult

	// Err is nil when every step succeeded. A *StepError for a step
	// failure, or the context error when the run was cancelled between
	// steps.
	Err error
}

// OK reports whether the run completed with every step successful.
func (r RunResult) OK() bool { return r.Err == nil }

// Executor dispatches compiled steps to the hardware.
type Executor struct {
	gantry      Gantry
	instruments InstrumentLookup
	observer    Observer
	logger      Logger
}

// New creates an executor over the given motion and instrument
// surfaces.
func New(g Gantry, in InstrumentLookup) *Executor {
	return &Executor{
		gantry:      g,
		instruments: in,
		observer:    NoopObserver{},
		logger:      noopLogger{},
	}
}

// SetObserver sets the progress observer.
func (e *Executor) SetObserver(o Observer) {
	if o != nil {
		e.observer = o
	}
}

// SetLogger sets the logger for the executor.
func (e *Executor) SetLogger(l Logger) {
	if l != nil {
		e.logger = l
	}
}

// Run executes the step list in order under runID.
//
// The context is consulted between steps only. On the first failing
// step the run halts: its result is recorded, later steps are never
// started, and RunResult.Err carries a *StepError.
func (e *Executor) Run(ctx context.Context, runID string, steps []protocol.Step) RunResult {
	result := RunResult{
		RunID:   runID,
		Started: time.Now().UTC(),
	}

	e.logger.Info("run started", "run_id", runID, "steps", len(steps))
	e.observer.RunStarted(runID, len(steps))

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			result.Err = err
			e.logger.Warn("run cancelled", "run_id", runID, "next_step", step.Index)
			break
		}

		e.observer.StepStarted(runID, step)
		sr := e.executeStep(ctx, step)
		result.Results = append(result.Results, sr)
		e.observer.StepFinished(runID, step, sr)

		if sr.Err != nil {
			result.Err = &StepError{Index: step.Index, Err: sr.Err}
			e.logger.Error("run halted", "run_id", runID, "step", step.Index, "error", sr.Err)
			break
		}
	}

	result.Finished = time.Now().UTC()
	e.observer.RunFinished(runID, result)
	if result.Err == nil {
		e.logger.Info("run complete", "run_id", runID, "steps", len(result.Results))
	}
	return result
}

func (e *Executor) executeStep(ctx context.Context, step protocol.Step) StepResult {
	sr := StepResult{
		Index:   step.Index,
		Kind:    step.Kind,
		Started: time.Now().UTC(),
	}

	switch step.Kind {
	case protocol.StepMove:
		sr.Err = e.gantry.MoveTo(ctx, step.Target)
	case protocol.StepCapture:
		in, err := e.instruments.Get(step.Instrument)
		if err != nil {
			sr.Err = err
			break
		}
		res, err := in.Capture(ctx, step.Params)
		if err != nil {
			sr.Err = err
			break
		}
		sr.Capture = &res
	default:
		sr.Err = fmt.Errorf("executor: unknown step kind %q", step.Kind)
	}

	sr.Finished = time.Now().UTC()
	return sr
}
