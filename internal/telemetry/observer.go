package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/mofcat/labmill-core/internal/executor"
	"github.com/mofcat/labmill-core/internal/infrastructure/mqtt"
	"github.com/mofcat/labmill-core/internal/protocol"
)

// Publisher is the message-bus surface the observer needs.
// *mqtt.Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Metrics is the optional time-series surface. *influxdb.Client
// satisfies it. A nil Metrics disables recording.
type Metrics interface {
	WriteCapture(instrument string, kind string, fields map[string]interface{}, captured time.Time)
	WriteStepDuration(runID string, index int, kind string, seconds float64)
	WriteGantryPosition(x, y, z float64)
	WriteVolumeDelta(labware, cell string, deltaUL float64)
}

// Logger is the optional logging interface for the observer.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// RunStatus is the payload published on labmill/run/{id}/status.
// The topic is retained so late subscribers see the latest state.
type RunStatus struct {
	RunID      string `json:"run_id"`
	Status     string `json:"status"`
	TotalSteps int    `json:"total_steps"`
	DoneSteps  int    `json:"done_steps,omitempty"`
	Started    string `json:"started,omitempty"`
	Finished   string `json:"finished,omitempty"`
	Error      string `json:"error,omitempty"`
}

// StepEvent is the payload published on labmill/run/{id}/step/{n}.
type StepEvent struct {
	RunID      string  `json:"run_id"`
	Step       int     `json:"step"`
	Kind       string  `json:"kind"`
	Status     string  `json:"status"`
	Instrument string  `json:"instrument,omitempty"`
	TargetRef  string  `json:"target_ref,omitempty"`
	DurationS  float64 `json:"duration_s,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// PositionEvent is the payload published on labmill/gantry/position
// after each acknowledged move.
type PositionEvent struct {
	RunID string  `json:"run_id,omitempty"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	At    string  `json:"at"`
}

// GantryStateEvent is the payload published on labmill/gantry/state.
// Retained so subscribers see the current state immediately.
type GantryStateEvent struct {
	State string `json:"state"`
	At    string `json:"at"`
}

// HealthEvent is the payload published on
// labmill/instrument/{name}/health.
type HealthEvent struct {
	Instrument string `json:"instrument"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	At         string `json:"at"`
}

// CaptureEvent is the payload published on
// labmill/instrument/{name}/capture.
type CaptureEvent struct {
	RunID      string         `json:"run_id"`
	Step       int            `json:"step"`
	Instrument string         `json:"instrument"`
	Kind       string         `json:"kind"`
	Fields     map[string]any `json:"fields,omitempty"`
	Captured   string         `json:"captured"`
}

// Observer publishes run progress to the message bus and records step
// metrics. It implements executor.Observer.
type Observer struct {
	pub     Publisher
	metrics Metrics
	logger  Logger
	topics  mqtt.Topics
	qos     byte

	totalSteps int
	doneSteps  int
}

// NewObserver creates an observer publishing at the given QoS.
// pub and metrics may each be nil; a nil publisher disables bus
// publishing and a nil metrics disables time-series recording, so
// either sink can carry a run on its own.
func NewObserver(pub Publisher, metrics Metrics, qos byte) *Observer {
	return &Observer{
		pub:     pub,
		metrics: metrics,
		logger:  noopLogger{},
		qos:     qos,
	}
}

// SetLogger sets the logger for publish failures.
func (o *Observer) SetLogger(l Logger) {
	if l != nil {
		o.logger = l
	}
}

// RunStarted publishes the retained running status.
func (o *Observer) RunStarted(runID string, totalSteps int) {
	o.totalSteps = totalSteps
	o.doneSteps = 0
	o.publish(o.topics.RunStatus(runID), RunStatus{
		RunID:      runID,
		Status:     "running",
		TotalSteps: totalSteps,
		Started:    time.Now().UTC().Format(time.RFC3339),
	}, true)
}

// StepStarted publishes a started step event.
func (o *Observer) StepStarted(runID string, step protocol.Step) {
	o.publish(o.topics.RunStep(runID, step.Index), StepEvent{
		RunID:      runID,
		Step:       step.Index,
		Kind:       string(step.Kind),
		Status:     "started",
		Instrument: step.Instrument,
		TargetRef:  step.TargetRef,
	}, false)
}

// StepFinished publishes the step outcome and records its duration.
// Successful captures are additionally published on the instrument
// capture topic and written to the time-series store.
func (o *Observer) StepFinished(runID string, step protocol.Step, result executor.StepResult) {
	seconds := result.Finished.Sub(result.Started).Seconds()

	ev := StepEvent{
		RunID:      runID,
		Step:       step.Index,
		Kind:       string(step.Kind),
		Instrument: step.Instrument,
		TargetRef:  step.TargetRef,
		DurationS:  seconds,
	}
	if result.Err != nil {
		ev.Status = "failed"
		ev.Error = result.Err.Error()
	} else {
		ev.Status = "done"
		o.doneSteps++
	}
	o.publish(o.topics.RunStep(runID, step.Index), ev, false)

	if o.metrics != nil {
		o.metrics.WriteStepDuration(runID, step.Index, string(step.Kind), seconds)
	}

	if step.Kind == protocol.StepMove && result.Err == nil {
		o.publish(o.topics.GantryPosition(), PositionEvent{
			RunID: runID,
			X:     step.Target.X,
			Y:     step.Target.Y,
			Z:     step.Target.Z,
			At:    result.Finished.UTC().Format(time.RFC3339),
		}, false)
		if o.metrics != nil {
			o.metrics.WriteGantryPosition(step.Target.X, step.Target.Y, step.Target.Z)
		}
	}

	if c := result.Capture; c != nil {
		o.publish(o.topics.InstrumentCapture(c.Instrument), CaptureEvent{
			RunID:      runID,
			Step:       step.Index,
			Instrument: c.Instrument,
			Kind:       c.Kind,
			Fields:     c.Fields,
			Captured:   c.Captured.UTC().Format(time.RFC3339),
		}, false)
		if o.metrics != nil {
			o.metrics.WriteCapture(c.Instrument, c.Kind, c.Fields, c.Captured)
			if labware, cell, delta, ok := volumeDelta(step, c.Fields); ok {
				o.metrics.WriteVolumeDelta(labware, cell, delta)
			}
		}
	}
}

// volumeDelta derives the signed volume change of a liquid step:
// negative for aspirates, positive for dispenses. Non-liquid steps and
// captures without a volume field yield no delta.
func volumeDelta(step protocol.Step, fields map[string]any) (labware, cell string, delta float64, ok bool) {
	var sign float64
	switch step.Op {
	case protocol.ActionAspirate:
		sign = -1
	case protocol.ActionDispense:
		sign = 1
	default:
		return "", "", 0, false
	}
	if step.TargetRef == "" {
		return "", "", 0, false
	}

	var volume float64
	switch v := fields["volume_ul"].(type) {
	case float64:
		volume = v
	case int:
		volume = float64(v)
	default:
		return "", "", 0, false
	}

	labware, cell, _ = strings.Cut(step.TargetRef, ".")
	return labware, cell, sign * volume, true
}

// RunFinished publishes the retained terminal status.
func (o *Observer) RunFinished(runID string, result executor.RunResult) {
	status := RunStatus{
		RunID:      runID,
		Status:     terminalStatus(result.Err),
		TotalSteps: o.totalSteps,
		DoneSteps:  o.doneSteps,
		Started:    result.Started.UTC().Format(time.RFC3339),
		Finished:   result.Finished.UTC().Format(time.RFC3339),
	}
	if result.Err != nil {
		status.Error = result.Err.Error()
	}
	o.publish(o.topics.RunStatus(runID), status, true)
}

// GantryState publishes the retained gantry driver state.
func (o *Observer) GantryState(state string) {
	o.publish(o.topics.GantryState(), GantryStateEvent{
		State: state,
		At:    time.Now().UTC().Format(time.RFC3339),
	}, true)
}

// InstrumentHealth publishes the retained outcome of an instrument
// health check.
func (o *Observer) InstrumentHealth(name string, err error) {
	ev := HealthEvent{
		Instrument: name,
		Status:     "ok",
		At:         time.Now().UTC().Format(time.RFC3339),
	}
	if err != nil {
		ev.Status = "unhealthy"
		ev.Error = err.Error()
	}
	o.publish(o.topics.InstrumentHealth(name), ev, true)
}

func (o *Observer) publish(topic string, payload any, retained bool) {
	if o.pub == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		o.logger.Error("telemetry payload marshal failed", "topic", topic, "error", err)
		return
	}
	if err := o.pub.Publish(topic, data, o.qos, retained); err != nil {
		o.logger.Warn("telemetry publish failed", "topic", topic, "error", err)
	}
}

// terminalStatus maps a run error onto the published status value.
// Cancellation between steps is reported distinctly from a step
// failure.
func terminalStatus(err error) string {
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "failed"
	}
}
