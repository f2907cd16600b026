package protocol

import (
	"fmt"

	"github.com/mofcat/labmill-core/internal/deck"
	"github.com/mofcat/labmill-core/internal/geometry"
	"github.com/mofcat/labmill-core/internal/instruments"
	"github.com/mofcat/labmill-core/internal/machine"
	"github.com/mofcat/labmill-core/internal/planner"
)

// StepKind tags the two atomic step variants.
type StepKind string

const (
	StepMove    StepKind = "move"
	StepCapture StepKind = "capture"
)

// Step is one atomic hardware operation. Index is the stable sequence
// position used for progress reporting and resumption; Action is the
// index of the protocol action that produced the step.
type Step struct {
	Index  int
	Action int
	Kind   StepKind

	// Target is the gantry coordinate for a Move step.
	Target geometry.Point3D

	// Instrument, Op and Params describe a Capture step. Op carries the
	// originating action kind so downstream consumers can tell an
	// aspirate from a dispense without re-reading the protocol.
	Instrument string
	Op         ActionKind
	Params     instruments.Params

	// TargetRef is the logical target of the originating action, kept
	// for reporting and the volume ledger. Empty when the action had no
	// target.
	TargetRef string
}

// CompileError reports a compilation failure with the index of the
// offending protocol action.
type CompileError struct {
	ActionIndex int
	Reason      error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("protocol: compiling action %d: %v", e.ActionIndex, e.Reason)
}

func (e *CompileError) Unwrap() error { return e.Reason }

// Compile expands a protocol into the flat ordered step list. For each
// action in order it resolves the logical target against the deck,
// subtracts the instrument offset when the action is instrument-scoped,
// plans the path from the previously emitted position (start for the
// first action), and emits one Move step per waypoint transition plus
// one Capture step per acquiring action.
//
// Compilation is all-or-nothing: on any failure it returns a
// *CompileError and no steps, and it mutates none of its inputs, so
// compiling the same inputs twice yields identical output.
func Compile(p *Protocol, d *deck.Deck, board *instruments.Board, cfg machine.Config, policy planner.Policy, start geometry.Point3D) ([]Step, error) {
	var steps []Step
	cursor := start

	appendMoves := func(action int, target geometry.Point3D, ref string) error {
		plan, err := planner.Plan(cursor, target, cfg.SafeHeight, cfg.SafeSide, policy)
		if err != nil {
			return err
		}
		for _, wp := range plan.Waypoints[1:] {
			steps = append(steps, Step{
				Index:     len(steps),
				Action:    action,
				Kind:      StepMove,
				Target:    wp,
				TargetRef: ref,
			})
		}
		cursor = plan.Target()
		return nil
	}

	gantryTarget := func(action Action) (geometry.Point3D, error) {
		point, err := d.Resolve(action.Target)
		if err != nil {
			return geometry.Point3D{}, err
		}
		if action.Instrument == "" {
			return point, nil
		}
		mount, err := board.Mount(action.Instrument)
		if err != nil {
			return geometry.Point3D{}, err
		}
		return point.Sub(mount.Offset), nil
	}

	for i, action := range p.Actions {
		switch action.Kind {
		case ActionMove:
			target, err := gantryTarget(action)
			if err != nil {
				return nil, &CompileError{ActionIndex: i, Reason: err}
			}
			if err := appendMoves(i, target, action.Target); err != nil {
				return nil, &CompileError{ActionIndex: i, Reason: err}
			}

		case ActionCapture:
			if _, err := board.Mount(action.Instrument); err != nil {
				return nil, &CompileError{ActionIndex: i, Reason: err}
			}
			if action.Target != "" {
				target, err := gantryTarget(action)
				if err != nil {
					return nil, &CompileError{ActionIndex: i, Reason: err}
				}
				if err := appendMoves(i, target, action.Target); err != nil {
					return nil, &CompileError{ActionIndex: i, Reason: err}
				}
			}
			steps = append(steps, captureStep(len(steps), i, action))

		case ActionAspirate, ActionDispense:
			if _, err := board.Mount(action.Instrument); err != nil {
				return nil, &CompileError{ActionIndex: i, Reason: err}
			}
			// Volume problems surface here rather than mid-run so a bad
			// transfer never reaches hardware.
			volume, err := action.Params.Float("volume_ul")
			if err != nil {
				return nil, &CompileError{ActionIndex: i, Reason: err}
			}
			if volume <= 0 {
				return nil, &CompileError{ActionIndex: i, Reason: fmt.Errorf("%w: volume_ul must be positive", instruments.ErrBadParams)}
			}
			target, err := gantryTarget(action)
			if err != nil {
				return nil, &CompileError{ActionIndex: i, Reason: err}
			}
			if err := appendMoves(i, target, action.Target); err != nil {
				return nil, &CompileError{ActionIndex: i, Reason: err}
			}
			steps = append(steps, captureStep(len(steps), i, action))

		default:
			return nil, &CompileError{ActionIndex: i, Reason: fmt.Errorf("%w: unknown action %q", ErrInvalidProtocol, action.Kind)}
		}
	}
	return steps, nil
}

func captureStep(index, action int, a Action) Step {
	return Step{
		Index:      index,
		Action:     action,
		Kind:       StepCapture,
		Instrument: a.Instrument,
		Op:         a.Kind,
		Params:     a.Params,
		TargetRef:  a.Target,
	}
}
