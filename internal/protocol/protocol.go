package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mofcat/labmill-core/internal/instruments"
)

// ErrInvalidProtocol is returned for any structural problem in a
// protocol document: unknown fields, unknown action kinds, or missing
// required fields.
var ErrInvalidProtocol = errors.New("protocol: invalid protocol document")

// ActionKind is the closed set of high-level protocol actions.
type ActionKind string

const (
	// ActionMove positions the gantry at a logical target, optionally
	// scoped to an instrument's working point.
	ActionMove ActionKind = "move"

	// ActionCapture performs an acquisition with an instrument. With a
	// target the gantry moves there first; without one it captures at
	// the current position.
	ActionCapture ActionKind = "capture"

	// ActionAspirate draws liquid from a target with a pipette-style
	// instrument. Requires a positive volume_ul parameter.
	ActionAspirate ActionKind = "aspirate"

	// ActionDispense delivers liquid to a target with a pipette-style
	// instrument. Requires a positive volume_ul parameter.
	ActionDispense ActionKind = "dispense"
)

// Action is one high-level protocol entry.
type Action struct {
	Kind       ActionKind
	Target     string
	Instrument string
	Params     instruments.Params
}

// Protocol is a validated protocol document.
type Protocol struct {
	Name    string
	Actions []Action
}

type documentRoot struct {
	Protocol protocolEntry `yaml:"protocol"`
}

type protocolEntry struct {
	Name    string        `yaml:"name"`
	Actions []actionEntry `yaml:"actions"`
}

type actionEntry struct {
	Action     string         `yaml:"action"`
	Target     string         `yaml:"target"`
	Instrument string         `yaml:"instrument"`
	Params     map[string]any `yaml:"params"`
}

// Load reads and validates a protocol document from disk.
func Load(path string) (*Protocol, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading protocol document: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Parse validates protocol document bytes. Structural checks only;
// target resolution and instrument lookup happen at compile time
// against the concrete deck and board.
func Parse(data []byte) (*Protocol, error) {
	var root documentRoot
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProtocol, err)
	}

	if root.Protocol.Name == "" {
		return nil, fmt.Errorf("%w: protocol.name is required", ErrInvalidProtocol)
	}
	if len(root.Protocol.Actions) == 0 {
		return nil, fmt.Errorf("%w: protocol defines no actions", ErrInvalidProtocol)
	}

	p := &Protocol{Name: root.Protocol.Name}
	for i, entry := range root.Protocol.Actions {
		action, err := buildAction(entry)
		if err != nil {
			return nil, fmt.Errorf("%w: action %d: %v", ErrInvalidProtocol, i, err)
		}
		p.Actions = append(p.Actions, action)
	}
	return p, nil
}

func buildAction(entry actionEntry) (Action, error) {
	kind := ActionKind(entry.Action)
	switch kind {
	case ActionMove:
		if entry.Target == "" {
			return Action{}, fmt.Errorf("move requires a target")
		}
	case ActionCapture:
		if entry.Instrument == "" {
			return Action{}, fmt.Errorf("capture requires an instrument")
		}
	case ActionAspirate, ActionDispense:
		if entry.Target == "" || entry.Instrument == "" {
			return Action{}, fmt.Errorf("%s requires a target and an instrument", kind)
		}
	default:
		return Action{}, fmt.Errorf("unknown action %q", entry.Action)
	}

	return Action{
		Kind:       kind,
		Target:     entry.Target,
		Instrument: entry.Instrument,
		Params:     instruments.Params(entry.Params),
	}, nil
}
