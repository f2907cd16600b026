package instruments

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotConnected is returned when an instrument is asked to capture
	// or report health before Connect, or after Disconnect.
	ErrNotConnected = errors.New("instruments: instrument not connected")

	// ErrUnknownInstrument is returned by Set lookups for a name no
	// mounted instrument carries.
	ErrUnknownInstrument = errors.New("instruments: unknown instrument")

	// ErrBadParams is returned when capture parameters are missing or of
	// the wrong type for the instrument.
	ErrBadParams = errors.New("instruments: bad capture parameters")
)

// Params are instrument-specific capture settings, passed through from
// the protocol document without interpretation by the core.
type Params map[string]any

// Float extracts a numeric parameter. YAML decoding yields int for
// whole numbers and float64 otherwise, so both are accepted.
func (p Params) Float(key string) (float64, error) {
	v, ok := p[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing %q", ErrBadParams, key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("%w: %q must be a number, got %T", ErrBadParams, key, v)
	}
}

// Result is the outcome of a single capture.
type Result struct {
	// Instrument is the mounted instrument name that produced the result.
	Instrument string

	// Kind names what was captured, e.g. "image" or "liquid_transfer".
	Kind string

	// Fields holds the captured values, suitable for time-series export.
	Fields map[string]any

	// Captured is when the capture completed.
	Captured time.Time
}

// Instrument is a mounted device the executor can drive. Connect and
// HealthCheck take a context because real implementations talk to
// hardware; simulated ones still honour cancellation.
type Instrument interface {
	// Name is the mount name from the board document.
	Name() string

	// Connect establishes the device session.
	Connect(ctx context.Context) error

	// Disconnect releases the device session. Safe to call when not
	// connected.
	Disconnect() error

	// HealthCheck verifies the device responds. Read-only, retryable.
	HealthCheck(ctx context.Context) error

	// Capture performs one acquisition with the given parameters.
	Capture(ctx context.Context, params Params) (Result, error)
}

// Set is a lookup over the mounted instruments.
type Set struct {
	byName map[string]Instrument
	order  []string
}

// NewSet builds a Set, rejecting duplicate mount names.
func NewSet(list ...Instrument) (*Set, error) {
	s := &Set{byName: make(map[string]Instrument, len(list))}
	for _, in := range list {
		if _, dup := s.byName[in.Name()]; dup {
			return nil, fmt.Errorf("instruments: duplicate instrument %q", in.Name())
		}
		s.byName[in.Name()] = in
		s.order = append(s.order, in.Name())
	}
	return s, nil
}

// Get returns the instrument mounted under name.
func (s *Set) Get(name string) (Instrument, error) {
	in, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownInstrument, name)
	}
	return in, nil
}

// Names returns the mount names in registration order.
func (s *Set) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// ConnectAll connects every instrument, disconnecting the ones already
// connected if a later one fails.
func (s *Set) ConnectAll(ctx context.Context) error {
	for i, name := range s.order {
		if err := s.byName[name].Connect(ctx); err != nil {
			for _, prev := range s.order[:i] {
				s.byName[prev].Disconnect()
			}
			return fmt.Errorf("connecting instrument %q: %w", name, err)
		}
	}
	return nil
}

// DisconnectAll disconnects every instrument, returning the first error
// after attempting all of them.
func (s *Set) DisconnectAll() error {
	var first error
	for _, name := range s.order {
		if err := s.byName[name].Disconnect(); err != nil && first == nil {
			first = fmt.Errorf("disconnecting instrument %q: %w", name, err)
		}
	}
	return first
}
