package instruments

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SimulatedCamera is an in-memory camera used by the offline validate
// path and tests. Captures succeed while connected and record a frame
// counter so tests can assert ordering.
type SimulatedCamera struct {
	name string

	mu        sync.Mutex
	connected bool
	frames    int
}

// NewSimulatedCamera returns a disconnected simulated camera mounted
// under name.
func NewSimulatedCamera(name string) *SimulatedCamera {
	return &SimulatedCamera{name: name}
}

func (c *SimulatedCamera) Name() string { return c.name }

func (c *SimulatedCamera) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return nil
}

func (c *SimulatedCamera) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	return nil
}

func (c *SimulatedCamera) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return fmt.Errorf("%w: camera %q", ErrNotConnected, c.name)
	}
	return nil
}

// Capture produces one simulated frame. An optional exposure_ms
// parameter is echoed into the result fields.
func (c *SimulatedCamera) Capture(ctx context.Context, params Params) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return Result{}, fmt.Errorf("%w: camera %q", ErrNotConnected, c.name)
	}

	fields := map[string]any{}
	if _, ok := params["exposure_ms"]; ok {
		exposure, err := params.Float("exposure_ms")
		if err != nil {
			return Result{}, err
		}
		if exposure <= 0 {
			return Result{}, fmt.Errorf("%w: exposure_ms must be positive", ErrBadParams)
		}
		fields["exposure_ms"] = exposure
	}

	c.frames++
	fields["frame"] = c.frames
	return Result{
		Instrument: c.name,
		Kind:       "image",
		Fields:     fields,
		Captured:   time.Now().UTC(),
	}, nil
}

// Frames returns how many captures have completed.
func (c *SimulatedCamera) Frames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// SimulatedPipette is an in-memory liquid handler. Each capture is one
// transfer and requires a positive volume_ul parameter; the running
// total lets tests and the volume ledger cross-check.
type SimulatedPipette struct {
	name string

	mu        sync.Mutex
	connected bool
	totalUL   float64
}

// NewSimulatedPipette returns a disconnected simulated pipette mounted
// under name.
func NewSimulatedPipette(name string) *SimulatedPipette {
	return &SimulatedPipette{name: name}
}

func (p *SimulatedPipette) Name() string { return p.name }

func (p *SimulatedPipette) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = true
	return nil
}

func (p *SimulatedPipette) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	return nil
}

func (p *SimulatedPipette) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return fmt.Errorf("%w: pipette %q", ErrNotConnected, p.name)
	}
	return nil
}

func (p *SimulatedPipette) Capture(ctx context.Context, params Params) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return Result{}, fmt.Errorf("%w: pipette %q", ErrNotConnected, p.name)
	}

	volume, err := params.Float("volume_ul")
	if err != nil {
		return Result{}, err
	}
	if volume <= 0 {
		return Result{}, fmt.Errorf("%w: volume_ul must be positive", ErrBadParams)
	}

	p.totalUL += volume
	return Result{
		Instrument: p.name,
		Kind:       "liquid_transfer",
		Fields: map[string]any{
			"volume_ul": volume,
			"total_ul":  p.totalUL,
		},
		Captured: time.Now().UTC(),
	}, nil
}

// TotalUL returns the cumulative transferred volume.
func (p *SimulatedPipette) TotalUL() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalUL
}

// NewSimulatedSet builds a simulated instrument per board mount. Mount
// types map onto simulated device families; an unrecognised type is a
// configuration error because nothing could serve its captures.
func NewSimulatedSet(board *Board) (*Set, error) {
	var list []Instrument
	for _, name := range board.Names() {
		m, err := board.Mount(name)
		if err != nil {
			return nil, err
		}
		switch m.Type {
		case "camera":
			list = append(list, NewSimulatedCamera(name))
		case "pipette":
			list = append(list, NewSimulatedPipette(name))
		default:
			return nil, fmt.Errorf("%w: no simulated device for type %q (instrument %q)", ErrUnknownInstrument, m.Type, name)
		}
	}
	return NewSet(list...)
}
