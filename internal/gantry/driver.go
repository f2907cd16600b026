package gantry

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/mofcat/labmill-core/internal/geometry"
	"github.com/mofcat/labmill-core/internal/machine"
)

// homingTimeout bounds a switch-based homing cycle, which sweeps the
// full axis travel at the homing feed rate and takes far longer than
// any single move.
const homingTimeout = 90 * time.Second

// State is the driver's connection/readiness state. Transitions are
// owned exclusively by the driver.
type State string

const (
	StateDisconnected State = "disconnected"
	StateUnhomed      State = "connected_unhomed"
	StateHomed        State = "connected_homed"
)

// Transport is the byte stream to the controller. net.Conn satisfies
// it; the simulator provides an in-memory implementation.
type Transport interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// DialFunc opens a transport to the controller at address.
type DialFunc func(ctx context.Context, address string) (Transport, error)

// DialTCP dials the controller over TCP, the usual transport for a
// serial-to-network bridge.
func DialTCP(ctx context.Context, address string) (Transport, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnectionFailed, address, err)
	}
	return conn, nil
}

// Logger is the optional logging interface for the driver.
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

// Driver owns the controller connection and the machine state it
// implies.
//
// Thread safety: all methods are safe for concurrent use. A single
// mutex serialises commands, so exactly one command is outstanding at
// any time and every caller blocks until its acknowledgment or timeout.
type Driver struct {
	cfg    machine.Config
	dial   DialFunc
	logger Logger

	mu       sync.Mutex
	conn     Transport
	reader   *bufio.Reader
	state    State
	pos      geometry.Point3D
	posKnown bool

	// pending is the last command that timed out before its response
	// arrived. The controller still owes an acknowledgment for it, and
	// that acknowledgment must be consumed before the next command is
	// written or it would be paired with the wrong command.
	pending string
}

// NewDriver creates a driver for the given machine. The controller is
// not contacted until Connect.
func NewDriver(cfg machine.Config) *Driver {
	return &Driver{
		cfg:    cfg,
		dial:   DialTCP,
		logger: noopLogger{},
		state:  StateDisconnected,
	}
}

// SetLogger sets the logger for the driver.
func (d *Driver) SetLogger(logger Logger) {
	d.mu.Lock()
	d.logger = logger
	d.mu.Unlock()
}

// SetDialer replaces the transport dialer, used to attach a simulator.
func (d *Driver) SetDialer(dial DialFunc) {
	d.mu.Lock()
	d.dial = dial
	d.mu.Unlock()
}

// State returns the current driver state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Connect dials the controller, reads its identification banner, and
// applies the modal setup (millimetres, absolute coordinates, default
// feed rate). On success the driver is Connected-Unhomed. On any
// failure the connection is closed before returning.
//
// Parameters:
//   - ctx: cancels the dial and handshake.
//
// Returns:
//   - error: ErrAlreadyConnected, or ErrConnectionFailed wrapping the
//     underlying cause.
func (d *Driver) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateDisconnected {
		return ErrAlreadyConnected
	}

	conn, err := d.dial(ctx, d.cfg.Address)
	if err != nil {
		return err
	}
	d.conn = conn
	d.reader = bufio.NewReader(conn)

	if err := d.handshake(ctx); err != nil {
		d.releaseLocked()
		return err
	}

	d.state = StateUnhomed
	d.logger.Info("controller connected", "address", d.cfg.Address)
	return nil
}

// handshake reads the identification banner and applies modal setup.
// Caller holds d.mu with an open connection.
func (d *Driver) handshake(ctx context.Context) error {
	banner, err := d.readLine(d.deadline(ctx, d.cfg.CommandTimeout))
	if err != nil {
		return fmt.Errorf("%w: reading banner: %w", ErrConnectionFailed, err)
	}
	if !strings.Contains(banner, "Grbl") {
		return fmt.Errorf("%w: unexpected banner %q", ErrConnectionFailed, banner)
	}
	d.logger.Debug("controller banner", "banner", banner)

	for _, cmd := range []string{cmdUnitsMM, cmdAbsolute, feedCommand(d.cfg.FeedRate)} {
		if err := d.command(ctx, cmd, d.cfg.CommandTimeout); err != nil {
			return fmt.Errorf("%w: setup %q: %w", ErrConnectionFailed, cmd, err)
		}
	}
	return nil
}

// Disconnect closes the controller connection. Safe to call in any
// state; the connection is released even if the close errors.
func (d *Driver) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		d.state = StateDisconnected
		return nil
	}
	err := d.releaseLocked()
	d.logger.Info("controller disconnected")
	if err != nil {
		return fmt.Errorf("closing controller connection: %w", err)
	}
	return nil
}

// releaseLocked closes and clears the connection. Caller holds d.mu.
func (d *Driver) releaseLocked() error {
	var err error
	if d.conn != nil {
		err = d.conn.Close()
	}
	d.conn = nil
	d.reader = nil
	d.state = StateDisconnected
	d.posKnown = false
	d.pending = ""
	return err
}

// Home establishes the machine origin using the configured strategy,
// pushes soft travel limits derived from the working volume into the
// firmware, and reads back the position. On success the driver is
// Connected-Homed.
//
// Switch-based homing runs the controller's "$H" cycle. Manual homing
// trusts the operator-confirmed physical position and zeroes the work
// coordinate origin in place.
//
// A timeout leaves the state unchanged.
func (d *Driver) Home(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == StateDisconnected {
		return ErrNotConnected
	}

	switch d.cfg.Homing {
	case machine.HomingSwitchBased:
		d.logger.Info("homing cycle started", "strategy", d.cfg.Homing)
		if err := d.command(ctx, feedCommand(d.cfg.HomingFeedRate), d.cfg.CommandTimeout); err != nil {
			return err
		}
		if err := d.command(ctx, cmdHome, homingTimeout); err != nil {
			return err
		}
	case machine.HomingManual:
		d.logger.Info("zeroing origin at current position", "strategy", d.cfg.Homing)
		if err := d.command(ctx, cmdZeroOrigin, d.cfg.CommandTimeout); err != nil {
			return err
		}
	default:
		return fmt.Errorf("gantry: unknown homing strategy %q", d.cfg.Homing)
	}

	for _, cmd := range softLimitCommands(d.cfg.WorkingVolume) {
		if err := d.command(ctx, cmd, d.cfg.CommandTimeout); err != nil {
			return fmt.Errorf("pushing soft limits: %w", err)
		}
	}
	if err := d.command(ctx, feedCommand(d.cfg.FeedRate), d.cfg.CommandTimeout); err != nil {
		return err
	}

	st, err := d.statusLocked(ctx)
	if err != nil {
		return fmt.Errorf("reading position after homing: %w", err)
	}
	d.pos = st.WPos
	d.posKnown = st.HasWPos

	d.state = StateHomed
	d.logger.Info("homing complete", "position", d.pos.String())
	return nil
}

// Unlock clears a controller alarm. It never runs automatically: after
// an alarm the position is untrusted, so the caller must Unlock and
// then re-home before moving again.
func (d *Driver) Unlock(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == StateDisconnected {
		return ErrNotConnected
	}
	return d.command(ctx, cmdUnlock, d.cfg.CommandTimeout)
}

// MoveTo executes one linear move to target at the configured feed
// rate and blocks for its acknowledgment.
//
// The target is checked against the working volume before anything is
// sent. On timeout the state is unchanged and the move is not retried;
// the last acknowledged position is discarded because the physical
// outcome is unknown. On an alarm the driver drops to
// Connected-Unhomed.
//
// Returns:
//   - error: ErrNotConnected, ErrNotHomed, ErrOutOfBounds,
//     ErrCommandTimeout, ErrCommandRejected or ErrAlarm.
func (d *Driver) MoveTo(ctx context.Context, target geometry.Point3D) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case StateDisconnected:
		return ErrNotConnected
	case StateUnhomed:
		return ErrNotHomed
	}
	if !d.cfg.WorkingVolume.Contains(target) {
		return fmt.Errorf("%w: %s", ErrOutOfBounds, target)
	}

	err := d.command(ctx, moveCommand(target, d.cfg.FeedRate), d.cfg.CommandTimeout)
	switch {
	case err == nil:
		d.pos = target
		d.posKnown = true
		return nil
	case errors.Is(err, ErrCommandTimeout):
		d.posKnown = false
		return err
	case errors.Is(err, ErrAlarm):
		// Motion aborted mid-move; the reported position can no longer
		// be trusted until the machine is re-homed.
		d.posKnown = false
		d.state = StateUnhomed
		d.logger.Error("alarm during motion", "error", err)
		return err
	default:
		return err
	}
}

// Status queries the controller for a live status report. Read-only
// and side-effect free, so unlike motion commands callers may retry it.
func (d *Driver) Status(ctx context.Context) (Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == StateDisconnected {
		return Status{}, ErrNotConnected
	}
	return d.statusLocked(ctx)
}

// statusLocked sends "?" and parses the report. Caller holds d.mu.
func (d *Driver) statusLocked(ctx context.Context) (Status, error) {
	deadline := d.deadline(ctx, d.cfg.CommandTimeout)

	if err := ctx.Err(); err != nil {
		return Status{}, err
	}
	if err := d.drainPending(ctx); err != nil {
		return Status{}, err
	}
	if err := d.conn.SetWriteDeadline(deadline); err != nil {
		return Status{}, fmt.Errorf("setting write deadline: %w", err)
	}
	// "?" is a realtime query: no line terminator.
	if _, err := d.conn.Write([]byte(cmdStatus)); err != nil {
		return Status{}, fmt.Errorf("writing status query: %w", err)
	}

	for {
		line, err := d.readLine(deadline)
		if err != nil {
			return Status{}, err
		}
		if !strings.HasPrefix(line, "<") {
			continue
		}
		return parseStatus(line)
	}
}

// CurrentCoordinates returns the position from the last acknowledged
// command without touching the controller.
func (d *Driver) CurrentCoordinates() (geometry.Point3D, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.posKnown {
		return geometry.Point3D{}, ErrPositionUnknown
	}
	return d.pos, nil
}

// command writes one line and blocks until the controller acknowledges
// or rejects it, or the timeout elapses. Caller holds d.mu with an open
// connection. Exactly one command is ever in flight.
func (d *Driver) command(ctx context.Context, line string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.drainPending(ctx); err != nil {
		return err
	}
	deadline := d.deadline(ctx, timeout)

	if err := d.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	d.logger.Debug("command sent", "command", line)
	if _, err := d.conn.Write([]byte(line + "\n")); err != nil {
		if isTimeout(err) {
			d.pending = line
			return fmt.Errorf("%w: %q", ErrCommandTimeout, line)
		}
		return fmt.Errorf("writing command %q: %w", line, err)
	}

	for {
		resp, err := d.readLine(deadline)
		if err != nil {
			if isTimeout(err) {
				d.pending = line
				return fmt.Errorf("%w: %q", ErrCommandTimeout, line)
			}
			return fmt.Errorf("reading response to %q: %w", line, err)
		}
		result, handled := classifyResponse(resp)
		if !handled {
			d.logger.Debug("controller feedback", "line", resp)
			continue
		}
		if result != nil {
			d.logger.Warn("command not acknowledged", "command", line, "response", resp)
		}
		return result
	}
}

// drainPending consumes the late response owed to a timed-out command
// so it cannot be taken as the acknowledgment of whatever is written
// next. The controller's response is discarded; whether the command
// took effect stays unknown, so driver state is left untouched. Caller
// holds d.mu with an open connection.
func (d *Driver) drainPending(ctx context.Context) error {
	if d.pending == "" {
		return nil
	}
	deadline := d.deadline(ctx, d.cfg.CommandTimeout)
	for {
		resp, err := d.readLine(deadline)
		if err != nil {
			if isTimeout(err) {
				return fmt.Errorf("%w: still awaiting response to %q", ErrCommandTimeout, d.pending)
			}
			return fmt.Errorf("draining response to %q: %w", d.pending, err)
		}
		if _, handled := classifyResponse(resp); !handled {
			d.logger.Debug("controller feedback", "line", resp)
			continue
		}
		d.logger.Warn("late response to timed-out command", "command", d.pending, "response", resp)
		d.pending = ""
		return nil
	}
}

// readLine reads one trimmed line honouring the deadline. Empty lines
// are skipped.
func (d *Driver) readLine(deadline time.Time) (string, error) {
	for {
		if err := d.conn.SetReadDeadline(deadline); err != nil {
			return "", fmt.Errorf("setting read deadline: %w", err)
		}
		raw, err := d.reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		return line, nil
	}
}

// deadline combines the per-command timeout with the context deadline,
// whichever is sooner.
func (d *Driver) deadline(ctx context.Context, timeout time.Duration) time.Time {
	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	return deadline
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
