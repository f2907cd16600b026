package gantry

import "errors"

var (
	// ErrNotConnected is returned when an operation needs a live
	// controller connection and there is none.
	ErrNotConnected = errors.New("gantry: not connected")

	// ErrAlreadyConnected is returned by Connect when a connection is
	// already established.
	ErrAlreadyConnected = errors.New("gantry: already connected")

	// ErrNotHomed is returned when a move is requested before homing has
	// established the machine origin.
	ErrNotHomed = errors.New("gantry: machine not homed")

	// ErrConnectionFailed is returned when the controller cannot be
	// reached or does not identify itself.
	ErrConnectionFailed = errors.New("gantry: connection failed")

	// ErrCommandTimeout is returned when the controller does not
	// acknowledge a command within the configured timeout. The driver
	// state is left unchanged; motion commands are never retried
	// automatically because the physical outcome is unknown.
	ErrCommandTimeout = errors.New("gantry: command timed out")

	// ErrCommandRejected is returned when the controller answers a
	// command with an error report instead of an acknowledgment.
	ErrCommandRejected = errors.New("gantry: command rejected")

	// ErrAlarm is returned when the controller raises an alarm. Alarms
	// halt motion and must be cleared with an explicit Unlock followed
	// by re-homing.
	ErrAlarm = errors.New("gantry: controller alarm")

	// ErrOutOfBounds is returned for a move target outside the working
	// volume, before anything is sent to the controller.
	ErrOutOfBounds = errors.New("gantry: target outside working volume")

	// ErrPositionUnknown is returned by CurrentCoordinates when no
	// acknowledged position is available, e.g. before homing or after a
	// motion timeout.
	ErrPositionUnknown = errors.New("gantry: position unknown")

	// ErrBadStatus is returned when a status report cannot be parsed.
	ErrBadStatus = errors.New("gantry: malformed status report")
)
