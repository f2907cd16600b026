package deck

import (
	"errors"
	"fmt"
)

// Domain errors for target resolution and deck loading.
var (
	// ErrUnknownLabware is returned when a target names labware that is
	// not on the deck.
	ErrUnknownLabware = errors.New("deck: unknown labware")

	// ErrUnknownCell is returned when a target names a cell that does not
	// exist on the labware.
	ErrUnknownCell = errors.New("deck: unknown cell")

	// ErrMalformedTarget is returned when a target string cannot be
	// parsed into (labware, cell).
	ErrMalformedTarget = errors.New("deck: malformed target")

	// ErrInvalidCalibration is returned when a well plate's two-point
	// calibration is unusable: non-axis-aligned points, identical points,
	// or a single row/column along the calibrated axis.
	ErrInvalidCalibration = errors.New("deck: invalid calibration")
)

// ResolutionError describes a failed target resolution. It wraps one of
// ErrUnknownLabware, ErrUnknownCell, or ErrMalformedTarget so callers can
// branch with errors.Is while still reporting the offending target.
type ResolutionError struct {
	Target string
	Reason error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolving %q: %v", e.Target, e.Reason)
}

func (e *ResolutionError) Unwrap() error {
	return e.Reason
}
