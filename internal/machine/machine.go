package machine

import (
	"fmt"
	"strings"
	"time"

	"github.com/mofcat/labmill-core/internal/geometry"
)

// HomingStrategy selects how the controller establishes its origin.
// The set is closed; the driver dispatches on it explicitly.
type HomingStrategy string

const (
	// HomingSwitchBased runs the controller's homing cycle against its
	// limit switches.
	HomingSwitchBased HomingStrategy = "switch"

	// HomingManual trusts an operator-confirmed physical position and
	// resets the controller's coordinate origin in software.
	HomingManual HomingStrategy = "manual"
)

// SafeSide declares which side of the safe height is collision-safe for
// horizontal travel. Z-up and Z-down machines both occur, so this is
// configuration, not a hard-coded convention.
type SafeSide string

const (
	// SafeAbove means travel is safe at or above the safe height
	// (typical CNC convention: work surface in negative Z).
	SafeAbove SafeSide = "above"

	// SafeBelow means travel is safe at or below the safe height.
	SafeBelow SafeSide = "below"
)

// SafeZ reports whether a Z value is on the collision-safe side of the
// given safe height (inclusive).
func (s SafeSide) SafeZ(safeHeight, z float64) bool {
	if s == SafeBelow {
		return z <= safeHeight
	}
	return z >= safeHeight
}

// Config is the validated machine document.
type Config struct {
	// Address is the controller's physical connection address, e.g. a
	// serial bridge endpoint "192.168.4.21:23".
	Address string

	// CommandTimeout bounds every command round trip to the controller.
	CommandTimeout time.Duration

	// Homing selects the homing strategy.
	Homing HomingStrategy

	// WorkingVolume is the permitted motion box.
	WorkingVolume geometry.WorkingVolume

	// SafeHeight is the Z threshold for collision-safe horizontal travel.
	SafeHeight float64

	// SafeSide declares which side of SafeHeight is safe.
	SafeSide SafeSide

	// FeedRate is the travel feed rate in mm/min.
	FeedRate int

	// HomingFeedRate is the feed rate used during homing moves.
	HomingFeedRate int
}

// IsSafeZ reports whether a Z value is on the collision-safe side of the
// safe height (inclusive).
func (c Config) IsSafeZ(z float64) bool {
	return c.SafeSide.SafeZ(c.SafeHeight, z)
}

// Validate checks the loaded document for semantic errors. All problems
// are collected into one message so a broken document can be fixed in
// one pass.
func (c Config) Validate() error {
	var errs []string

	if c.Address == "" {
		errs = append(errs, "connection.address is required")
	}
	if c.CommandTimeout <= 0 {
		errs = append(errs, "connection.command_timeout_s must be positive")
	}
	switch c.Homing {
	case HomingSwitchBased, HomingManual:
	default:
		errs = append(errs, fmt.Sprintf("homing.strategy %q must be %q or %q", c.Homing, HomingSwitchBased, HomingManual))
	}
	if err := c.WorkingVolume.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	switch c.SafeSide {
	case SafeAbove, SafeBelow:
	default:
		errs = append(errs, fmt.Sprintf("motion.safe_side %q must be %q or %q", c.SafeSide, SafeAbove, SafeBelow))
	}
	if c.FeedRate <= 0 {
		errs = append(errs, "motion.feed_rate must be positive")
	}
	if c.HomingFeedRate <= 0 {
		errs = append(errs, "motion.homing_feed_rate must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("machine document errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
