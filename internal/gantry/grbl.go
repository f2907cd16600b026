package gantry

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mofcat/labmill-core/internal/geometry"
)

// Controller command strings. Coordinates are formatted to three
// decimal places to match GRBL's reported precision.
const (
	cmdHome       = "$H"
	cmdUnlock     = "$X"
	cmdUnitsMM    = "G21"
	cmdAbsolute   = "G90"
	cmdStatus     = "?"
	cmdZeroOrigin = "G10 L20 P1 X0 Y0 Z0"
)

// Status report patterns, e.g. "<Idle|WPos:0.000,-40.000,-5.000|FS:0,0>".
var (
	statePattern = regexp.MustCompile(`^<([A-Za-z]+)[|>:]`)
	wposPattern  = regexp.MustCompile(`WPos:(-?[\d.]+),(-?[\d.]+),(-?[\d.]+)`)
	mposPattern  = regexp.MustCompile(`MPos:(-?[\d.]+),(-?[\d.]+),(-?[\d.]+)`)
	alarmPattern = regexp.MustCompile(`^ALARM:?(\d*)`)
	errPattern   = regexp.MustCompile(`^error:?(\d*)`)
)

// moveCommand formats a linear move to target at the given feed rate in
// mm/min.
func moveCommand(target geometry.Point3D, feedRate int) string {
	return fmt.Sprintf("G01 X%.3f Y%.3f Z%.3f F%d", target.X, target.Y, target.Z, feedRate)
}

// feedCommand sets the modal feed rate.
func feedCommand(rate int) string {
	return fmt.Sprintf("F%d", rate)
}

// softLimitCommands enables firmware soft limits and programs the max
// travel per axis from the working volume spans. GRBL expresses travel
// as a positive distance per axis.
func softLimitCommands(v geometry.WorkingVolume) []string {
	return []string{
		"$20=1",
		fmt.Sprintf("$130=%.3f", v.XMax-v.XMin),
		fmt.Sprintf("$131=%.3f", v.YMax-v.YMin),
		fmt.Sprintf("$132=%.3f", v.ZMax-v.ZMin),
	}
}

// Status is one controller status report.
type Status struct {
	// State is the controller's own state word, e.g. "Idle", "Run",
	// "Alarm".
	State string

	// WPos is the work-coordinate position, the frame all planning uses.
	WPos geometry.Point3D

	// MPos is the machine-coordinate position when reported.
	MPos geometry.Point3D

	// HasWPos and HasMPos record which frames the report carried;
	// firmware reports one or the other depending on configuration.
	HasWPos bool
	HasMPos bool
}

// parseStatus decodes a "<...>" status report line.
func parseStatus(line string) (Status, error) {
	m := statePattern.FindStringSubmatch(line)
	if m == nil {
		return Status{}, fmt.Errorf("%w: %q", ErrBadStatus, line)
	}
	st := Status{State: m[1]}

	if c := wposPattern.FindStringSubmatch(line); c != nil {
		p, err := parseTriplet(c[1:])
		if err != nil {
			return Status{}, fmt.Errorf("%w: %q", ErrBadStatus, line)
		}
		st.WPos = p
		st.HasWPos = true
	}
	if c := mposPattern.FindStringSubmatch(line); c != nil {
		p, err := parseTriplet(c[1:])
		if err != nil {
			return Status{}, fmt.Errorf("%w: %q", ErrBadStatus, line)
		}
		st.MPos = p
		st.HasMPos = true
	}
	if !st.HasWPos && !st.HasMPos {
		return Status{}, fmt.Errorf("%w: no position in %q", ErrBadStatus, line)
	}
	return st, nil
}

func parseTriplet(parts []string) (geometry.Point3D, error) {
	var vals [3]float64
	for i, s := range parts {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return geometry.Point3D{}, err
		}
		vals[i] = v
	}
	return geometry.Point3D{X: vals[0], Y: vals[1], Z: vals[2]}, nil
}

// classifyResponse maps one controller response line to an ack, a
// rejection, or an alarm. Lines that are none of these (banner echoes,
// "[MSG:...]" feedback) return handled=false and are skipped.
func classifyResponse(line string) (err error, handled bool) {
	switch {
	case line == "ok":
		return nil, true
	case errPattern.MatchString(line):
		return fmt.Errorf("%w: %s", ErrCommandRejected, line), true
	case alarmPattern.MatchString(line):
		return fmt.Errorf("%w: %s", ErrAlarm, line), true
	case strings.HasPrefix(line, "<") && strings.Contains(line, "Alarm"):
		return fmt.Errorf("%w: %s", ErrAlarm, line), true
	default:
		return nil, false
	}
}
