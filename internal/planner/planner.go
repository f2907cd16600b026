package planner

import (
	"errors"
	"fmt"
	"math"

	"github.com/mofcat/labmill-core/internal/geometry"
	"github.com/mofcat/labmill-core/internal/machine"
)

var (
	// ErrUnknownPolicy is returned when a policy kind is not one of the
	// declared constants.
	ErrUnknownPolicy = errors.New("planner: unknown policy")

	// ErrUnknownTieBreak is returned when a tie-break name is not one of
	// the declared constants.
	ErrUnknownTieBreak = errors.New("planner: unknown tie-break")
)

// Kind selects a planning policy.
type Kind string

const (
	// KindNaive always routes through the safe height: lift at the start
	// XY, travel horizontally, lower at the target XY.
	KindNaive Kind = "naive"

	// KindOptimized considers shorter routes that stay on the safe side
	// without the full lift, falling back to the naive route when none
	// qualifies.
	KindOptimized Kind = "optimized"
)

// ParseKind maps a configuration string onto a policy kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindNaive, KindOptimized:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// TieBreak names one criterion for ranking candidate routes.
type TieBreak string

const (
	// TieBreakFewerWaypoints prefers the route with fewer waypoints.
	TieBreakFewerWaypoints TieBreak = "fewer_waypoints"

	// TieBreakShorterDistance prefers the route with the smaller total
	// traveled distance: Euclidean on XY plus absolute Z, summed per leg.
	TieBreakShorterDistance TieBreak = "shorter_distance"
)

// Policy is a planning policy plus its tie-break precedence. A nil or
// empty TieBreaks slice means the default order: fewer waypoints, then
// shorter distance. Criteria are applied in order; the first one that
// distinguishes two candidates decides, and a full tie keeps the
// earlier candidate.
type Policy struct {
	Kind      Kind
	TieBreaks []TieBreak
}

// Validate checks the policy kind and every tie-break name.
func (p Policy) Validate() error {
	if _, err := ParseKind(string(p.Kind)); err != nil {
		return err
	}
	for _, tb := range p.TieBreaks {
		switch tb {
		case TieBreakFewerWaypoints, TieBreakShorterDistance:
		default:
			return fmt.Errorf("%w: %q", ErrUnknownTieBreak, tb)
		}
	}
	return nil
}

func (p Policy) tieBreaks() []TieBreak {
	if len(p.TieBreaks) > 0 {
		return p.TieBreaks
	}
	return []TieBreak{TieBreakFewerWaypoints, TieBreakShorterDistance}
}

// PathPlan is an ordered, non-empty waypoint sequence. The first
// waypoint is the current position, the last is the target, and no leg
// between consecutive waypoints travels horizontally while on the
// unsafe side of the safe height.
type PathPlan struct {
	Waypoints []geometry.Point3D
}

// Target returns the final waypoint.
func (p PathPlan) Target() geometry.Point3D {
	return p.Waypoints[len(p.Waypoints)-1]
}

// Distance returns the total traveled distance: per leg, the Euclidean
// XY distance plus the absolute Z change.
func (p PathPlan) Distance() float64 {
	var total float64
	for i := 1; i < len(p.Waypoints); i++ {
		a, b := p.Waypoints[i-1], p.Waypoints[i]
		total += a.DistanceXY(b) + math.Abs(b.Z-a.Z)
	}
	return total
}

// Plan routes from one coordinate to another without horizontal travel
// on the unsafe side of safeHeight. Which side of safeHeight is safe is
// a machine property, so Z-up and Z-down conventions both work.
//
// Parameters:
//   - from: the current gantry position.
//   - to: the target gantry position.
//   - safeHeight: the Z threshold for collision-safe horizontal travel.
//   - side: which side of safeHeight is safe.
//   - policy: the policy kind and tie-break precedence.
//
// Returns the planned path, or ErrUnknownPolicy for an unrecognised
// policy kind.
func Plan(from, to geometry.Point3D, safeHeight float64, side machine.SafeSide, policy Policy) (PathPlan, error) {
	switch policy.Kind {
	case KindNaive:
		return compress(naiveRoute(from, to, safeHeight)), nil
	case KindOptimized:
		return pickBest(candidates(from, to, safeHeight, side), policy.tieBreaks()), nil
	default:
		return PathPlan{}, fmt.Errorf("%w: %q", ErrUnknownPolicy, policy.Kind)
	}
}

// naiveRoute lifts to the safe height at the start XY, travels, and
// lowers at the target XY. A same-XY move needs no horizontal leg, so
// it stays a single vertical move.
func naiveRoute(from, to geometry.Point3D, safeHeight float64) []geometry.Point3D {
	if from.SameXY(to) {
		return []geometry.Point3D{from, to}
	}
	return []geometry.Point3D{from, from.WithZ(safeHeight), to.WithZ(safeHeight), to}
}

// candidates enumerates the legal routes the optimized policy chooses
// between. The naive route is always present as the fallback; the two
// optimizations are added only when their travel height is safe, so
// every candidate honours the horizontal-travel invariant by
// construction.
func candidates(from, to geometry.Point3D, safeHeight float64, side machine.SafeSide) []PathPlan {
	out := []PathPlan{compress(naiveRoute(from, to, safeHeight))}

	// Skip the lift: travel at the current height, then move vertically
	// at the target XY.
	if side.SafeZ(safeHeight, from.Z) {
		out = append(out, compress([]geometry.Point3D{from, to.WithZ(from.Z), to}))
	}

	// Travel at the endpoint height nearer the safe threshold, trimming
	// the vertical round-trip to safeHeight. Valid only when that level
	// is itself safe, which also covers the farther endpoint.
	travelZ := nearerThreshold(side, from.Z, to.Z)
	if side.SafeZ(safeHeight, travelZ) {
		out = append(out, compress([]geometry.Point3D{from, from.WithZ(travelZ), to.WithZ(travelZ), to}))
	}
	return out
}

// nearerThreshold returns whichever of the two heights sits closer to
// the unsafe side: the minimum for machines that are safe above the
// threshold, the maximum for machines that are safe below it.
func nearerThreshold(side machine.SafeSide, a, b float64) float64 {
	if side == machine.SafeBelow {
		return math.Max(a, b)
	}
	return math.Min(a, b)
}

func pickBest(cands []PathPlan, order []TieBreak) PathPlan {
	best := cands[0]
	for _, c := range cands[1:] {
		if better(c, best, order) {
			best = c
		}
	}
	return best
}

func better(a, b PathPlan, order []TieBreak) bool {
	for _, tb := range order {
		switch tb {
		case TieBreakFewerWaypoints:
			if len(a.Waypoints) != len(b.Waypoints) {
				return len(a.Waypoints) < len(b.Waypoints)
			}
		case TieBreakShorterDistance:
			if a.Distance() != b.Distance() {
				return a.Distance() < b.Distance()
			}
		}
	}
	return false
}

// compress drops consecutive duplicate waypoints. Routes are built leg
// by leg, so a leg of zero length shows up as a repeated point.
func compress(points []geometry.Point3D) PathPlan {
	out := points[:1]
	for _, p := range points[1:] {
		if p != out[len(out)-1] {
			out = append(out, p)
		}
	}
	return PathPlan{Waypoints: out}
}
