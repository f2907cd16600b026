// Package planner turns a start and target coordinate into an ordered
// list of waypoints that never travels horizontally on the unsafe side
// of the machine's safe height.
//
// Two policies are provided. The naive policy always routes through the
// safe height: lift at the start XY, travel, lower at the target XY.
// The optimized policy skips legs that a naive route would waste, either
// travelling at the current Z when it is already safe or travelling at
// the shallower of the two endpoint heights when that level is safe for
// the whole horizontal leg. Candidate routes are ranked by a
// configurable tie-break order.
//
// Plans are pure values. The planner holds no state and performs no I/O;
// bounds checking happens upstream in the bounds package.
package planner
