// Package protocol models the declarative experiment document and
// compiles it into the flat step list the executor runs.
//
// A protocol is an ordered list of high-level actions referencing
// logical deck targets ("plate_1.A1") and mounted instruments. The
// compiler resolves every target, applies instrument offsets, plans
// each travel path, and emits one Move step per waypoint transition
// plus one Capture step per acquiring action. Compilation is
// all-or-nothing: any failure reports the offending action index and
// leaves no partial output, and compiling the same document against the
// same deck and machine twice yields identical step lists.
package protocol
