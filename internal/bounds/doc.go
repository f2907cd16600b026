// Package bounds validates resolved deck coordinates, and their
// instrument-offset-adjusted gantry positions, against the machine
// working volume.
//
// Validation is a pre-flight gate, not a runtime fault: both entry
// points are pure and total, reporting every violation instead of
// failing on the first. Callers refuse to run while the list is
// non-empty.
package bounds
