// Package gantry owns the live connection to the motion controller and
// the machine state it implies.
//
// The controller speaks a GRBL-style line protocol: one command per
// line, answered with "ok", "error:N" or an "ALARM:N" report. The
// driver keeps exactly one command outstanding and blocks for its
// acknowledgment with a per-command timeout, so callers see strictly
// sequential motion.
//
// State machine: Disconnected -> Connected-Unhomed -> Connected-Homed.
// Moves dispatch only in Connected-Homed; homing establishes the
// machine origin and pushes soft travel limits derived from the working
// volume into the firmware. An alarm during motion drops the driver
// back to Connected-Unhomed because the reported position can no longer
// be trusted.
//
// A Simulator speaking the same wire protocol backs tests and the
// offline validate path.
package gantry
