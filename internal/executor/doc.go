// Package executor walks a compiled step list and dispatches each step
// to the gantry driver or an instrument.
//
// Execution is strictly in order with exactly one hardware command in
// flight. The first failing step halts the run; results for every step
// executed so far are preserved, and steps after the failure are never
// started. Cancellation is cooperative and coarse: the context is
// checked between steps, never mid-command, because a motion command
// must run to acknowledgment once sent.
//
// Observers receive progress callbacks and back the MQTT run feed.
package executor
