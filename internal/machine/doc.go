// Package machine holds the machine document: the gantry's declared
// working volume, homing strategy, connection address, and motion
// parameters (safe travel height, feed rates, command timeout).
//
// The document schema is strict. A silently-defaulted physical bound
// could crash the gantry into mounted hardware, so unknown fields and
// missing sections are rejected at load time.
package machine
