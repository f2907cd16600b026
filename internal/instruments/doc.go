// Package instruments defines the contract between the execution core
// and mounted instruments, the board document describing what is
// mounted where, and simulated implementations for offline validation
// and tests.
//
// Real hardware drivers live outside this repository; the core only
// needs the narrow command/response surface: connect, health, capture.
// Capture parameters pass through opaquely so instrument-specific
// settings never leak into the planning layers.
package instruments
