package runstore

import "errors"

// Domain errors for the runstore package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, runstore.ErrRunNotFound) {
//	    // handle not found case
//	}
var (
	// ErrRunNotFound is returned when a run ID does not exist.
	ErrRunNotFound = errors.New("runstore: run not found")

	// ErrRunExists is returned when creating a run with an ID that already exists.
	ErrRunExists = errors.New("runstore: run already exists")

	// ErrRunFinished is returned when recording results against a run
	// that already has a terminal status.
	ErrRunFinished = errors.New("runstore: run already finished")
)
