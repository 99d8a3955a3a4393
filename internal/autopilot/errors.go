package autopilot

import "errors"

// Domain errors for the auto-pilot.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, autopilot.ErrAlreadyRunning) {
//	    // a second start was refused
//	}
var (
	// ErrAlreadyRunning is returned by Start when the loop is active.
	ErrAlreadyRunning = errors.New("autopilot: already running")

	// ErrNotRunning is returned by Stop when the loop is not active.
	ErrNotRunning = errors.New("autopilot: not running")

	// ErrMacroFailed wraps a macro outcome that ended the pilot loop.
	ErrMacroFailed = errors.New("autopilot: macro failed")
)
