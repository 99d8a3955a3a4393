package macro

import "errors"

// Domain errors for the macro package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, macro.ErrStageTimeout) {
//	    // handle timeout case
//	}
var (
	// ErrInvalidGraph is returned when a graph fails structural validation
	// (empty name, no stages, duplicate stage names, nil stage body).
	ErrInvalidGraph = errors.New("macro: invalid graph")

	// ErrInvalidParams is returned when parameter validation fails, either
	// at start or on Modify.
	ErrInvalidParams = errors.New("macro: invalid parameters")

	// ErrPreconditionFailed wraps the error of a failed precondition stage.
	ErrPreconditionFailed = errors.New("macro: precondition failed")

	// ErrStageFailed wraps the error of a failed normal-tier stage.
	ErrStageFailed = errors.New("macro: stage failed")

	// ErrStageTimeout is returned when a stage exceeds its deadline.
	// A timeout is a stage failure, never a hang.
	ErrStageTimeout = errors.New("macro: stage timed out")

	// ErrStagePanic is returned when a stage body panics. The panic is
	// recovered and folded into the outcome.
	ErrStagePanic = errors.New("macro: stage panicked")

	// ErrCancelled is returned as the outcome error of a cancelled run.
	ErrCancelled = errors.New("macro: cancelled")

	// ErrCleanupFailed marks a run whose cleanup tier did not complete
	// cleanly.
	ErrCleanupFailed = errors.New("macro: cleanup failed")

	// ErrNotRunning is returned by control operations (pause, resume,
	// cancel, modify) on a run that has already reached a terminal state.
	ErrNotRunning = errors.New("macro: run not active")

	// ErrNotPaused is returned by Resume on a run that is not paused.
	ErrNotPaused = errors.New("macro: run not paused")

	// ErrMacroNotFound is returned when a registry lookup fails.
	ErrMacroNotFound = errors.New("macro: not registered")

	// ErrMacroExists is returned when registering a duplicate macro name.
	ErrMacroExists = errors.New("macro: already registered")

	// ErrMacroRunning is returned when starting a macro that already has an
	// active run. One run per macro name at a time.
	ErrMacroRunning = errors.New("macro: already running")
)
