package observing

import "errors"

// Domain errors for macro graph construction and preconditions.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, observing.ErrInstrumentBusy) {
//	    // an exposure is already in progress
//	}
var (
	// ErrInvalidParams is returned when a macro parameter bag fails
	// validation.
	ErrInvalidParams = errors.New("observing: invalid parameters")

	// ErrInstrumentBusy is returned by the prepare precondition when a
	// spectrograph is already integrating.
	ErrInstrumentBusy = errors.New("observing: instrument busy")

	// ErrLampOn is returned by the expose prepare precondition when a
	// calibration lamp is still lit.
	ErrLampOn = errors.New("observing: calibration lamp on")

	// ErrNoStages is returned when the configured stage subset for a field
	// class leaves the goto-field graph empty.
	ErrNoStages = errors.New("observing: no stages for field class")
)
