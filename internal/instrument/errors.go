package instrument

import "errors"

// Domain errors for instrument helpers.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, instrument.ErrGuiderNotConverged) {
//	    // seeing too poor to reach the requested RMS
//	}
var (
	// ErrGuiderNotConverged is returned when the guide RMS does not reach
	// the requested threshold within the wait timeout.
	ErrGuiderNotConverged = errors.New("instrument: guider not converged")
)
