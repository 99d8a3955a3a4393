package exposure

import "errors"

// ErrInvalidParams is returned when exposure parameters fail validation.
// Check with errors.Is().
var ErrInvalidParams = errors.New("exposure: invalid parameters")
