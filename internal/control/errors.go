package control

import "errors"

// ErrBadRequest is returned for unknown operations, malformed topics and
// invalid cancel modes.
var ErrBadRequest = errors.New("control: bad request")
