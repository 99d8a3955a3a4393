package device

import "errors"

// Domain errors for the device bus.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrAckTimeout) {
//	    // subsystem did not respond in time
//	}
var (
	// ErrNotStarted is returned by Issue before Start has subscribed the
	// ack and status handlers.
	ErrNotStarted = errors.New("device: bus not started")

	// ErrAckTimeout is returned when a device does not acknowledge a
	// command within its configured timeout.
	ErrAckTimeout = errors.New("device: ack timeout")

	// ErrCommandFailed is returned when a device acknowledges a command
	// with an error status. The Ack carries the device's message.
	ErrCommandFailed = errors.New("device: command failed")
)
