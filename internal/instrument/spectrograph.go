package instrument

import (
	"context"
	"fmt"
)

// Optical drives the slow optical spectrograph.
//
// Exposures block until the instrument acknowledges completion: with
// readSync the ack covers integration and readout; without it the ack
// arrives at shutter close and Readout must be called separately (or left
// pending while the telescope moves on).
type Optical struct {
	bus CommandBus
}

// NewOptical creates the optical spectrograph helper.
func NewOptical(bus CommandBus) *Optical {
	return &Optical{bus: bus}
}

// Expose integrates for expTime seconds.
//
// Parameters:
//   - expTime: Integration time in seconds
//   - readSync: Whether to block through the readout as well
//
// Returns:
//   - float64: Measured wall-clock integration time reported by the
//     instrument (falls back to expTime when not reported)
//   - error: Command or timeout failure
func (o *Optical) Expose(ctx context.Context, expTime float64, readSync bool) (float64, error) {
	ack, err := o.bus.Issue(ctx, DeviceOptical, "expose", map[string]any{
		"exptime":   expTime,
		"read_sync": readSync,
	})
	if err != nil {
		return 0, fmt.Errorf("optical expose: %w", err)
	}
	if actual, ok := numField(ack.Fields, "actual_exptime"); ok {
		return actual, nil
	}
	return expTime, nil
}

// Readout reads out a pending exposure. No-op on the instrument side when
// nothing is pending.
func (o *Optical) Readout(ctx context.Context) error {
	if _, err := o.bus.Issue(ctx, DeviceOptical, "readout", nil); err != nil {
		return fmt.Errorf("optical readout: %w", err)
	}
	return nil
}

// ReadoutPending reports whether an exposure awaits readout, from the
// instrument's retained status.
func (o *Optical) ReadoutPending() bool {
	fields, _, ok := o.bus.Status(DeviceOptical)
	if !ok {
		return false
	}
	pending, _ := boolField(fields, "readout_pending")
	return pending
}

// Hartmann runs a left/right Hartmann door sequence for a collimator focus
// check, blocking until the instrument acknowledges both exposures.
func (o *Optical) Hartmann(ctx context.Context) error {
	if _, err := o.bus.Issue(ctx, DeviceOptical, "hartmann", nil); err != nil {
		return fmt.Errorf("optical hartmann: %w", err)
	}
	return nil
}

// Exposing reports whether an integration is in progress.
func (o *Optical) Exposing() bool {
	fields, _, ok := o.bus.Status(DeviceOptical)
	if !ok {
		return false
	}
	state, _ := stringField(fields, "state")
	return state == "exposing"
}

// TimeRemaining returns the seconds left in the current integration, from
// the instrument's retained status. Zero when idle or unknown.
func (o *Optical) TimeRemaining() float64 {
	fields, _, ok := o.bus.Status(DeviceOptical)
	if !ok {
		return 0
	}
	remaining, _ := numField(fields, "time_remaining")
	return remaining
}

// NIR drives the fast NIR spectrograph.
type NIR struct {
	bus CommandBus
}

// NewNIR creates the NIR spectrograph helper.
func NewNIR(bus CommandBus) *NIR {
	return &NIR{bus: bus}
}

// SetDither moves the dither mechanism to a beam position ("A" or "B").
func (n *NIR) SetDither(ctx context.Context, position string) error {
	if _, err := n.bus.Issue(ctx, DeviceNIR, "dither", map[string]any{
		"position": position,
	}); err != nil {
		return fmt.Errorf("nir dither to %s: %w", position, err)
	}
	return nil
}

// Expose moves to the dither position and integrates for expTime seconds,
// blocking until the instrument acknowledges completion.
func (n *NIR) Expose(ctx context.Context, expTime float64, dither string) error {
	if err := n.SetDither(ctx, dither); err != nil {
		return err
	}
	if _, err := n.bus.Issue(ctx, DeviceNIR, "expose", map[string]any{
		"exptime": expTime,
	}); err != nil {
		return fmt.Errorf("nir expose: %w", err)
	}
	return nil
}

// Exposing reports whether an integration is in progress.
func (n *NIR) Exposing() bool {
	fields, _, ok := n.bus.Status(DeviceNIR)
	if !ok {
		return false
	}
	state, _ := stringField(fields, "state")
	return state == "exposing"
}
