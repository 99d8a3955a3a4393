package instrument

import (
	"context"
	"fmt"
)

// Telescope drives the mount.
type Telescope struct {
	bus CommandBus
}

// NewTelescope creates the telescope helper.
func NewTelescope(bus CommandBus) *Telescope {
	return &Telescope{bus: bus}
}

// Slew moves the mount to the given field centre and rotator angle,
// blocking until the mount acknowledges it has settled and is tracking.
//
// Parameters:
//   - ra: Right ascension in degrees
//   - dec: Declination in degrees
//   - rot: Rotator angle in degrees
func (t *Telescope) Slew(ctx context.Context, ra, dec, rot float64) error {
	if _, err := t.bus.Issue(ctx, DeviceTelescope, "slew", map[string]any{
		"ra":  ra,
		"dec": dec,
		"rot": rot,
	}); err != nil {
		return fmt.Errorf("telescope slew: %w", err)
	}
	return nil
}

// Tracking reports whether the mount is tracking, from retained status.
func (t *Telescope) Tracking() bool {
	fields, _, ok := t.bus.Status(DeviceTelescope)
	if !ok {
		return false
	}
	tracking, _ := boolField(fields, "tracking")
	return tracking
}
