package instrument

import (
	"context"
	"fmt"
)

// Positioner drives the fibre positioner.
type Positioner struct {
	bus CommandBus
}

// NewPositioner creates the fibre positioner helper.
func NewPositioner(bus CommandBus) *Positioner {
	return &Positioner{bus: bus}
}

// Reconfigure moves the fibres to the given design, blocking until the
// positioner acknowledges every robot has reached its target.
func (p *Positioner) Reconfigure(ctx context.Context, designID string) error {
	if _, err := p.bus.Issue(ctx, DevicePositioner, "reconfigure", map[string]any{
		"design_id": designID,
	}); err != nil {
		return fmt.Errorf("positioner reconfigure %s: %w", designID, err)
	}
	return nil
}
