package instrument

import (
	"context"
	"fmt"
	"time"
)

// Default cadence for polling guider RMS from retained status.
const defaultRMSPollInterval = 2 * time.Second

// Guider drives the autoguider.
type Guider struct {
	bus CommandBus

	// pollInterval overrides the RMS poll cadence; tests shorten it.
	pollInterval time.Duration
}

// NewGuider creates the guider helper.
func NewGuider(bus CommandBus) *Guider {
	return &Guider{bus: bus, pollInterval: defaultRMSPollInterval}
}

// Acquire centres the field on the guide fibre, blocking until the guider
// acknowledges the acquisition sequence finished.
func (g *Guider) Acquire(ctx context.Context) error {
	if _, err := g.bus.Issue(ctx, DeviceGuider, "acquire", nil); err != nil {
		return fmt.Errorf("guider acquire: %w", err)
	}
	return nil
}

// StartGuiding starts the closed-loop guide corrections.
func (g *Guider) StartGuiding(ctx context.Context) error {
	if _, err := g.bus.Issue(ctx, DeviceGuider, "guide_on", nil); err != nil {
		return fmt.Errorf("guider start: %w", err)
	}
	return nil
}

// StopGuiding stops the guide loop.
func (g *Guider) StopGuiding(ctx context.Context) error {
	if _, err := g.bus.Issue(ctx, DeviceGuider, "guide_off", nil); err != nil {
		return fmt.Errorf("guider stop: %w", err)
	}
	return nil
}

// RMS returns the current guide RMS in arcseconds from retained status.
// Returns false when the guider has not published an RMS yet.
func (g *Guider) RMS() (float64, bool) {
	fields, _, ok := g.bus.Status(DeviceGuider)
	if !ok {
		return 0, false
	}
	return numField(fields, "rms")
}

// WaitForConvergence polls the guide RMS until it drops to maxRMS or
// below, or the timeout expires.
//
// Parameters:
//   - maxRMS: Convergence threshold in arcseconds
//   - timeout: How long to wait before giving up
//
// Returns:
//   - error: ErrGuiderNotConverged on timeout, ctx.Err() on cancellation
func (g *Guider) WaitForConvergence(ctx context.Context, maxRMS float64, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		if rms, ok := g.RMS(); ok && rms <= maxRMS {
			return nil
		}
		select {
		case <-ticker.C:
		case <-deadline.C:
			rms, _ := g.RMS()
			return fmt.Errorf("%w: rms %.2f after %s (want <= %.2f)",
				ErrGuiderNotConverged, rms, timeout, maxRMS)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
