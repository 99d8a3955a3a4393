package instrument

import (
	"context"
	"fmt"
	"time"
)

// Lamps drives the calibration lamp controller.
//
// Arc and flat-field lamps need a warm-up period after power-on before
// their output is stable; the per-lamp warm-up comes from configuration
// via the warmUp function.
type Lamps struct {
	bus    CommandBus
	warmUp func(lamp string) time.Duration
}

// NewLamps creates the lamp controller helper.
//
// Parameters:
//   - bus: Command bus
//   - warmUp: Per-lamp warm-up duration lookup (zero means none)
func NewLamps(bus CommandBus, warmUp func(lamp string) time.Duration) *Lamps {
	if warmUp == nil {
		warmUp = func(string) time.Duration { return 0 }
	}
	return &Lamps{bus: bus, warmUp: warmUp}
}

// On switches a lamp on and blocks through its warm-up period.
func (l *Lamps) On(ctx context.Context, lamp string) error {
	if _, err := l.bus.Issue(ctx, DeviceLamps, "on", map[string]any{
		"lamp": lamp,
	}); err != nil {
		return fmt.Errorf("lamp %s on: %w", lamp, err)
	}
	if wait := l.warmUp(lamp); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Off switches a lamp off.
func (l *Lamps) Off(ctx context.Context, lamp string) error {
	if _, err := l.bus.Issue(ctx, DeviceLamps, "off", map[string]any{
		"lamp": lamp,
	}); err != nil {
		return fmt.Errorf("lamp %s off: %w", lamp, err)
	}
	return nil
}

// AllOff switches every lamp off. Used by macro cleanup so a failed
// calibration sequence never leaves a lamp burning into the night.
func (l *Lamps) AllOff(ctx context.Context) error {
	if _, err := l.bus.Issue(ctx, DeviceLamps, "all_off", nil); err != nil {
		return fmt.Errorf("lamps all off: %w", err)
	}
	return nil
}

// AnyOn reports whether the controller's retained status shows any lamp
// lit. Unknown status counts as off.
func (l *Lamps) AnyOn() bool {
	fields, _, ok := l.bus.Status(DeviceLamps)
	if !ok {
		return false
	}
	on, _ := boolField(fields, "any_on")
	return on
}
