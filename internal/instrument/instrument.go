package instrument

import (
	"context"
	"time"

	"github.com/calderwood-obs/observatory-core/internal/device"
)

// Well-known device names on the command bus.
const (
	DeviceOptical    = "spec_optical"
	DeviceNIR        = "spec_nir"
	DeviceLamps      = "lamps"
	DeviceTelescope  = "telescope"
	DeviceGuider     = "guider"
	DevicePositioner = "positioner"
)

// CommandBus is the bus surface the helpers need. Satisfied by *device.Bus.
type CommandBus interface {
	Issue(ctx context.Context, dev, command string, params map[string]any) (*device.Ack, error)
	Status(dev string) (fields map[string]any, at time.Time, ok bool)
}

// numField extracts a float64 field from a status or ack map, accepting the
// numeric types JSON unmarshalling produces.
func numField(fields map[string]any, key string) (float64, bool) {
	v, ok := fields[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// boolField extracts a bool field from a status map.
func boolField(fields map[string]any, key string) (bool, bool) {
	v, ok := fields[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// stringField extracts a string field from a status map.
func stringField(fields map[string]any, key string) (string, bool) {
	v, ok := fields[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
