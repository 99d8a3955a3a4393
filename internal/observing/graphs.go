package observing

import (
	"sync"
	"time"

	"github.com/calderwood-obs/observatory-core/internal/exposure"
	"github.com/calderwood-obs/observatory-core/internal/infrastructure/config"
	"github.com/calderwood-obs/observatory-core/internal/instrument"
)

// Macro names registered with the engine.
const (
	MacroGotoField = "goto_field"
	MacroExpose    = "expose"
	MacroDomeFlat  = "dome_flat"
)

// Arc exposure time for the goto-field calibration stage, in seconds.
const arcExpTime = 45.0

// Graphs builds the concrete macro graphs from the instrument helpers and
// site configuration. One Graphs value serves every macro run; all per-run
// state lives in the parameter bag and the per-run exposure plan.
type Graphs struct {
	cfg *config.Config

	// planMu guards activePlan, the plan of the expose macro currently
	// running (nil when none). Read by Progress.
	planMu     sync.Mutex
	activePlan *exposure.Plan

	optical    *instrument.Optical
	nir        *instrument.NIR
	lamps      *instrument.Lamps
	telescope  *instrument.Telescope
	guider     *instrument.Guider
	positioner *instrument.Positioner
}

// NewGraphs wires the macro graphs to the command bus.
func NewGraphs(bus instrument.CommandBus, cfg *config.Config) *Graphs {
	return &Graphs{
		cfg:        cfg,
		optical:    instrument.NewOptical(bus),
		nir:        instrument.NewNIR(bus),
		lamps:      instrument.NewLamps(bus, cfg.LampWarmUp),
		telescope:  instrument.NewTelescope(bus),
		guider:     instrument.NewGuider(bus),
		positioner: instrument.NewPositioner(bus),
	}
}

// overheads returns the slow spectrograph overheads from site config.
func (g *Graphs) overheads() exposure.Overheads {
	return exposure.Overheads{
		Flush:   float64(g.cfg.Exposure.Overheads.Flush),
		Readout: float64(g.cfg.Exposure.Overheads.Readout),
	}
}

func (g *Graphs) guideWait() time.Duration {
	return time.Duration(g.cfg.AutoPilot.GuideWait) * time.Second
}
