package observing

import "github.com/calderwood-obs/observatory-core/internal/macro"

// Dome flat defaults. The flat sequence does not dither: the mechanism
// stays at A so the frames are directly comparable.
const (
	defaultFlatLamp  = "flat"
	defaultFlatCount = 4
	defaultFlatReads = 3
)

// DomeFlat returns the dome-flat macro factory: lamp on (with warm-up), a
// short sequence of fast NIR flats, lamp off in cleanup.
func (g *Graphs) DomeFlat() macro.GraphFactory {
	return func(params map[string]any) (macro.Graph, error) {
		return macro.Graph{
			Name: MacroDomeFlat,
			Preconditions: []macro.StageDef{
				{Name: "prepare", Run: g.domeFlatPrepare},
			},
			Groups: [][]macro.StageDef{{
				{Name: "flats", Run: g.domeFlatStage},
			}},
			Cleanup: []macro.StageDef{
				{Name: "lamps_off", Run: g.lampsOff},
			},
			StageTimeout: g.cfg.StageTimeout(),
		}, nil
	}
}

func (g *Graphs) domeFlatPrepare(c *macro.Context) error {
	if g.optical.Exposing() || g.nir.Exposing() {
		return ErrInstrumentBusy
	}
	return nil
}

// domeFlatStage lights the flat lamp and takes the frame sequence. An
// immediate cancel stops before the next frame; the lit lamp is handled by
// the lamps_off cleanup.
func (g *Graphs) domeFlatStage(c *macro.Context) error {
	params := c.Params()
	lamp, ok := stringParam(params, ParamLamp)
	if !ok {
		lamp = defaultFlatLamp
	}
	count, ok := intParam(params, ParamCount)
	if !ok || count < 1 {
		count = defaultFlatCount
	}
	reads, ok := intParam(params, ParamNIRReads)
	if !ok || reads < 1 {
		reads = defaultFlatReads
	}
	expTime := float64(reads) * g.cfg.Exposure.NIRReadTime

	ctx := c.Ctx()
	if err := g.lamps.On(ctx, lamp); err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		if c.Cancelling() {
			break
		}
		if err := g.nir.Expose(ctx, expTime, "A"); err != nil {
			return err
		}
	}
	return g.lamps.Off(ctx, lamp)
}
