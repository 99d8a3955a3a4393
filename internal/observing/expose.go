package observing

import (
	"github.com/calderwood-obs/observatory-core/internal/exposure"
	"github.com/calderwood-obs/observatory-core/internal/macro"
)

func (g *Graphs) setActivePlan(p *exposure.Plan) {
	g.planMu.Lock()
	g.activePlan = p
	g.planMu.Unlock()
}

// Progress reports the running expose macro's exposure progress and
// estimated time remaining in seconds. ok is false when no expose macro
// is active. The auto-pilot uses the ETR for its preload decision; the
// telemetry reporter publishes all three.
func (g *Graphs) Progress() (current, total int, etr float64, ok bool) {
	g.planMu.Lock()
	p := g.activePlan
	g.planMu.Unlock()
	if p == nil {
		return 0, 0, 0, false
	}
	current, total = p.Progress()
	return current, total, p.ETR(), true
}

// Expose returns the expose macro factory.
//
// The factory reconciles the two spectrographs' exposure sequences into a
// Plan; the optical and NIR stages run concurrently in one group, each
// drawing exposures from its side of the plan. Modify regenerates the
// not-yet-started remainder of the plan between exposures; an immediate
// cancel means "start no new exposure", never aborting an integration
// already committed to hardware.
func (g *Graphs) Expose() macro.GraphFactory {
	return func(params map[string]any) (macro.Graph, error) {
		ep, err := g.exposureParams(params)
		if err != nil {
			return macro.Graph{}, err
		}
		plan, err := exposure.New(ep, g.overheads(), g.cfg.Exposure.NIRReadTime)
		if err != nil {
			return macro.Graph{}, err
		}
		g.setActivePlan(plan)

		return macro.Graph{
			Name: MacroExpose,
			Preconditions: []macro.StageDef{
				{Name: "prepare", Run: g.exposePrepare},
			},
			Groups: [][]macro.StageDef{{
				{Name: "expose_optical", Run: g.exposeOptical(plan)},
				{Name: "expose_nir", Run: g.exposeNIR(plan)},
			}},
			Cleanup: []macro.StageDef{
				{Name: "cleanup", Run: g.exposeCleanup},
			},
			StageTimeout: g.cfg.StageTimeout(),
			ValidateParams: func(params map[string]any) error {
				_, err := g.exposureParams(params)
				return err
			},
		}, nil
	}
}

// exposePrepare refuses to start on top of a running exposure or with a
// calibration lamp still lit.
func (g *Graphs) exposePrepare(c *macro.Context) error {
	if g.optical.Exposing() || g.nir.Exposing() {
		return ErrInstrumentBusy
	}
	if g.lamps.AnyOn() {
		return ErrLampOn
	}
	return nil
}

// refreshPlan re-reads the run parameters and regenerates the unstarted
// remainder of the plan when they changed. Both expose stages call this at
// their between-exposure checkpoint; a second refresh with unchanged
// parameters is a no-op.
func (g *Graphs) refreshPlan(plan *exposure.Plan, params map[string]any) error {
	ep, err := g.exposureParams(params)
	if err != nil {
		return err
	}
	if ep == plan.Params() {
		return nil
	}
	return plan.Refresh(ep)
}

// exposeOptical drains the slow side of the plan. The final exposure's
// readout is not masked by a fast pair, so a pending readout is collected
// after the loop.
func (g *Graphs) exposeOptical(plan *exposure.Plan) macro.StageFunc {
	return func(c *macro.Context) error {
		for {
			if c.Cancelling() {
				break
			}
			if err := g.refreshPlan(plan, c.Params()); err != nil {
				return err
			}
			slow, ok := plan.NextSlow()
			if !ok {
				break
			}
			actual, err := g.optical.Expose(c.Ctx(), slow.ExpTime, slow.ReadSync)
			if err != nil {
				return err
			}
			plan.FinishSlow(slow.Index, actual)
		}
		if g.optical.ReadoutPending() {
			return g.optical.Readout(c.Ctx())
		}
		return nil
	}
}

// exposeNIR drains the fast side of the plan.
func (g *Graphs) exposeNIR(plan *exposure.Plan) macro.StageFunc {
	return func(c *macro.Context) error {
		for {
			if c.Cancelling() {
				break
			}
			if err := g.refreshPlan(plan, c.Params()); err != nil {
				return err
			}
			fast, ok := plan.NextFast()
			if !ok {
				break
			}
			if err := g.nir.Expose(c.Ctx(), fast.ExpTime, fast.Dither); err != nil {
				return err
			}
			plan.FinishFast(fast.Index)
		}
		return nil
	}
}

// exposeCleanup collects any readout left pending by a failed or cancelled
// optical stage and releases the active plan.
func (g *Graphs) exposeCleanup(c *macro.Context) error {
	defer g.setActivePlan(nil)
	if g.optical.ReadoutPending() {
		return g.optical.Readout(c.Ctx())
	}
	return nil
}
