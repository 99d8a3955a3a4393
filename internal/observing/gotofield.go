package observing

import (
	"fmt"

	"github.com/calderwood-obs/observatory-core/internal/macro"
)

// gotoFieldTemplate is the full goto-field stage layout. Field classes
// select a subset; the group structure of the surviving stages is kept.
var gotoFieldTemplate = [][]string{
	{"slew", "reconfigure"},
	{"calibrations"},
	{"hartmann"},
	{"acquire"},
	{"guide"},
}

// GotoField returns the goto-field macro factory.
//
// The stage subset comes from configuration keyed by the field class
// parameter: a new field runs everything, a repeat field skips slew and
// calibrations, a cloned design runs whatever the site configures (usually
// nothing, in which case the factory refuses the run). The optional
// hartmann stage is included only when requested in the parameters.
func (g *Graphs) GotoField() macro.GraphFactory {
	return func(params map[string]any) (macro.Graph, error) {
		stages := g.gotoFieldStages(params)

		var groups [][]macro.StageDef
		for _, tmpl := range gotoFieldTemplate {
			var group []macro.StageDef
			for _, name := range tmpl {
				if !stages[name] {
					continue
				}
				group = append(group, macro.StageDef{
					Name: name,
					Run:  g.gotoFieldStage(name),
				})
			}
			if len(group) > 0 {
				groups = append(groups, group)
			}
		}
		if len(groups) == 0 {
			class, _ := stringParam(params, ParamFieldClass)
			return macro.Graph{}, fmt.Errorf("%w: %q", ErrNoStages, class)
		}

		if err := validateGotoFieldParams(params, stages); err != nil {
			return macro.Graph{}, err
		}

		return macro.Graph{
			Name:          MacroGotoField,
			Preconditions: []macro.StageDef{{Name: "prepare", Run: g.gotoFieldPrepare}},
			Groups:        groups,
			Cleanup:       []macro.StageDef{{Name: "lamps_off", Run: g.lampsOff}},
			StageTimeout:  g.cfg.StageTimeout(),
			ValidateParams: func(params map[string]any) error {
				return validateGotoFieldParams(params, stages)
			},
		}, nil
	}
}

// gotoFieldStages resolves the stage subset for the run's field class.
func (g *Graphs) gotoFieldStages(params map[string]any) map[string]bool {
	class, _ := stringParam(params, ParamFieldClass)
	var names []string
	switch class {
	case FieldRepeat:
		names = g.cfg.Macros.GotoField.RepeatFieldStages
	case FieldCloned:
		names = g.cfg.Macros.GotoField.ClonedStages
	default:
		names = g.cfg.Macros.GotoField.NewFieldStages
	}

	stages := make(map[string]bool, len(names)+1)
	for _, name := range names {
		stages[name] = true
	}
	if hartmann, _ := boolParam(params, ParamHartmann); hartmann {
		stages["hartmann"] = true
	}
	return stages
}

// gotoFieldPrepare refuses to move the telescope or fibres while either
// spectrograph is integrating.
func (g *Graphs) gotoFieldPrepare(c *macro.Context) error {
	if g.optical.Exposing() || g.nir.Exposing() {
		return ErrInstrumentBusy
	}
	return nil
}

// gotoFieldStage maps a stage name to its body.
func (g *Graphs) gotoFieldStage(name string) macro.StageFunc {
	switch name {
	case "slew":
		return g.slewStage
	case "reconfigure":
		return g.reconfigureStage
	case "calibrations":
		return g.calibrationsStage
	case "hartmann":
		return g.hartmannStage
	case "acquire":
		return g.acquireStage
	case "guide":
		return g.guideStage
	default:
		return func(*macro.Context) error {
			return fmt.Errorf("%w: unknown stage %q", ErrInvalidParams, name)
		}
	}
}

func (g *Graphs) slewStage(c *macro.Context) error {
	params := c.Params()
	ra, _ := numParam(params, ParamRA)
	dec, _ := numParam(params, ParamDec)
	rot, _ := numParam(params, ParamRot)
	return g.telescope.Slew(c.Ctx(), ra, dec, rot)
}

func (g *Graphs) reconfigureStage(c *macro.Context) error {
	designID, _ := stringParam(c.Params(), ParamDesignID)
	return g.positioner.Reconfigure(c.Ctx(), designID)
}

// calibrationsStage takes an arc frame with the new fibre configuration.
// The lamp warm-up wait happens inside the lamp helper.
func (g *Graphs) calibrationsStage(c *macro.Context) error {
	ctx := c.Ctx()
	if err := g.lamps.On(ctx, "arc"); err != nil {
		return err
	}
	if _, err := g.optical.Expose(ctx, arcExpTime, true); err != nil {
		return err
	}
	return g.lamps.Off(ctx, "arc")
}

func (g *Graphs) hartmannStage(c *macro.Context) error {
	return g.optical.Hartmann(c.Ctx())
}

func (g *Graphs) acquireStage(c *macro.Context) error {
	return g.guider.Acquire(c.Ctx())
}

func (g *Graphs) guideStage(c *macro.Context) error {
	if err := g.guider.StartGuiding(c.Ctx()); err != nil {
		return err
	}
	return g.guider.WaitForConvergence(c.Ctx(), g.cfg.AutoPilot.MinGuideRMS, g.guideWait())
}

// lampsOff is the shared cleanup stage. Idempotent on the controller side.
func (g *Graphs) lampsOff(c *macro.Context) error {
	return g.lamps.AllOff(c.Ctx())
}
