package observing

import (
	"fmt"

	"github.com/calderwood-obs/observatory-core/internal/exposure"
)

// Field classes for goto-field stage selection. A repeat field is observed
// again from the same pointing and skips slew and calibrations; a cloned
// design reuses the current fibre configuration entirely.
const (
	FieldNew    = "new"
	FieldRepeat = "repeat"
	FieldCloned = "cloned"
)

// Parameter bag keys shared by the macro factories. Control payloads and
// the auto-pilot both build these maps.
const (
	ParamCount         = "count"
	ParamExpTime       = "exptime"
	ParamNIRCount      = "nir_count"
	ParamNIRExpTime    = "nir_exptime"
	ParamNIRReads      = "nir_reads"
	ParamPairs         = "pairs"
	ParamInitialDither = "initial_dither"
	ParamDesignMode    = "design_mode"
	ParamDesignID      = "design_id"
	ParamFieldClass    = "field_class"
	ParamRA            = "ra"
	ParamDec           = "dec"
	ParamRot           = "rot"
	ParamHartmann      = "hartmann"
	ParamLamp          = "lamp"
)

// numParam reads a numeric parameter, accepting the types a JSON payload
// or a literal map produce.
func numParam(params map[string]any, key string) (float64, bool) {
	v, ok := params[key]
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

func intParam(params map[string]any, key string) (int, bool) {
	n, ok := numParam(params, key)
	return int(n), ok
}

func boolParam(params map[string]any, key string) (bool, bool) {
	v, ok := params[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func stringParam(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// exposureParams converts an expose parameter bag to typed exposure
// parameters. Unset count defaults to one slow exposure; unset exptime
// falls back to the design-mode default; pairing defaults on.
func (g *Graphs) exposureParams(params map[string]any) (exposure.Params, error) {
	ep := exposure.Params{OpticalCount: 1, Pairs: true}

	if count, ok := intParam(params, ParamCount); ok {
		ep.OpticalCount = count
	}
	if expTime, ok := numParam(params, ParamExpTime); ok {
		ep.ExpTime = expTime
	} else {
		mode, _ := stringParam(params, ParamDesignMode)
		ep.ExpTime = g.cfg.DefaultExpTime(mode)
	}
	if n, ok := intParam(params, ParamNIRCount); ok {
		ep.NIRCount = n
	}
	if t, ok := numParam(params, ParamNIRExpTime); ok {
		ep.NIRExpTime = t
	}
	if reads, ok := intParam(params, ParamNIRReads); ok {
		ep.NIRReads = reads
	}
	if pairs, ok := boolParam(params, ParamPairs); ok {
		ep.Pairs = pairs
	}
	if dither, ok := stringParam(params, ParamInitialDither); ok {
		ep.InitialDither = dither
	}

	if err := ep.Validate(); err != nil {
		return exposure.Params{}, err
	}
	return ep, nil
}

// validateGotoFieldParams checks a goto-field parameter bag against the
// stages that will run.
func validateGotoFieldParams(params map[string]any, stages map[string]bool) error {
	if class, ok := stringParam(params, ParamFieldClass); ok {
		switch class {
		case FieldNew, FieldRepeat, FieldCloned:
		default:
			return fmt.Errorf("%w: field class %q", ErrInvalidParams, class)
		}
	}
	if stages["slew"] {
		if _, ok := numParam(params, ParamRA); !ok {
			return fmt.Errorf("%w: slew requires %s", ErrInvalidParams, ParamRA)
		}
		if _, ok := numParam(params, ParamDec); !ok {
			return fmt.Errorf("%w: slew requires %s", ErrInvalidParams, ParamDec)
		}
	}
	if stages["reconfigure"] {
		if _, ok := stringParam(params, ParamDesignID); !ok {
			return fmt.Errorf("%w: reconfigure requires %s", ErrInvalidParams, ParamDesignID)
		}
	}
	return nil
}
