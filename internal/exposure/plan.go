package exposure

import (
	"fmt"
	"sync"
	"time"
)

// Dither positions of the fast spectrograph's beam-switching mechanism.
const (
	DitherA = "A"
	DitherB = "B"
)

// Params describe an exposure sequence for the two spectrographs.
//
// OpticalCount slow exposures of ExpTime seconds each; the fast NIR
// spectrograph runs alongside. When neither NIRExpTime nor NIRReads is set,
// fast exposure times are derived by readout matching (see pairDurations).
// An explicit fast time skips matching but keeps the dither and pairing
// policy.
type Params struct {
	// OpticalCount is the number of slow exposures. Zero means a fast-only
	// sequence of NIRCount pairs (or exposures) sized from the nominal
	// slow envelope.
	OpticalCount int

	// ExpTime is the slow integration time in seconds. Also the nominal
	// time used to size fast-only sequences.
	ExpTime float64

	// NIRCount is the number of fast pairs (when Pairs) or exposures used
	// when OpticalCount is zero. Ignored otherwise: matching pins the fast
	// sequence to the slow one.
	NIRCount int

	// NIRExpTime, when > 0, is an explicit fast exposure time in seconds
	// and disables readout matching.
	NIRExpTime float64

	// NIRReads, when > 0, expresses the fast exposure time as a read count
	// (NIRReads x the per-read duration) and disables readout matching.
	NIRReads int

	// Pairs groups fast exposures into mirrored dither pairs.
	Pairs bool

	// InitialDither is the first dither position ("A" or "B"). Empty
	// defaults to "A".
	InitialDither string
}

// normalise fills defaults.
func (p Params) normalise() Params {
	if p.InitialDither == "" {
		p.InitialDither = DitherA
	}
	return p
}

func (p Params) validate() error {
	if p.OpticalCount < 0 {
		return fmt.Errorf("%w: optical count %d", ErrInvalidParams, p.OpticalCount)
	}
	if p.OpticalCount == 0 && p.NIRCount < 1 {
		return fmt.Errorf("%w: nothing to expose", ErrInvalidParams)
	}
	if p.ExpTime <= 0 {
		return fmt.Errorf("%w: exposure time %.1f", ErrInvalidParams, p.ExpTime)
	}
	if p.NIRExpTime < 0 || p.NIRReads < 0 {
		return fmt.Errorf("%w: negative fast exposure time", ErrInvalidParams)
	}
	if d := p.InitialDither; d != DitherA && d != DitherB {
		return fmt.Errorf("%w: dither position %q", ErrInvalidParams, d)
	}
	return nil
}

// Validate checks the parameters as New would, without building a plan.
// Used by the expose macro's parameter validation hook.
func (p Params) Validate() error {
	return p.normalise().validate()
}

// explicitFastTime returns the explicit fast exposure time, or 0 when
// readout matching applies.
func (p Params) explicitFastTime(readTime float64) float64 {
	if p.NIRExpTime > 0 {
		return p.NIRExpTime
	}
	if p.NIRReads > 0 {
		return float64(p.NIRReads) * readTime
	}
	return 0
}

// FastExposure is one planned exposure of the fast NIR spectrograph.
type FastExposure struct {
	// Index is 1-based within the sequence.
	Index int

	// Pair is the 1-based pair number, or 0 for an unpaired exposure.
	Pair int

	ExpTime float64
	Dither  string

	Started bool
	Done    bool

	startedAt time.Time
}

// SlowExposure is one planned exposure of the slow optical spectrograph.
type SlowExposure struct {
	// Index is 1-based within the sequence.
	Index int

	ExpTime float64

	// ActualExpTime is the measured wall-clock integration time, recorded
	// when the exposure finishes.
	ActualExpTime float64

	// ReadSync mirrors whether the matching fast pair absorbs this
	// exposure's readout.
	ReadSync bool

	Started bool
	Done    bool

	startedAt time.Time
}

// Plan is the reconciled exposure sequence for both spectrographs.
//
// Stage bodies draw exposures through NextFast/NextSlow, report completion
// through FinishFast/FinishSlow, and the expose macro's Modify handler calls
// Refresh to regenerate the not-yet-started suffix.
//
// Thread Safety: all methods are safe for concurrent use; the fast and slow
// sides run on separate goroutines within an expose group.
type Plan struct {
	mu sync.Mutex

	params   Params
	ov       Overheads
	readTime float64

	fast []FastExposure
	slow []SlowExposure
}

// New builds a plan from validated parameters.
//
// Parameters:
//   - params: Sequence description
//   - ov: Slow spectrograph overheads (site config)
//   - nirReadTime: Duration of one fast read in seconds (site config)
func New(params Params, ov Overheads, nirReadTime float64) (*Plan, error) {
	params = params.normalise()
	if err := params.validate(); err != nil {
		return nil, err
	}

	p := &Plan{
		params:   params,
		ov:       ov,
		readTime: nirReadTime,
	}
	p.slow = buildSlow(params)
	p.fast = buildFast(params, ov, nirReadTime)
	return p, nil
}

// buildSlow generates the slow sequence for the given params.
func buildSlow(params Params) []SlowExposure {
	out := make([]SlowExposure, params.OpticalCount)
	for i := range out {
		out[i] = SlowExposure{
			Index:    i + 1,
			ExpTime:  params.ExpTime,
			ReadSync: readSync(i+1, params.OpticalCount),
		}
	}
	return out
}

// buildFast generates the fast sequence for the given params.
func buildFast(params Params, ov Overheads, readTime float64) []FastExposure {
	explicit := params.explicitFastTime(readTime)

	// Number of pairs (or solo exposures): pinned to the slow count under
	// matching, free-running otherwise.
	count := params.OpticalCount
	if count == 0 {
		count = params.NIRCount
	}

	var times []float64
	switch {
	case explicit > 0:
		times = make([]float64, count)
		for i := range times {
			times[i] = explicit
		}
	case params.OpticalCount == 0:
		// Fast-only: every pair takes the full nominal envelope.
		full := pairDurations(1, params.ExpTime, ov)[0]
		times = make([]float64, count)
		for i := range times {
			times[i] = full
		}
	default:
		times = pairDurations(count, params.ExpTime, ov)
	}

	if !params.Pairs {
		out := make([]FastExposure, count)
		for i := range out {
			out[i] = FastExposure{
				Index:   i + 1,
				ExpTime: times[i],
				Dither:  soloDither(i, params.InitialDither),
			}
		}
		return out
	}

	out := make([]FastExposure, 0, 2*count)
	for pi := 0; pi < count; pi++ {
		first, second := pairDither(pi, params.InitialDither)
		out = append(out,
			FastExposure{Index: 2*pi + 1, Pair: pi + 1, ExpTime: times[pi], Dither: first},
			FastExposure{Index: 2*pi + 2, Pair: pi + 1, ExpTime: times[pi], Dither: second},
		)
	}
	return out
}

// FastExposures returns a snapshot of the fast sequence.
func (p *Plan) FastExposures() []FastExposure {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]FastExposure, len(p.fast))
	copy(out, p.fast)
	return out
}

// SlowExposures returns a snapshot of the slow sequence.
func (p *Plan) SlowExposures() []SlowExposure {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SlowExposure, len(p.slow))
	copy(out, p.slow)
	return out
}

// Params returns the parameters the plan was last built from.
func (p *Plan) Params() Params {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.params
}

// NextFast marks the next pending fast exposure started and returns it.
// The second return is false when the sequence is exhausted.
func (p *Plan) NextFast() (FastExposure, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.fast {
		if !p.fast[i].Started {
			p.fast[i].Started = true
			p.fast[i].startedAt = time.Now()
			return p.fast[i], true
		}
	}
	return FastExposure{}, false
}

// NextSlow marks the next pending slow exposure started and returns it.
func (p *Plan) NextSlow() (SlowExposure, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.slow {
		if !p.slow[i].Started {
			p.slow[i].Started = true
			p.slow[i].startedAt = time.Now()
			return p.slow[i], true
		}
	}
	return SlowExposure{}, false
}

// FinishFast marks a fast exposure done.
func (p *Plan) FinishFast(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.fast {
		if p.fast[i].Index == index {
			p.fast[i].Done = true
			return
		}
	}
}

// FinishSlow marks a slow exposure done and records its measured
// integration time.
func (p *Plan) FinishSlow(index int, actualExpTime float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.slow {
		if p.slow[i].Index == index {
			p.slow[i].Done = true
			p.slow[i].ActualExpTime = actualExpTime
			return
		}
	}
}

// Progress returns the 1-based index of the slow exposure in progress (or
// the next pending one) and the total count. Fast-only plans report the
// fast sequence instead.
func (p *Plan) Progress() (current, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.slow) > 0 {
		for i := range p.slow {
			if !p.slow[i].Done {
				return p.slow[i].Index, len(p.slow)
			}
		}
		return len(p.slow), len(p.slow)
	}
	for i := range p.fast {
		if !p.fast[i].Done {
			return p.fast[i].Index, len(p.fast)
		}
	}
	return len(p.fast), len(p.fast)
}

// ETR estimates the wall-clock time remaining for the whole sequence, in
// seconds. The auto-pilot compares it against the preload lead time.
//
// Each side is summed independently and the slower one dominates: the slow
// side counts the full envelope of pending exposures plus the remainder of
// an exposure in progress (integration left plus readout); the fast side
// counts pending exposure times plus the remainder of the one integrating.
func (p *Plan) ETR() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()

	var slowRem float64
	for i := range p.slow {
		s := &p.slow[i]
		switch {
		case s.Done:
		case !s.Started:
			slowRem += p.ov.envelope(s.ExpTime)
		default:
			left := s.ExpTime - now.Sub(s.startedAt).Seconds()
			if left < 0 {
				left = 0
			}
			slowRem += left + p.ov.Readout
		}
	}

	var fastRem float64
	for i := range p.fast {
		f := &p.fast[i]
		switch {
		case f.Done:
		case !f.Started:
			fastRem += f.ExpTime
		default:
			left := f.ExpTime - now.Sub(f.startedAt).Seconds()
			if left < 0 {
				left = 0
			}
			fastRem += left
		}
	}

	if fastRem > slowRem {
		return fastRem
	}
	return slowRem
}

// Refresh regenerates the plan for new parameters after a modify.
//
// The executed prefix is preserved: exposures already started keep their
// values. A fast pair whose first member has started keeps that member's
// duration for its partner, with the mirrored dither, so the pair stays
// internally consistent whatever the new sequence says. Everything not yet
// started is rebuilt from the new parameters, including the final-pair
// readout drop at its new position. In-progress slow exposures keep their
// duration but have ReadSync recomputed against the new sequence length.
func (p *Plan) Refresh(params Params) error {
	params = params.normalise()
	if err := params.validate(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.refreshSlow(params)
	p.refreshFast(params)
	p.params = params
	return nil
}

func (p *Plan) refreshSlow(params Params) {
	count := params.OpticalCount

	kept := make([]SlowExposure, 0, count)
	for i := range p.slow {
		s := p.slow[i]
		if !s.Started {
			break
		}
		s.ReadSync = readSync(s.Index, count)
		kept = append(kept, s)
	}
	for i := len(kept); i < count; i++ {
		kept = append(kept, SlowExposure{
			Index:    i + 1,
			ExpTime:  params.ExpTime,
			ReadSync: readSync(i+1, count),
		})
	}
	p.slow = kept
}

func (p *Plan) refreshFast(params Params) {
	// Rebuild the target sequence, then overlay the executed prefix and
	// the pair-partner continuity rule.
	target := buildFast(params, p.ov, p.readTime)

	if !params.Pairs {
		kept := make([]FastExposure, 0, len(target))
		for i := range p.fast {
			if !p.fast[i].Started {
				break
			}
			kept = append(kept, p.fast[i])
		}
		for i := len(kept); i < len(target); i++ {
			kept = append(kept, target[i])
		}
		p.fast = kept
		return
	}

	oldPairs := pairSlices(p.fast)
	newCount := len(target) / 2

	out := make([]FastExposure, 0, len(target))
	pi := 0
	for ; pi < len(oldPairs); pi++ {
		pair := oldPairs[pi]
		if !pair[0].Started {
			// Nothing started from here on: the new sequence takes over.
			break
		}
		if len(pair) == 2 && pair[1].Started {
			// Fully started pair: untouched, even beyond the new count.
			out = append(out, pair...)
			continue
		}
		// First member started: the partner copies its duration and
		// mirrors its dither.
		partner := FastExposure{
			Pair:    pair[0].Pair,
			ExpTime: pair[0].ExpTime,
			Dither:  mirror(pair[0].Dither),
		}
		out = append(out, pair[0], partner)
	}
	for ; pi < newCount; pi++ {
		first, second := pairDither(pi, params.InitialDither)
		exptime := target[2*pi].ExpTime
		out = append(out,
			FastExposure{Pair: pi + 1, ExpTime: exptime, Dither: first},
			FastExposure{Pair: pi + 1, ExpTime: exptime, Dither: second},
		)
	}

	for i := range out {
		out[i].Index = i + 1
	}
	p.fast = out
}

// pairSlices groups a paired fast sequence into consecutive pairs.
func pairSlices(fast []FastExposure) [][]FastExposure {
	var out [][]FastExposure
	for i := 0; i < len(fast); i += 2 {
		end := i + 2
		if end > len(fast) {
			end = len(fast)
		}
		out = append(out, fast[i:end:end])
	}
	return out
}
