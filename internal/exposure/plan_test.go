package exposure

import (
	"errors"
	"math"
	"testing"
)

// Site overheads used throughout: flush 17s, readout 63s, slow exposures
// of 900s. Full envelope 980s -> 490s per pair member; shutter-bounded
// final pair 917s -> 459s per member.
var testOverheads = Overheads{Flush: 17, Readout: 63}

const testReadTime = 10.6

func newTestPlan(t *testing.T, params Params) *Plan {
	t.Helper()
	p, err := New(params, testOverheads, testReadTime)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func fastTimes(p *Plan) []float64 {
	fast := p.FastExposures()
	out := make([]float64, len(fast))
	for i, f := range fast {
		out[i] = f.ExpTime
	}
	return out
}

func fastDithers(p *Plan) []string {
	fast := p.FastExposures()
	out := make([]string, len(fast))
	for i, f := range fast {
		out[i] = f.Dither
	}
	return out
}

func assertFloats(t *testing.T, got, want []float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length = %d, want %d (%v vs %v)", len(got), len(want), got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func assertStrings(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length = %d, want %d (%v vs %v)", len(got), len(want), got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

// ─── Readout Matching ───────────────────────────────────────────────────────

func TestMatching_SingleSlowExposure(t *testing.T) {
	p := newTestPlan(t, Params{OpticalCount: 1, ExpTime: 900, Pairs: true})

	assertFloats(t, fastTimes(p), []float64{490, 490})
	assertStrings(t, fastDithers(p), []string{"A", "B"})

	slow := p.SlowExposures()
	if len(slow) != 1 {
		t.Fatalf("slow count = %d, want 1", len(slow))
	}
	if !slow[0].ReadSync {
		t.Error("lone slow exposure should be read-synced (pair covers full envelope)")
	}
}

func TestMatching_TwoSlowExposures(t *testing.T) {
	p := newTestPlan(t, Params{OpticalCount: 2, ExpTime: 900, Pairs: true})

	assertFloats(t, fastTimes(p), []float64{490, 490, 459, 459})
	assertStrings(t, fastDithers(p), []string{"A", "B", "B", "A"})

	slow := p.SlowExposures()
	if !slow[0].ReadSync {
		t.Error("interior slow exposure should be read-synced")
	}
	if slow[1].ReadSync {
		t.Error("final slow exposure should not be read-synced (pair drops readout)")
	}
}

func TestMatching_ThreeSlowExposures(t *testing.T) {
	p := newTestPlan(t, Params{OpticalCount: 3, ExpTime: 900, Pairs: true})

	assertFloats(t, fastTimes(p), []float64{490, 490, 490, 490, 459, 459})
	assertStrings(t, fastDithers(p), []string{"A", "B", "B", "A", "A", "B"})
}

func TestMatching_FastOnly(t *testing.T) {
	// No slow exposures: each pair takes the full nominal envelope (980s).
	p := newTestPlan(t, Params{OpticalCount: 0, NIRCount: 2, ExpTime: 900, Pairs: true})

	assertFloats(t, fastTimes(p), []float64{490, 490, 490, 490})
}

func TestMatching_ExplicitFastTimeSkipsMatching(t *testing.T) {
	p := newTestPlan(t, Params{OpticalCount: 2, ExpTime: 900, NIRExpTime: 300, Pairs: true})

	assertFloats(t, fastTimes(p), []float64{300, 300, 300, 300})
	// Dither and pairing policy still applies.
	assertStrings(t, fastDithers(p), []string{"A", "B", "B", "A"})
}

func TestMatching_ReadCountSetsFastTime(t *testing.T) {
	p := newTestPlan(t, Params{OpticalCount: 1, ExpTime: 900, NIRReads: 10, Pairs: true})

	for i, got := range fastTimes(p) {
		if math.Abs(got-106) > 1e-9 {
			t.Errorf("[%d] = %v, want 106 (10 reads x 10.6s)", i, got)
		}
	}
}

func TestMatching_UnpairedAlternatesStrictly(t *testing.T) {
	p := newTestPlan(t, Params{OpticalCount: 4, ExpTime: 900, Pairs: false})

	assertStrings(t, fastDithers(p), []string{"A", "B", "A", "B"})
	// Unpaired matching: one fast exposure per slow exposure.
	assertFloats(t, fastTimes(p), []float64{490, 490, 490, 459})
}

func TestMatching_InitialDitherB(t *testing.T) {
	p := newTestPlan(t, Params{OpticalCount: 2, ExpTime: 900, Pairs: true, InitialDither: "B"})

	assertStrings(t, fastDithers(p), []string{"B", "A", "A", "B"})
}

func TestNew_InvalidParams(t *testing.T) {
	tests := []struct {
		name   string
		params Params
	}{
		{"negative count", Params{OpticalCount: -1, ExpTime: 900}},
		{"nothing to expose", Params{OpticalCount: 0, NIRCount: 0, ExpTime: 900}},
		{"zero exptime", Params{OpticalCount: 1}},
		{"bad dither", Params{OpticalCount: 1, ExpTime: 900, InitialDither: "C"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.params, testOverheads, testReadTime); !errors.Is(err, ErrInvalidParams) {
				t.Errorf("New() error = %v, want ErrInvalidParams", err)
			}
		})
	}
}

// ─── Iterators & Progress ───────────────────────────────────────────────────

func TestIterators_DrainInOrder(t *testing.T) {
	p := newTestPlan(t, Params{OpticalCount: 2, ExpTime: 900, Pairs: true})

	var seen []int
	for {
		f, ok := p.NextFast()
		if !ok {
			break
		}
		seen = append(seen, f.Index)
		p.FinishFast(f.Index)
	}
	if len(seen) != 4 {
		t.Fatalf("drained %d fast exposures, want 4", len(seen))
	}
	for i, idx := range seen {
		if idx != i+1 {
			t.Errorf("fast order[%d] = %d, want %d", i, idx, i+1)
		}
	}

	s1, ok := p.NextSlow()
	if !ok || s1.Index != 1 {
		t.Fatalf("NextSlow() = %+v, %v", s1, ok)
	}
	p.FinishSlow(1, 899.7)
	s2, ok := p.NextSlow()
	if !ok || s2.Index != 2 {
		t.Fatalf("NextSlow() = %+v, %v", s2, ok)
	}
	p.FinishSlow(2, 900.1)
	if _, ok := p.NextSlow(); ok {
		t.Error("NextSlow() returned an exposure after exhaustion")
	}

	slow := p.SlowExposures()
	if slow[0].ActualExpTime != 899.7 {
		t.Errorf("ActualExpTime = %v, want 899.7", slow[0].ActualExpTime)
	}
}

func TestProgress(t *testing.T) {
	p := newTestPlan(t, Params{OpticalCount: 3, ExpTime: 900, Pairs: true})

	current, total := p.Progress()
	if current != 1 || total != 3 {
		t.Errorf("Progress() = %d/%d, want 1/3", current, total)
	}

	p.NextSlow()
	p.FinishSlow(1, 900)
	current, total = p.Progress()
	if current != 2 || total != 3 {
		t.Errorf("Progress() = %d/%d, want 2/3", current, total)
	}
}

func TestETR_FullSequence(t *testing.T) {
	p := newTestPlan(t, Params{OpticalCount: 2, ExpTime: 900, Pairs: true})

	// Nothing started: slow side dominates with two full envelopes.
	want := 2 * (17 + 900 + 63)
	if got := p.ETR(); got != float64(want) {
		t.Errorf("ETR() = %v, want %v", got, want)
	}
}

func TestETR_DecreasesAsExposuresFinish(t *testing.T) {
	p := newTestPlan(t, Params{OpticalCount: 2, ExpTime: 900, Pairs: true})
	before := p.ETR()

	p.NextSlow()
	p.FinishSlow(1, 900)
	for i := 0; i < 2; i++ {
		f, _ := p.NextFast()
		p.FinishFast(f.Index)
	}

	after := p.ETR()
	if after >= before {
		t.Errorf("ETR did not decrease: before %v, after %v", before, after)
	}
}

// ─── Refresh ────────────────────────────────────────────────────────────────

// startFast marks the next n fast exposures started.
func startFast(p *Plan, n int) {
	for i := 0; i < n; i++ {
		p.NextFast()
	}
}

// startSlow marks the next n slow exposures started.
func startSlow(p *Plan, n int) {
	for i := 0; i < n; i++ {
		p.NextSlow()
	}
}

func TestRefresh_IncreaseCountMidPair(t *testing.T) {
	// Two-exposure plan: [490A 490B 459B 459A]. Three fast started (pair 1
	// complete, pair 2's first member on sky at 459B), two slow started.
	p := newTestPlan(t, Params{OpticalCount: 2, ExpTime: 900, Pairs: true})
	startFast(p, 3)
	startSlow(p, 2)

	if err := p.Refresh(Params{OpticalCount: 3, ExpTime: 900, Pairs: true}); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	// Pair 2's partner keeps 459 with the mirrored dither; pair 3 is the
	// new final pair and drops the readout.
	assertFloats(t, fastTimes(p), []float64{490, 490, 459, 459, 459, 459})
	assertStrings(t, fastDithers(p), []string{"A", "B", "B", "A", "A", "B"})

	slow := p.SlowExposures()
	if len(slow) != 3 {
		t.Fatalf("slow count = %d, want 3", len(slow))
	}
	// Slow 2 is now interior: its readout is absorbed again.
	if !slow[1].ReadSync {
		t.Error("slow 2 should be read-synced after count increase")
	}
	if slow[2].ReadSync {
		t.Error("slow 3 (new final) should not be read-synced")
	}
}

func TestRefresh_DecreaseCountMidPair(t *testing.T) {
	// Three-exposure plan: [490A 490B 490B 490A 459A 459B]. Three fast
	// started (pair 2's first member on sky at 490B).
	p := newTestPlan(t, Params{OpticalCount: 3, ExpTime: 900, Pairs: true})
	startFast(p, 3)
	startSlow(p, 2)

	if err := p.Refresh(Params{OpticalCount: 2, ExpTime: 900, Pairs: true}); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	// Pair 2 keeps 490 from its started member even though it is now the
	// final pair; pair 3 is dropped.
	assertFloats(t, fastTimes(p), []float64{490, 490, 490, 490})
	assertStrings(t, fastDithers(p), []string{"A", "B", "B", "A"})

	slow := p.SlowExposures()
	if len(slow) != 2 {
		t.Fatalf("slow count = %d, want 2", len(slow))
	}
	if slow[1].ReadSync {
		t.Error("slow 2 (final) should not be read-synced after decrease")
	}
}

func TestRefresh_UntouchedSuffixRegenerated(t *testing.T) {
	// Nothing started: refresh fully rebuilds.
	p := newTestPlan(t, Params{OpticalCount: 1, ExpTime: 900, Pairs: true})

	if err := p.Refresh(Params{OpticalCount: 2, ExpTime: 900, Pairs: true}); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	assertFloats(t, fastTimes(p), []float64{490, 490, 459, 459})
}

func TestRefresh_CompletedPrefixUnchanged(t *testing.T) {
	p := newTestPlan(t, Params{OpticalCount: 2, ExpTime: 900, Pairs: true})
	startFast(p, 2) // pair 1 fully started
	p.FinishFast(1)
	p.FinishFast(2)

	if err := p.Refresh(Params{OpticalCount: 2, ExpTime: 1000, Pairs: true}); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	fast := p.FastExposures()
	if fast[0].ExpTime != 490 || fast[1].ExpTime != 490 {
		t.Errorf("completed pair changed: %v, %v", fast[0].ExpTime, fast[1].ExpTime)
	}
	// New final pair sized from the new exposure time: ceil((17+1000)/2).
	if fast[2].ExpTime != 509 || fast[3].ExpTime != 509 {
		t.Errorf("regenerated pair = %v, %v, want 509, 509", fast[2].ExpTime, fast[3].ExpTime)
	}
}

func TestRefresh_RejectsInvalidParams(t *testing.T) {
	p := newTestPlan(t, Params{OpticalCount: 2, ExpTime: 900, Pairs: true})
	if err := p.Refresh(Params{OpticalCount: 2}); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("Refresh() error = %v, want ErrInvalidParams", err)
	}
	// Plan untouched after rejected refresh.
	assertFloats(t, fastTimes(p), []float64{490, 490, 459, 459})
}
