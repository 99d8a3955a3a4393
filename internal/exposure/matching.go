package exposure

import "math"

// Overheads are the fixed per-exposure overheads of the slow (optical)
// spectrograph, in seconds. The flush happens before integration opens and
// the readout after it closes; both are dead time the fast spectrograph can
// absorb by exposing through them.
type Overheads struct {
	Flush   float64
	Readout float64
}

// envelope returns the full wall-clock envelope of one slow exposure:
// flush, integration, readout.
func (o Overheads) envelope(expTime float64) float64 {
	return o.Flush + expTime + o.Readout
}

// pairDurations computes the per-member duration of each fast dither pair
// matched against a sequence of count slow exposures of expTime seconds.
//
// The fast spectrograph has no shutter dead time worth modelling, so each
// pair splits its share of the slow envelope evenly, rounded up to whole
// seconds per member:
//
//   - A single slow exposure is covered edge to edge: one pair, each member
//     ceil((F+T+R)/2).
//   - In a sequence, pairs 1..N-1 absorb the full F+T+R envelope of their
//     slow exposure. The final pair stops with the shutter: it drops the
//     trailing readout and each member is ceil((F+T)/2), so the sequence
//     ends when the last slow integration does.
//
// With T=900, F=17, R=63: count 1 -> [490 490]; count 2 -> pairs
// [490 490] and [459 459].
func pairDurations(count int, expTime float64, ov Overheads) []float64 {
	if count < 1 {
		return nil
	}
	full := math.Ceil(ov.envelope(expTime) / 2)
	if count == 1 {
		return []float64{full}
	}
	out := make([]float64, count)
	for i := 0; i < count-1; i++ {
		out[i] = full
	}
	out[count-1] = math.Ceil((ov.Flush + expTime) / 2)
	return out
}

// readSync reports whether the fast pair matched to slow exposure index
// (1-based) absorbs that exposure's readout. The final pair of a multi-
// exposure sequence does not; a lone exposure is covered in full.
func readSync(index, count int) bool {
	if count == 1 {
		return true
	}
	return index < count
}

// mirror flips a dither position between the two beam positions.
func mirror(pos string) string {
	if pos == DitherA {
		return DitherB
	}
	return DitherA
}

// pairDither returns the dither positions of pair pi (0-based). Pairs
// alternate their internal order so consecutive pairs mirror each other:
// (A,B), (B,A), (A,B), ... starting from the initial position.
func pairDither(pi int, initial string) (first, second string) {
	if pi%2 == 0 {
		return initial, mirror(initial)
	}
	return mirror(initial), initial
}

// soloDither returns the dither position of unpaired fast exposure i
// (0-based): strict alternation from the initial position.
func soloDither(i int, initial string) string {
	if i%2 == 0 {
		return initial
	}
	return mirror(initial)
}
