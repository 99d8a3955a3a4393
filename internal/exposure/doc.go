// Package exposure reconciles exposure sequences between the observatory's
// two spectrographs.
//
// The slow optical spectrograph has fixed flush and readout overheads around
// each integration; the fast NIR spectrograph has none worth modelling and
// dithers between two beam positions. A Plan sizes the fast dither pairs so
// both instruments start and finish together: interior pairs absorb the full
// flush+integration+readout envelope of their slow exposure, the final pair
// stops with the shutter and drops the trailing readout.
//
// Dither positions mirror within a pair and alternate across pairs —
// (A,B), (B,A), (A,B), ... — so both positions see equal time on sky.
// Unpaired sequences alternate strictly.
//
// Plans are live: stage bodies draw exposures from iterators, and Refresh
// regenerates the not-yet-started suffix after an operator modify while
// preserving everything already executed, including the duration and
// mirrored dither of a pair whose first member is on sky.
package exposure
