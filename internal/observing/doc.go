// Package observing defines the concrete macro graphs of the observatory:
// goto_field (slew, fibre reconfiguration, calibrations, acquisition,
// guiding), expose (the reconciled two-spectrograph exposure sequence) and
// dome_flat (fast spectrograph flat fields).
//
// The graphs are data: tiers and concurrency groups interpreted by the
// generic engine in internal/macro. Stage bodies drive the hardware
// through internal/instrument and read run parameters from the macro
// context at well-defined checkpoints, which is what makes the expose
// macro modifiable while it runs.
package observing
