// Package instrument layers device-specific helpers on top of the command
// bus: the slow optical spectrograph, the fast NIR spectrograph, the
// calibration lamp controller, the telescope mount and the autoguider.
//
// Each helper translates a small set of typed methods into bus commands
// and retained-status reads. The helpers are deliberately thin; sequencing
// (which exposure comes next, when a lamp must be lit) belongs to the
// macro graphs in internal/observing.
package instrument
