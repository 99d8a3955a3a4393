// Package device provides the command bus between Observatory Core and the
// observatory subsystems (telescope, spectrographs, guider, lamps,
// enclosure).
//
// Commands are published to obscore/command/<device> with a UUID command ID
// and the bus blocks until the correlated acknowledgment arrives on
// obscore/ack/<device> or the per-device timeout expires. Timeouts come
// from configuration: a slew is allowed minutes, a lamp relay seconds.
//
// Subsystems also publish their state as retained keyed records on
// obscore/status/<device>; the bus merges these into a per-device cache
// that instrument helpers poll instead of round-tripping a query command.
//
// The bus knows nothing about individual device command sets; the
// internal/instrument package layers device-specific helpers on top.
package device
