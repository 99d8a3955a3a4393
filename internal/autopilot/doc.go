// Package autopilot runs the continuous observing loop.
//
// Each iteration takes the next target from the external queue, classifies
// it (new field, repeat visit, cloned design), runs the matching
// goto-field stage subset, then the reconciled exposure sequence. While
// the exposure runs, the pilot watches the estimated time remaining and
// preloads the following target once it drops below the configured lead
// time, passing the queue an epoch delay of remaining exposure plus the
// slow readout.
//
// Stopping mirrors macro cancellation: graceful finishes the current
// iteration, immediate cancels the in-flight macro. Neither aborts an
// exposure already committed to hardware. A pilot started while an expose
// macro is already running independently joins it: no goto-field, no
// preload, just wait for the run to finish and pick up the queue from
// there.
package autopilot
