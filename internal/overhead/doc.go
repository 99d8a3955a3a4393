// Package overhead measures how long macro stages and whole runs take and
// persists the measurements for later timeout and scheduling tuning.
//
// The Recorder observes the macro engine; when a run finishes it converts
// the outcome into one record per executed stage plus a whole-run record
// and flushes the set to the Store in a single transaction. The recorder
// never retries a failed flush — the records for that run are logged and
// dropped, observing carries on.
package overhead
