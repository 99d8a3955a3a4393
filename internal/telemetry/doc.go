// Package telemetry publishes the operator-facing status stream.
//
// The Reporter observes the macro engine and turns lifecycle transitions
// into append-style keyed records on obscore/keyword/<name>: running macro
// lists, stage status transitions, stage duration tuples, macro outcomes,
// exposure progress with estimated time remaining, pause state and the
// auto-pilot status line. Stage and run durations are mirrored to InfluxDB
// when a time-series client is configured.
//
// Telemetry is fire-and-forget: publish failures are logged and dropped so
// a broker hiccup can never stall a macro run.
package telemetry
