// Package control is the operator surface of the daemon.
//
// It subscribes to obscore/ctl/macro/+/+ and obscore/ctl/auto/+ and maps
// the trailing topic segments to operations: run, pause, resume, cancel
// and modify for macros through the registry; start and stop for the
// auto-pilot. Payloads are JSON — a run payload is the macro's parameter
// bag, cancel and stop select graceful or immediate mode.
package control
