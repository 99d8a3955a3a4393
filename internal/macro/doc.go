// Package macro provides the observing macro engine for Observatory Core.
//
// A macro is a declarative Graph of named stages in three tiers:
//
//   - Preconditions run strictly sequentially; the first failure aborts the
//     run straight to cleanup.
//   - Normal stages run in concurrency groups. Groups execute in order; the
//     stages within a group start together and the group waits for all of
//     them. A failure or timeout cancels the sibling stages' contexts.
//   - Cleanup stages always run, strictly sequentially, immune to pause and
//     cancellation. A cancel arriving during cleanup is recorded and
//     deferred.
//
// The Engine launches Runs with monotonically increasing execution IDs.
// Operators control a run through Pause/Resume (honoured at group
// boundaries only), Cancel (graceful stops after the current group;
// immediate raises a cooperative signal running stages observe), and Modify
// (validated parameter hot-swap that stages read at checkpoints).
//
// Per-stage deadlines are enforced through context: a timeout is a stage
// failure, never a hang. A Run never panics out; panics in stage bodies are
// recovered and folded into the Outcome.
//
// The Registry maps macro names to graph factories and tracks the active
// run per name, refusing double-starts. The operator control surface and
// the auto-pilot both dispatch through it.
//
// Observers receive stage transition events; the overhead recorder and the
// telemetry reporter are the two consumers.
package macro
