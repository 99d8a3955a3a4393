package macro

import (
	"context"
	"time"
)

// Tier identifies which execution tier a stage belongs to.
//
// Preconditions run strictly sequentially before any normal group and abort
// the run (straight to cleanup) on the first failure. Normal stages run in
// concurrency groups. Cleanup stages run strictly sequentially at the end of
// every run, regardless of how the run ended.
type Tier string

const (
	TierPrecondition Tier = "precondition"
	TierNormal       Tier = "normal"
	TierCleanup      Tier = "cleanup"
)

// StageStatus is the lifecycle state of a single stage.
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageSucceeded StageStatus = "succeeded"
	StageFailed    StageStatus = "failed"
	StageCancelled StageStatus = "cancelled"
	StageSkipped   StageStatus = "skipped"
)

// RunStatus is the lifecycle state of a macro run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusPaused    RunStatus = "paused"
	StatusCleanup   RunStatus = "cleanup"
	StatusSucceeded RunStatus = "succeeded"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is a final state.
func (s RunStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// CancelMode selects how a cancellation takes effect.
//
// Graceful lets the current concurrency group finish and then proceeds to
// cleanup. Immediate additionally raises a cooperative signal that running
// stages observe via Context.Cancelling / Context.Cancelled; exposure stages
// interpret it as "do not start a new exposure" rather than aborting one
// already integrating.
type CancelMode string

const (
	CancelGraceful  CancelMode = "graceful"
	CancelImmediate CancelMode = "immediate"
)

// StageFunc is the body of a stage.
//
// The function must respect the stage context's deadline and, for long
// operations, check Context.Cancelling at natural checkpoints. Returning a
// non-nil error fails the stage; a panic is recovered and converted to a
// stage failure.
type StageFunc func(c *Context) error

// StageDef declares one stage of a Graph.
type StageDef struct {
	// Name identifies the stage. Names must be unique within a Graph.
	Name string

	// Run is the stage body. Required.
	Run StageFunc

	// Timeout overrides the graph/engine default stage deadline when > 0.
	Timeout time.Duration
}

// Graph is a declarative macro definition: three tiers of stages plus
// optional parameter validation. Graph values are immutable once handed to
// Engine.Start; a fresh Graph is built per run by its factory.
type Graph struct {
	// Name identifies the macro (e.g., "goto_field", "expose").
	Name string

	// Preconditions run sequentially before the first group. The first
	// failure aborts the run.
	Preconditions []StageDef

	// Groups are executed in order. All stages within a group start
	// together and the group finishes when every member has finished.
	// A stage failure cancels its siblings' contexts.
	Groups [][]StageDef

	// Cleanup stages always run, sequentially, immune to pause and cancel.
	Cleanup []StageDef

	// StageTimeout is the default per-stage deadline for this graph.
	// Zero falls back to the engine default.
	StageTimeout time.Duration

	// ValidateParams, when set, is applied to the initial parameters and to
	// the merged result of every Modify call.
	ValidateParams func(params map[string]any) error
}

// stages returns every stage definition in execution order.
func (g Graph) stages() []StageDef {
	out := make([]StageDef, 0, len(g.Preconditions)+len(g.Cleanup))
	out = append(out, g.Preconditions...)
	for _, group := range g.Groups {
		out = append(out, group...)
	}
	out = append(out, g.Cleanup...)
	return out
}

// StageResult records the execution of a single stage.
type StageResult struct {
	Name   string
	Tier   Tier
	Group  int // group index for TierNormal, -1 otherwise
	Status StageStatus
	Start  time.Time
	End    time.Time
	Err    error
}

// Elapsed returns the wall-clock duration of the stage, or zero if it
// never started or never finished.
func (r StageResult) Elapsed() time.Duration {
	if r.Start.IsZero() || r.End.IsZero() {
		return 0
	}
	return r.End.Sub(r.Start)
}

// Outcome is the terminal result of a macro run. Run.Wait returns it; a run
// never panics out, every failure mode is folded into the outcome.
type Outcome struct {
	MacroID int64
	Macro   string
	Status  RunStatus
	Stages  []StageResult

	// FailedStage names the stage whose failure ended the run, if any.
	FailedStage string

	// Err is the error that ended the run, if any.
	Err error

	// CleanupFailed is set when one or more cleanup stages failed. The run
	// outcome itself is unchanged; the flag degrades it for operators.
	CleanupFailed bool

	Start time.Time
	End   time.Time
}

// Succeeded reports whether the run finished cleanly, cleanup included.
func (o *Outcome) Succeeded() bool {
	return o.Status == StatusSucceeded && !o.CleanupFailed
}

// StageEvent is delivered to observers on stage transitions.
type StageEvent struct {
	MacroID int64
	Macro   string
	Stage   string
	Tier    Tier
	Group   int
	Status  StageStatus
	Start   time.Time
	End     time.Time
	Err     error
}

// Observer receives macro lifecycle notifications. Implementations are
// called synchronously from the run goroutine and must not block.
type Observer interface {
	MacroStarted(macroID int64, name string)
	StageStarted(ev StageEvent)
	StageFinished(ev StageEvent)
	MacroFinished(outcome *Outcome)
}

// Context is handed to every stage body.
//
// It carries the stage's deadline context, a snapshot accessor for the run's
// (possibly modified) parameters, and the cooperative cancellation signal.
type Context struct {
	ctx   context.Context
	run   *Run
	stage string
}

// Ctx returns the stage context. It carries the per-stage deadline and is
// cancelled when a sibling stage in the same group fails.
func (c *Context) Ctx() context.Context { return c.ctx }

// Stage returns the name of the executing stage.
func (c *Context) Stage() string { return c.stage }

// MacroID returns the run's monotonic execution ID.
func (c *Context) MacroID() int64 { return c.run.id }

// Params returns a snapshot of the run parameters. Modify swaps the
// underlying map atomically, so long-running stages should re-read at
// checkpoints rather than hold a stale snapshot.
func (c *Context) Params() map[string]any { return c.run.paramsSnapshot() }

// Cancelling reports whether an immediate cancel has been requested.
// Exposure-style stages check this between units of work and wind down
// without aborting work already committed.
func (c *Context) Cancelling() bool { return c.run.cancelling() }

// Cancelled returns a channel closed when an immediate cancel is requested.
func (c *Context) Cancelled() <-chan struct{} { return c.run.immediateCh }

// Log returns the run's logger.
func (c *Context) Log() Logger { return c.run.eng.logger }

// Logger defines the logging interface used by the engine and registry.
// Satisfied by logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
