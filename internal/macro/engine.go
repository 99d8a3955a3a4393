package macro

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// defaultStageTimeout applies when neither the stage, the graph, nor the
// engine configuration sets a deadline.
const defaultStageTimeout = 30 * time.Minute

// Engine executes macro graphs.
//
// It assigns monotonically increasing execution IDs, runs the three stage
// tiers with their ordering guarantees, and notifies observers of stage
// transitions. The engine itself holds no per-run state; each Start returns
// an independent Run.
//
// Thread Safety: Start and AddObserver are safe for concurrent use.
type Engine struct {
	stageTimeout time.Duration
	logger       Logger

	mu        sync.RWMutex
	observers []Observer

	nextID atomic.Int64
}

// NewEngine creates a macro engine.
//
// Parameters:
//   - stageTimeout: Default per-stage deadline (0 for the built-in default)
//   - logger: Logger instance (nil for no logging)
func NewEngine(stageTimeout time.Duration, logger Logger) *Engine {
	if stageTimeout <= 0 {
		stageTimeout = defaultStageTimeout
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Engine{
		stageTimeout: stageTimeout,
		logger:       logger,
	}
}

// AddObserver registers an observer for macro lifecycle events.
// Observers added after a run started will miss that run's earlier events.
func (e *Engine) AddObserver(o Observer) {
	if o == nil {
		return
	}
	e.mu.Lock()
	e.observers = append(e.observers, o)
	e.mu.Unlock()
}

// Start validates the graph and parameters and launches a run.
//
// The returned Run is already executing; use Run.Wait for the outcome and
// the Pause/Resume/Cancel/Modify methods for control. The supplied context
// bounds the whole run: cancelling it cancels the run (cleanup still
// executes, detached from the cancellation).
//
// Returns:
//   - *Run: The executing run
//   - error: ErrInvalidGraph or ErrInvalidParams; nothing has started
func (e *Engine) Start(ctx context.Context, graph Graph, params map[string]any) (*Run, error) {
	if err := validateGraph(graph); err != nil {
		return nil, err
	}

	merged := make(map[string]any, len(params))
	for k, v := range params {
		merged[k] = v
	}
	if graph.ValidateParams != nil {
		if err := graph.ValidateParams(merged); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidParams, err)
		}
	}

	r := &Run{
		id:          e.nextID.Add(1),
		graph:       graph,
		eng:         e,
		params:      merged,
		status:      StatusRunning,
		immediateCh: make(chan struct{}),
		done:        make(chan struct{}),
		index:       make(map[string]int),
	}
	r.cond = sync.NewCond(&r.mu)

	// Pre-populate results so the outcome always lists every stage.
	appendPending := func(sd StageDef, tier Tier, group int) {
		r.index[sd.Name] = len(r.results)
		r.results = append(r.results, StageResult{
			Name:   sd.Name,
			Tier:   tier,
			Group:  group,
			Status: StagePending,
		})
	}
	for _, sd := range graph.Preconditions {
		appendPending(sd, TierPrecondition, -1)
	}
	for gi, group := range graph.Groups {
		for _, sd := range group {
			appendPending(sd, TierNormal, gi)
		}
	}
	for _, sd := range graph.Cleanup {
		appendPending(sd, TierCleanup, -1)
	}

	e.logger.Info("macro started",
		"macro", graph.Name,
		"macro_id", r.id,
		"stages", len(r.results),
	)
	e.notifyMacroStarted(r.id, graph.Name)

	// Wake the boundary wait if the outer context is cancelled while paused.
	go func() {
		select {
		case <-ctx.Done():
			r.cond.Broadcast()
		case <-r.done:
		}
	}()

	go r.execute(ctx)

	return r, nil
}

// validateGraph checks a graph for structural errors.
func validateGraph(g Graph) error {
	if g.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidGraph)
	}
	all := g.stages()
	if len(all) == 0 {
		return fmt.Errorf("%w: %s has no stages", ErrInvalidGraph, g.Name)
	}
	seen := make(map[string]bool, len(all))
	for _, sd := range all {
		if sd.Name == "" {
			return fmt.Errorf("%w: %s has an unnamed stage", ErrInvalidGraph, g.Name)
		}
		if sd.Run == nil {
			return fmt.Errorf("%w: stage %s has no body", ErrInvalidGraph, sd.Name)
		}
		if seen[sd.Name] {
			return fmt.Errorf("%w: duplicate stage %s", ErrInvalidGraph, sd.Name)
		}
		seen[sd.Name] = true
	}
	return nil
}

func (e *Engine) notifyMacroStarted(id int64, name string) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, o := range e.observers {
		o.MacroStarted(id, name)
	}
}

func (e *Engine) notifyStageStarted(ev StageEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, o := range e.observers {
		o.StageStarted(ev)
	}
}

func (e *Engine) notifyStageFinished(ev StageEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, o := range e.observers {
		o.StageFinished(ev)
	}
}

func (e *Engine) notifyMacroFinished(out *Outcome) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, o := range e.observers {
		o.MacroFinished(out)
	}
}

// Run is a single executing (or finished) macro.
//
// All control methods are safe for concurrent use. A Run reaches exactly one
// terminal state; Wait blocks until then.
type Run struct {
	id    int64
	graph Graph
	eng   *Engine

	mu   sync.Mutex
	cond *sync.Cond

	params          map[string]any
	status          RunStatus
	paused          bool
	cancelRequested bool
	cancelMode      CancelMode
	deferredCancel  bool
	inCleanup       bool

	results []StageResult
	index   map[string]int

	immediateCh   chan struct{}
	immediateOnce sync.Once

	done    chan struct{}
	outcome *Outcome
}

// ID returns the run's monotonic execution ID.
func (r *Run) ID() int64 { return r.id }

// Name returns the macro name.
func (r *Run) Name() string { return r.graph.Name }

// Status returns the current run status.
func (r *Run) Status() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Paused reports whether the run is pause-flagged. The flag takes effect at
// the next group boundary.
func (r *Run) Paused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paused
}

// Results returns a snapshot of the per-stage results so far.
func (r *Run) Results() []StageResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StageResult, len(r.results))
	copy(out, r.results)
	return out
}

// Done returns a channel closed when the run reaches a terminal state.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run finishes and returns its outcome.
func (r *Run) Wait() *Outcome {
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcome
}

// Pause flags the run to halt at the next group boundary. Stages already
// running are unaffected. Pausing during cleanup is a no-op.
func (r *Run) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Terminal() {
		return ErrNotRunning
	}
	if r.inCleanup {
		return nil
	}
	r.paused = true
	return nil
}

// Resume clears the pause flag and wakes a run halted at a boundary.
func (r *Run) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Terminal() {
		return ErrNotRunning
	}
	if !r.paused {
		return ErrNotPaused
	}
	r.paused = false
	r.cond.Broadcast()
	return nil
}

// Cancel requests cancellation.
//
// Graceful mode lets the current group finish, then proceeds to cleanup.
// Immediate mode additionally raises the cooperative signal visible through
// Context.Cancelling/Cancelled. A cancel arriving during cleanup is recorded
// and deferred: cleanup always completes.
func (r *Run) Cancel(mode CancelMode) error {
	if mode != CancelGraceful && mode != CancelImmediate {
		return fmt.Errorf("%w: unknown cancel mode %q", ErrCancelled, mode)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Terminal() {
		return ErrNotRunning
	}
	if r.inCleanup {
		r.deferredCancel = true
		r.eng.logger.Warn("cancel during cleanup deferred",
			"macro", r.graph.Name, "macro_id", r.id, "mode", string(mode))
		return nil
	}
	r.cancelRequested = true
	if r.cancelMode == "" || mode == CancelImmediate {
		r.cancelMode = mode
	}
	if mode == CancelImmediate {
		r.immediateOnce.Do(func() { close(r.immediateCh) })
	}
	r.paused = false
	r.cond.Broadcast()
	return nil
}

// Modify merges delta into the run parameters after validation.
//
// The swap is atomic with respect to Context.Params; stages observe the new
// values at their next checkpoint. Completed work is never revisited.
func (r *Run) Modify(delta map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Terminal() {
		return ErrNotRunning
	}
	merged := make(map[string]any, len(r.params)+len(delta))
	for k, v := range r.params {
		merged[k] = v
	}
	for k, v := range delta {
		merged[k] = v
	}
	if r.graph.ValidateParams != nil {
		if err := r.graph.ValidateParams(merged); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidParams, err)
		}
	}
	r.params = merged
	r.eng.logger.Info("macro parameters modified",
		"macro", r.graph.Name, "macro_id", r.id)
	return nil
}

func (r *Run) paramsSnapshot() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]any, len(r.params))
	for k, v := range r.params {
		out[k] = v
	}
	return out
}

func (r *Run) cancelling() bool {
	select {
	case <-r.immediateCh:
		return true
	default:
		return false
	}
}

// execute drives the run through its three tiers. It runs on its own
// goroutine; every exit path closes r.done with a populated outcome.
func (r *Run) execute(ctx context.Context) {
	start := time.Now().UTC()

	final := StatusSucceeded
	var runErr error
	var failedStage string

	// Tier 1: preconditions, strictly sequential, first failure aborts.
	for _, sd := range r.graph.Preconditions {
		if ctx.Err() != nil || r.cancelled() {
			final = StatusCancelled
			runErr = ErrCancelled
			break
		}
		res := r.runStage(ctx, sd, TierPrecondition, -1)
		if res.Err != nil {
			if ctx.Err() != nil {
				final = StatusCancelled
				runErr = ErrCancelled
			} else {
				final = StatusFailed
				runErr = fmt.Errorf("%w: %s: %w", ErrPreconditionFailed, sd.Name, res.Err)
				failedStage = sd.Name
			}
			break
		}
	}

	// Tier 2: concurrency groups, pause and cancel honoured at boundaries.
	if final == StatusSucceeded {
		for gi, group := range r.graph.Groups {
			if !r.waitAtBoundary(ctx) {
				final = StatusCancelled
				runErr = ErrCancelled
				break
			}
			stage, err := r.runGroup(ctx, gi, group)
			if err != nil {
				if ctx.Err() != nil {
					final = StatusCancelled
					runErr = ErrCancelled
				} else {
					final = StatusFailed
					runErr = fmt.Errorf("%w: %s: %w", ErrStageFailed, stage, err)
					failedStage = stage
				}
				break
			}
		}
		// A cancel landing during the final group has no boundary left to
		// catch it: the stages return on the cooperative signal and the
		// run must still report the cancellation.
		if final == StatusSucceeded && (r.cancelled() || ctx.Err() != nil) {
			final = StatusCancelled
			runErr = ErrCancelled
		}
	}

	r.markSkipped()

	// Tier 3: cleanup, always, sequential, detached from cancellation.
	r.mu.Lock()
	r.inCleanup = true
	r.paused = false
	if !r.status.Terminal() {
		r.status = StatusCleanup
	}
	r.mu.Unlock()

	cleanupFailed := false
	cleanupCtx := context.WithoutCancel(ctx)
	for _, sd := range r.graph.Cleanup {
		res := r.runStage(cleanupCtx, sd, TierCleanup, -1)
		if res.Err != nil {
			// Keep going: later cleanup stages still run.
			cleanupFailed = true
			r.eng.logger.Error("cleanup stage failed",
				"macro", r.graph.Name, "macro_id", r.id,
				"stage", sd.Name, "error", res.Err)
		}
	}

	end := time.Now().UTC()

	r.mu.Lock()
	if r.deferredCancel {
		r.eng.logger.Info("deferred cancel discharged at run end",
			"macro", r.graph.Name, "macro_id", r.id)
	}
	out := &Outcome{
		MacroID:       r.id,
		Macro:         r.graph.Name,
		Status:        final,
		Stages:        make([]StageResult, len(r.results)),
		FailedStage:   failedStage,
		Err:           runErr,
		CleanupFailed: cleanupFailed,
		Start:         start,
		End:           end,
	}
	copy(out.Stages, r.results)
	r.status = final
	r.outcome = out
	r.mu.Unlock()

	r.eng.logger.Info("macro finished",
		"macro", r.graph.Name,
		"macro_id", r.id,
		"status", string(final),
		"failed_stage", failedStage,
		"cleanup_failed", cleanupFailed,
		"duration_ms", end.Sub(start).Milliseconds(),
	)

	r.eng.notifyMacroFinished(out)
	close(r.done)
}

// cancelled reports whether any cancel (graceful or immediate) is pending.
func (r *Run) cancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelRequested
}

// waitAtBoundary blocks while the run is paused. It returns false when the
// run should stop instead of starting the next group.
func (r *Run) waitAtBoundary(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.paused && !r.cancelRequested && ctx.Err() == nil {
		r.status = StatusPaused
		r.eng.logger.Info("macro paused",
			"macro", r.graph.Name, "macro_id", r.id)
		r.cond.Wait()
	}
	if r.status == StatusPaused {
		r.status = StatusRunning
		r.eng.logger.Info("macro resumed",
			"macro", r.graph.Name, "macro_id", r.id)
	}
	return !r.cancelRequested && ctx.Err() == nil
}

// runGroup starts every stage of a group together and waits for all of
// them. The first failure cancels the siblings' contexts; the returned error
// is the most meaningful failure (a real error beats a sibling's
// cancellation).
func (r *Run) runGroup(ctx context.Context, gi int, group []StageDef) (string, error) {
	gctx, cancelSiblings := context.WithCancel(ctx)
	defer cancelSiblings()

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		firstStage string
		firstErr   error
	)

	for i := range group {
		wg.Add(1)
		go func(sd StageDef) {
			defer wg.Done()
			res := r.runStage(gctx, sd, TierNormal, gi)
			if res.Err != nil {
				mu.Lock()
				replace := firstErr == nil ||
					(errors.Is(firstErr, context.Canceled) && !errors.Is(res.Err, context.Canceled))
				if replace {
					firstErr = res.Err
					firstStage = sd.Name
				}
				mu.Unlock()
				cancelSiblings()
			}
		}(group[i])
	}

	wg.Wait()
	return firstStage, firstErr
}

// runStage executes one stage with its deadline, records the result, and
// notifies observers. Panics in the body are recovered into the result.
func (r *Run) runStage(parent context.Context, sd StageDef, tier Tier, group int) StageResult {
	timeout := sd.Timeout
	if timeout <= 0 {
		timeout = r.graph.StageTimeout
	}
	if timeout <= 0 {
		timeout = r.eng.stageTimeout
	}

	sctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	startAt := time.Now().UTC()
	r.setStage(sd.Name, StageRunning, startAt, time.Time{}, nil)
	r.eng.notifyStageStarted(StageEvent{
		MacroID: r.id, Macro: r.graph.Name,
		Stage: sd.Name, Tier: tier, Group: group,
		Status: StageRunning, Start: startAt,
	})

	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				errCh <- fmt.Errorf("%w: %s: %v", ErrStagePanic, sd.Name, p)
			}
		}()
		errCh <- sd.Run(&Context{ctx: sctx, run: r, stage: sd.Name})
	}()

	var err error
	select {
	case err = <-errCh:
	case <-sctx.Done():
		switch {
		case parent.Err() != nil:
			err = parent.Err()
		case errors.Is(sctx.Err(), context.DeadlineExceeded):
			err = fmt.Errorf("%w: %s after %s", ErrStageTimeout, sd.Name, timeout)
		default:
			err = sctx.Err()
		}
	}

	endAt := time.Now().UTC()
	status := StageSucceeded
	if err != nil {
		if errors.Is(err, context.Canceled) {
			status = StageCancelled
		} else {
			status = StageFailed
		}
	}
	r.setStage(sd.Name, status, startAt, endAt, err)

	r.eng.notifyStageFinished(StageEvent{
		MacroID: r.id, Macro: r.graph.Name,
		Stage: sd.Name, Tier: tier, Group: group,
		Status: status, Start: startAt, End: endAt, Err: err,
	})

	return StageResult{
		Name: sd.Name, Tier: tier, Group: group,
		Status: status, Start: startAt, End: endAt, Err: err,
	}
}

// setStage updates the tracked result for a stage.
func (r *Run) setStage(name string, status StageStatus, start, end time.Time, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.index[name]
	if !ok {
		return
	}
	r.results[idx].Status = status
	r.results[idx].Start = start
	r.results[idx].End = end
	r.results[idx].Err = err
}

// markSkipped marks never-started precondition and normal stages as skipped.
// Cancellation and failure only retarget pending or running stages; stages
// already completed keep their results.
func (r *Run) markSkipped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.results {
		if r.results[i].Tier == TierCleanup {
			continue
		}
		if r.results[i].Status == StagePending {
			r.results[i].Status = StageSkipped
		}
	}
}
