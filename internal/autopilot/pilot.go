package autopilot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/calderwood-obs/observatory-core/internal/infrastructure/config"
	"github.com/calderwood-obs/observatory-core/internal/macro"
	"github.com/calderwood-obs/observatory-core/internal/observing"
)

// Pilot states published to operators.
const (
	StateIdle     = "idle"
	StateWaiting  = "waiting"
	StateRunning  = "running"
	StateStopping = "stopping"
)

// Cadence of the preload decision check during an expose macro.
const defaultPreloadPoll = 5 * time.Second

// Target is the externally supplied description of the next field to
// observe. The queue collaborator owns target lifecycle; the pilot only
// consumes.
type Target struct {
	FieldID  string `json:"field_id"`
	DesignID string `json:"design_id"`

	// Class is new, repeat or cloned; it selects the goto-field subset.
	Class string `json:"class"`

	// DesignMode keys the default exposure time (bright, dark, ...).
	DesignMode string `json:"design_mode"`

	RA  float64 `json:"ra"`
	Dec float64 `json:"dec"`
	Rot float64 `json:"rot"`

	// Count overrides the configured exposures-per-target when > 0.
	Count int `json:"count,omitempty"`
}

// Queue is the external target queue collaborator.
type Queue interface {
	// Next returns the target to observe now, or nil when the queue is
	// empty.
	Next(ctx context.Context) (*Target, error)

	// Preload asks the queue to stage the following target. epochDelay is
	// how far in the future the telescope will actually be free: the
	// remaining exposure time plus the slow readout.
	Preload(ctx context.Context, epochDelay time.Duration) error
}

// Runner starts macros and inspects running ones. Satisfied by
// *macro.Registry.
type Runner interface {
	Start(ctx context.Context, name string, params map[string]any) (*macro.Run, error)
	Active(name string) (*macro.Run, bool)
}

// ProgressSource reports the running expose macro's progress. Satisfied by
// *observing.Graphs.
type ProgressSource interface {
	Progress() (current, total int, etr float64, ok bool)
}

// Reporter publishes the pilot's operator-facing status line. Satisfied by
// *telemetry.Reporter.
type Reporter interface {
	AutoPilotMessage(state, message string)
}

// Logger is the logging surface the pilot needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Pilot is the continuous observing loop: per target it runs the
// goto-field macro, then the expose macro, preloading the next target
// before the current exposure sequence ends.
//
// One pilot binds one macro slot: it never runs two macros at once, and a
// Start while an independent expose macro is running joins by waiting for
// that run to finish first.
type Pilot struct {
	cfg      *config.Config
	queue    Queue
	runner   Runner
	progress ProgressSource
	reporter Reporter
	logger   Logger

	preloadPoll time.Duration

	mu       sync.Mutex
	cancel   context.CancelFunc
	stopped  chan struct{}
	stopping bool
	hartmann bool
	mode     macro.CancelMode
}

// NewPilot creates an auto-pilot.
func NewPilot(cfg *config.Config, queue Queue, runner Runner, progress ProgressSource, reporter Reporter, logger Logger) *Pilot {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Pilot{
		cfg:         cfg,
		queue:       queue,
		runner:      runner,
		progress:    progress,
		reporter:    reporter,
		logger:      logger,
		preloadPoll: defaultPreloadPoll,
	}
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Running reports whether the pilot loop is active.
func (p *Pilot) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped != nil
}

// ScheduleHartmann asks the pilot to append a Hartmann focus check to the
// next goto-field run. The request is consumed by that run.
func (p *Pilot) ScheduleHartmann() {
	p.mu.Lock()
	p.hartmann = true
	p.mu.Unlock()
}

// takeHartmann consumes a pending Hartmann request.
func (p *Pilot) takeHartmann() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := p.hartmann
	p.hartmann = false
	return h
}

// Start launches the pilot loop. Returns ErrAlreadyRunning if it is
// already active.
func (p *Pilot) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped != nil {
		p.mu.Unlock()
		return ErrAlreadyRunning
	}
	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.stopped = make(chan struct{})
	p.stopping = false
	stopped := p.stopped
	p.mu.Unlock()

	go func() {
		defer close(stopped)
		defer func() {
			p.mu.Lock()
			p.cancel = nil
			p.stopped = nil
			p.mu.Unlock()
		}()
		p.loop(loopCtx)
	}()
	return nil
}

// Stop ends the loop. Graceful lets the current iteration finish;
// immediate cancels the in-flight macro (which itself never aborts a
// committed exposure). Stop does not block; the loop reports its own exit.
func (p *Pilot) Stop(mode macro.CancelMode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped == nil {
		return ErrNotRunning
	}
	p.stopping = true
	p.mode = mode
	if mode == macro.CancelImmediate {
		p.cancelActiveLocked()
		p.cancel()
	}
	return nil
}

// cancelActiveLocked sends an immediate cancel to whichever macro the
// registry has running. Called with p.mu held.
func (p *Pilot) cancelActiveLocked() {
	for _, name := range []string{observing.MacroGotoField, observing.MacroExpose} {
		if run, ok := p.runner.Active(name); ok {
			if err := run.Cancel(macro.CancelImmediate); err != nil &&
				!errors.Is(err, macro.ErrNotRunning) {
				p.logger.Warn("cancelling active macro", "macro", name, "error", err)
			}
		}
	}
}

func (p *Pilot) stopRequested() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopping
}

func (p *Pilot) report(state, format string, args ...any) {
	if p.reporter != nil {
		p.reporter.AutoPilotMessage(state, fmt.Sprintf(format, args...))
	}
}

// loop is the pilot's main iteration. It first joins any independent
// expose run, then works the queue until stopped or cancelled.
func (p *Pilot) loop(ctx context.Context) {
	defer p.report(StateIdle, "auto-pilot stopped")

	if err := p.joinRunningExpose(ctx); err != nil {
		return
	}

	for {
		if ctx.Err() != nil || p.stopRequested() {
			return
		}

		target, err := p.queue.Next(ctx)
		if err != nil {
			p.logger.Error("fetching next target", "error", err)
			p.report(StateIdle, "queue error: %v", err)
			return
		}
		if target == nil {
			p.report(StateIdle, "queue empty")
			return
		}

		if err := p.observeTarget(ctx, target); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			p.logger.Error("observing target", "field", target.FieldID, "error", err)
			p.report(StateIdle, "field %s failed: %v", target.FieldID, err)
			return
		}
	}
}

// joinRunningExpose waits for an expose macro that was started outside the
// pilot. No goto-field runs and no preload happens during this wait.
func (p *Pilot) joinRunningExpose(ctx context.Context) error {
	run, ok := p.runner.Active(observing.MacroExpose)
	if !ok {
		return nil
	}
	p.report(StateWaiting, "waiting for running exposure")
	p.logger.Info("joining mid-exposure, waiting for running expose macro")
	select {
	case <-run.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// observeTarget runs one full iteration: goto-field (unless cloned design)
// then the exposure sequence with the preload watch.
func (p *Pilot) observeTarget(ctx context.Context, target *Target) error {
	p.report(StateRunning, "observing field %s", target.FieldID)

	if target.Class != observing.FieldCloned {
		if err := p.runGotoField(ctx, target); err != nil {
			return err
		}
		if p.stopRequested() {
			return nil
		}
	}
	return p.runExpose(ctx, target)
}

func (p *Pilot) runGotoField(ctx context.Context, target *Target) error {
	params := map[string]any{
		observing.ParamFieldClass: target.Class,
		observing.ParamDesignID:   target.DesignID,
		observing.ParamRA:         target.RA,
		observing.ParamDec:        target.Dec,
		observing.ParamRot:        target.Rot,
	}
	if p.takeHartmann() {
		params[observing.ParamHartmann] = true
	}

	run, err := p.runner.Start(ctx, observing.MacroGotoField, params)
	if err != nil {
		return fmt.Errorf("starting goto_field: %w", err)
	}
	return p.checkOutcome(run.Wait())
}

// checkOutcome folds a macro outcome into the loop's error handling. A
// cancellation caused by the pilot's own stop request is a clean exit.
func (p *Pilot) checkOutcome(outcome *macro.Outcome) error {
	if outcome.Succeeded() {
		return nil
	}
	if outcome.Status == macro.StatusCancelled && p.stopRequested() {
		return nil
	}
	return fmt.Errorf("%w: %s %s: %v", ErrMacroFailed, outcome.Macro, outcome.Status, outcome.Err)
}

func (p *Pilot) runExpose(ctx context.Context, target *Target) error {
	count := p.cfg.AutoPilot.Count
	if target.Count > 0 {
		count = target.Count
	}
	params := map[string]any{
		observing.ParamCount:      count,
		observing.ParamDesignMode: target.DesignMode,
	}

	run, err := p.runner.Start(ctx, observing.MacroExpose, params)
	if err != nil {
		return fmt.Errorf("starting expose: %w", err)
	}

	p.watchPreload(ctx, run)
	return p.checkOutcome(run.Wait())
}

// watchPreload polls the exposure progress while the expose macro runs and
// requests the next target once the estimated time remaining drops below
// the configured lead time. At most one preload per expose run.
func (p *Pilot) watchPreload(ctx context.Context, run *macro.Run) {
	lead := p.cfg.PreloadAhead().Seconds()
	ticker := time.NewTicker(p.preloadPoll)
	defer ticker.Stop()

	for {
		select {
		case <-run.Done():
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if p.stopRequested() {
			return // a stopping pilot does not stage new targets
		}
		_, _, etr, ok := p.progress.Progress()
		if !ok || etr > lead {
			continue
		}
		// The telescope frees up after the remaining exposure plus the
		// final slow readout; the queue uses the delay for field epochs.
		delay := time.Duration(etr)*time.Second +
			time.Duration(p.cfg.Exposure.Overheads.Readout)*time.Second
		if err := p.queue.Preload(ctx, delay); err != nil {
			p.logger.Warn("preloading next target", "error", err)
		}
		return
	}
}
