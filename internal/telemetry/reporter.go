package telemetry

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/calderwood-obs/observatory-core/internal/infrastructure/mqtt"
	"github.com/calderwood-obs/observatory-core/internal/macro"
)

// Keyword names published under obscore/keyword/<name>. Each publication
// is an append-style keyed record: consumers fold them into their own
// state, there is no full snapshot.
const (
	KeywordRunningMacros    = "running_macros"
	KeywordStageStatus      = "stage_status"
	KeywordStageDuration    = "stage_duration"
	KeywordMacroStatus      = "macro_status"
	KeywordExposureProgress = "exposure_progress"
	KeywordPauseState       = "pause_state"
	KeywordAutoPilot        = "autopilot"
)

// Default cadence of the exposure progress publication loop.
const defaultProgressInterval = 5 * time.Second

// Publisher is the MQTT surface the reporter needs. Satisfied by
// *mqtt.Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// DurationWriter mirrors stage and run durations and exposure progress to
// the time-series store. Satisfied by *influxdb.Client; nil disables the
// mirror.
type DurationWriter interface {
	WriteStageDuration(macro, stage string, elapsed time.Duration, success bool)
	WriteMacroDuration(macro string, macroID int64, elapsed time.Duration, success bool)
	WriteExposureProgress(state string, current, total int, etrSeconds float64)
}

// ProgressSource reports the running expose macro's progress. Satisfied by
// *observing.Graphs.
type ProgressSource interface {
	Progress() (current, total int, etr float64, ok bool)
}

// Logger is the logging surface the reporter needs.
type Logger interface {
	Warn(msg string, args ...any)
}

// Reporter publishes the operator-facing status stream: macro and stage
// transitions as they happen (it observes the engine), exposure progress
// on a fixed cadence, pause state and auto-pilot messages on request.
type Reporter struct {
	pub    Publisher
	tsdb   DurationWriter
	logger Logger
	topics mqtt.Topics
	qos    byte

	progress ProgressSource
	interval time.Duration

	mu      sync.Mutex
	running map[int64]string // macro id -> name
}

// NewReporter creates a telemetry reporter.
//
// Parameters:
//   - pub: MQTT publisher
//   - tsdb: Time-series mirror, nil to disable
//   - progress: Exposure progress source, nil to disable the progress loop
//   - qos: QoS for keyword publications
//   - logger: Warn-level logger for publish failures
func NewReporter(pub Publisher, tsdb DurationWriter, progress ProgressSource, qos byte, logger Logger) *Reporter {
	return &Reporter{
		pub:      pub,
		tsdb:     tsdb,
		logger:   logger,
		qos:      qos,
		progress: progress,
		interval: defaultProgressInterval,
		running:  make(map[int64]string),
	}
}

// publish marshals and publishes one keyword record. Failures are logged
// and dropped; telemetry never blocks or fails the engine.
func (r *Reporter) publish(keyword string, record map[string]any) {
	record["ts"] = time.Now().UTC().Format(time.RFC3339)
	payload, err := json.Marshal(record)
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("marshalling keyword record", "keyword", keyword, "error", err)
		}
		return
	}
	if err := r.pub.Publish(r.topics.Keyword(keyword), payload, r.qos, false); err != nil {
		if r.logger != nil {
			r.logger.Warn("publishing keyword record", "keyword", keyword, "error", err)
		}
	}
}

// runningNames returns the sorted names of running macros.
func (r *Reporter) runningNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.running))
	for _, name := range r.running {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ─── macro.Observer ─────────────────────────────────────────────────────────

// MacroStarted implements macro.Observer.
func (r *Reporter) MacroStarted(macroID int64, name string) {
	r.mu.Lock()
	r.running[macroID] = name
	r.mu.Unlock()

	r.publish(KeywordRunningMacros, map[string]any{
		"macros": r.runningNames(),
	})
	r.publish(KeywordMacroStatus, map[string]any{
		"macro":    name,
		"macro_id": macroID,
		"status":   string(macro.StatusRunning),
	})
}

// StageStarted implements macro.Observer.
func (r *Reporter) StageStarted(ev macro.StageEvent) {
	r.publish(KeywordStageStatus, map[string]any{
		"macro":    ev.Macro,
		"macro_id": ev.MacroID,
		"stage":    ev.Stage,
		"tier":     string(ev.Tier),
		"status":   string(ev.Status),
	})
}

// StageFinished implements macro.Observer. Publishes the transition and a
// duration tuple, and mirrors the duration to the time-series store.
func (r *Reporter) StageFinished(ev macro.StageEvent) {
	r.publish(KeywordStageStatus, map[string]any{
		"macro":    ev.Macro,
		"macro_id": ev.MacroID,
		"stage":    ev.Stage,
		"tier":     string(ev.Tier),
		"status":   string(ev.Status),
	})

	elapsed := ev.End.Sub(ev.Start)
	success := ev.Status == macro.StageSucceeded
	r.publish(KeywordStageDuration, map[string]any{
		"macro":   ev.Macro,
		"stage":   ev.Stage,
		"tier":    string(ev.Tier),
		"elapsed": elapsed.Seconds(),
		"success": success,
	})
	if r.tsdb != nil {
		r.tsdb.WriteStageDuration(ev.Macro, ev.Stage, elapsed, success)
	}
}

// MacroFinished implements macro.Observer.
func (r *Reporter) MacroFinished(outcome *macro.Outcome) {
	r.mu.Lock()
	delete(r.running, outcome.MacroID)
	r.mu.Unlock()

	record := map[string]any{
		"macro":    outcome.Macro,
		"macro_id": outcome.MacroID,
		"status":   string(outcome.Status),
	}
	if outcome.FailedStage != "" {
		record["failed_stage"] = outcome.FailedStage
	}
	if outcome.Err != nil {
		record["error"] = outcome.Err.Error()
	}
	if outcome.CleanupFailed {
		record["cleanup_failed"] = true
	}
	r.publish(KeywordMacroStatus, record)
	r.publish(KeywordRunningMacros, map[string]any{
		"macros": r.runningNames(),
	})

	if r.tsdb != nil {
		r.tsdb.WriteMacroDuration(outcome.Macro, outcome.MacroID,
			outcome.End.Sub(outcome.Start), outcome.Succeeded())
	}
}

// ─── Requested publications ─────────────────────────────────────────────────

// PauseChanged publishes the pause state of a macro.
func (r *Reporter) PauseChanged(macroName string, paused bool) {
	r.publish(KeywordPauseState, map[string]any{
		"macro":  macroName,
		"paused": paused,
	})
}

// AutoPilotMessage publishes the auto-pilot's operator-facing status line.
func (r *Reporter) AutoPilotMessage(state, message string) {
	r.publish(KeywordAutoPilot, map[string]any{
		"state":   state,
		"message": message,
	})
}

// ─── Progress loop ──────────────────────────────────────────────────────────

// Run publishes exposure progress on a fixed cadence until ctx is done.
// Nothing is published while no expose macro is active.
func (r *Reporter) Run(ctx context.Context) {
	if r.progress == nil {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.publishProgress()
		}
	}
}

func (r *Reporter) publishProgress() {
	current, total, etr, ok := r.progress.Progress()
	if !ok {
		return
	}
	r.publish(KeywordExposureProgress, map[string]any{
		"current": current,
		"total":   total,
		"etr":     etr,
	})
	if r.tsdb != nil {
		r.tsdb.WriteExposureProgress("exposing", current, total, etr)
	}
}
