package overhead

import (
	"context"
	"time"

	"github.com/calderwood-obs/observatory-core/internal/macro"
)

// Record is one measured interval: a single stage of a macro run, or the
// whole run when Stage is empty.
type Record struct {
	ID      int64     `json:"id"`
	Macro   string    `json:"macro"`
	MacroID int64     `json:"macro_id"`
	Stage   string    `json:"stage,omitempty"`
	Tier    string    `json:"tier,omitempty"`
	Group   int       `json:"group"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Elapsed float64   `json:"elapsed"`
	Success bool      `json:"success"`
}

// Store persists overhead records. The recorder never retries; a failed
// save is logged and the records for that run are lost.
type Store interface {
	Save(ctx context.Context, records []Record) error
	ForRun(ctx context.Context, macroID int64) ([]Record, error)
}

// Logger is the logging surface the recorder needs.
type Logger interface {
	Error(msg string, args ...any)
}

// saveTimeout bounds the post-run flush so a stuck database cannot hold
// the engine's notification path.
const saveTimeout = 10 * time.Second

// Recorder observes macro runs and writes one overhead record per executed
// stage plus a whole-run record when the macro finishes.
//
// It keeps no per-run state of its own: everything needed is in the
// engine's outcome, so the flush happens entirely in MacroFinished.
type Recorder struct {
	store  Store
	logger Logger
}

// NewRecorder creates an overhead recorder writing to store.
func NewRecorder(store Store, logger Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// MacroStarted implements macro.Observer.
func (r *Recorder) MacroStarted(int64, string) {}

// StageStarted implements macro.Observer.
func (r *Recorder) StageStarted(macro.StageEvent) {}

// StageFinished implements macro.Observer.
func (r *Recorder) StageFinished(macro.StageEvent) {}

// MacroFinished flushes the run's records. Persistence errors are logged,
// never retried.
func (r *Recorder) MacroFinished(outcome *macro.Outcome) {
	records := recordsFromOutcome(outcome)
	if len(records) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := r.store.Save(ctx, records); err != nil && r.logger != nil {
		r.logger.Error("saving overhead records",
			"macro", outcome.Macro,
			"macro_id", outcome.MacroID,
			"records", len(records),
			"error", err)
	}
}

// ForRun returns the stored records of a completed run.
func (r *Recorder) ForRun(ctx context.Context, macroID int64) ([]Record, error) {
	return r.store.ForRun(ctx, macroID)
}

// recordsFromOutcome converts an outcome into records: one per stage that
// actually ran, then the whole-run record.
func recordsFromOutcome(outcome *macro.Outcome) []Record {
	records := make([]Record, 0, len(outcome.Stages)+1)
	for _, stage := range outcome.Stages {
		if stage.Start.IsZero() {
			continue // never started (skipped group or pending)
		}
		records = append(records, Record{
			Macro:   outcome.Macro,
			MacroID: outcome.MacroID,
			Stage:   stage.Name,
			Tier:    string(stage.Tier),
			Group:   stage.Group,
			Start:   stage.Start,
			End:     stage.End,
			Elapsed: stage.Elapsed().Seconds(),
			Success: stage.Status == macro.StageSucceeded,
		})
	}
	records = append(records, Record{
		Macro:   outcome.Macro,
		MacroID: outcome.MacroID,
		Group:   -1,
		Start:   outcome.Start,
		End:     outcome.End,
		Elapsed: outcome.End.Sub(outcome.Start).Seconds(),
		Success: outcome.Succeeded(),
	})
	return records
}
