package overhead

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/calderwood-obs/observatory-core/internal/macro"
)

// ─── Fixtures ───────────────────────────────────────────────────────────────

func testOutcome() *macro.Outcome {
	start := time.Date(2026, 8, 20, 3, 0, 0, 0, time.UTC)
	return &macro.Outcome{
		MacroID: 7,
		Macro:   "goto_field",
		Status:  macro.StatusSucceeded,
		Start:   start,
		End:     start.Add(95 * time.Second),
		Stages: []macro.StageResult{
			{
				Name: "prepare", Tier: macro.TierPrecondition, Group: -1,
				Status: macro.StageSucceeded,
				Start:  start, End: start.Add(time.Second),
			},
			{
				Name: "slew", Tier: macro.TierNormal, Group: 0,
				Status: macro.StageSucceeded,
				Start:  start.Add(time.Second), End: start.Add(61 * time.Second),
			},
			{
				// Skipped stage: never started, must not produce a record.
				Name: "guide", Tier: macro.TierNormal, Group: 1,
				Status: macro.StageSkipped,
			},
			{
				Name: "lamps_off", Tier: macro.TierCleanup, Group: -1,
				Status: macro.StageSucceeded,
				Start:  start.Add(90 * time.Second), End: start.Add(95 * time.Second),
			},
		},
	}
}

type mockStore struct {
	saved   []Record
	saveErr error
}

func (m *mockStore) Save(_ context.Context, records []Record) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, records...)
	return nil
}

func (m *mockStore) ForRun(_ context.Context, macroID int64) ([]Record, error) {
	var out []Record
	for _, rec := range m.saved {
		if rec.MacroID == macroID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type mockLogger struct {
	errors int
}

func (m *mockLogger) Error(string, ...any) { m.errors++ }

// ─── Recorder ───────────────────────────────────────────────────────────────

func TestRecorder_FlushesStageAndRunRecords(t *testing.T) {
	store := &mockStore{}
	rec := NewRecorder(store, nil)

	rec.MacroFinished(testOutcome())

	if len(store.saved) != 4 { // 3 executed stages + whole run
		t.Fatalf("saved %d records, want 4", len(store.saved))
	}
	if store.saved[0].Stage != "prepare" || store.saved[0].Tier != "precondition" {
		t.Errorf("first record = %+v", store.saved[0])
	}
	for _, r := range store.saved {
		if r.Stage == "guide" {
			t.Error("skipped stage produced a record")
		}
	}

	run := store.saved[len(store.saved)-1]
	if run.Stage != "" || run.Elapsed != 95 || !run.Success {
		t.Errorf("whole-run record = %+v", run)
	}
	if store.saved[1].Elapsed != 60 {
		t.Errorf("slew elapsed = %v, want 60", store.saved[1].Elapsed)
	}
}

func TestRecorder_FailedRunMarksRecords(t *testing.T) {
	store := &mockStore{}
	rec := NewRecorder(store, nil)

	outcome := testOutcome()
	outcome.Status = macro.StatusFailed
	outcome.Stages[1].Status = macro.StageFailed
	rec.MacroFinished(outcome)

	if store.saved[1].Success {
		t.Error("failed stage recorded as success")
	}
	if store.saved[len(store.saved)-1].Success {
		t.Error("failed run recorded as success")
	}
}

func TestRecorder_SaveErrorLoggedNotRetried(t *testing.T) {
	store := &mockStore{saveErr: errors.New("disk full")}
	logger := &mockLogger{}
	rec := NewRecorder(store, logger)

	rec.MacroFinished(testOutcome())
	if logger.errors != 1 {
		t.Errorf("logged %d errors, want 1", logger.errors)
	}
	if len(store.saved) != 0 {
		t.Error("records saved despite store error")
	}
}

// ─── SQLite Store ───────────────────────────────────────────────────────────

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE overheads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		macro TEXT NOT NULL,
		macro_id INTEGER NOT NULL,
		stage TEXT,
		tier TEXT,
		grp INTEGER NOT NULL DEFAULT -1,
		start_time REAL NOT NULL,
		end_time REAL,
		elapsed REAL,
		success INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
	)`)
	if err != nil {
		t.Fatalf("creating table: %v", err)
	}
	return NewSQLiteStore(db)
}

func TestSQLiteStore_SaveAndForRun(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	start := time.Date(2026, 8, 20, 3, 0, 0, 0, time.UTC)
	records := []Record{
		{
			Macro: "expose", MacroID: 3, Stage: "expose_optical",
			Tier: "normal", Group: 0,
			Start: start, End: start.Add(980 * time.Second),
			Elapsed: 980, Success: true,
		},
		{
			Macro: "expose", MacroID: 3, Group: -1,
			Start: start, End: start.Add(990 * time.Second),
			Elapsed: 990, Success: true,
		},
	}
	if err := store.Save(ctx, records); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.ForRun(ctx, 3)
	if err != nil {
		t.Fatalf("ForRun() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ForRun() returned %d records, want 2", len(got))
	}
	if got[0].Stage != "expose_optical" || got[0].Tier != "normal" || !got[0].Success {
		t.Errorf("stage record = %+v", got[0])
	}
	if got[1].Stage != "" || got[1].Group != -1 {
		t.Errorf("run record = %+v", got[1])
	}
	if !got[0].Start.Equal(start) {
		t.Errorf("start round-trip = %v, want %v", got[0].Start, start)
	}
	if got[0].ID == 0 {
		t.Error("record ID not assigned")
	}
}

func TestSQLiteStore_ForRunEmpty(t *testing.T) {
	store := testStore(t)

	got, err := store.ForRun(context.Background(), 99)
	if err != nil {
		t.Fatalf("ForRun() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ForRun() = %v, want empty", got)
	}
}

func TestSQLiteStore_SaveEmptyIsNoOp(t *testing.T) {
	store := testStore(t)
	if err := store.Save(context.Background(), nil); err != nil {
		t.Errorf("Save(nil) error = %v", err)
	}
}
