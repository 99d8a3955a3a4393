package overhead

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteStore persists overhead records in the overheads table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new overhead record store.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Save inserts the records in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning overhead transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO overheads (macro, macro_id, stage, tier, grp, start_time, end_time, elapsed, success)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing overhead insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx,
			rec.Macro, rec.MacroID,
			nullableString(rec.Stage), nullableString(rec.Tier), rec.Group,
			epochSeconds(rec.Start), nullableEpoch(rec.End),
			rec.Elapsed, boolToInt(rec.Success),
		); err != nil {
			return fmt.Errorf("inserting overhead record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing overhead records: %w", err)
	}
	return nil
}

// ForRun returns every record of one macro run, stage rows first in
// insertion order, the whole-run row last.
func (s *SQLiteStore) ForRun(ctx context.Context, macroID int64) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, macro, macro_id, stage, tier, grp, start_time, end_time, elapsed, success
		 FROM overheads WHERE macro_id = ? ORDER BY id`,
		macroID)
	if err != nil {
		return nil, fmt.Errorf("querying overhead records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var stage, tier sql.NullString
		var start float64
		var end sql.NullFloat64
		var success int

		if err := rows.Scan(&rec.ID, &rec.Macro, &rec.MacroID,
			&stage, &tier, &rec.Group, &start, &end, &rec.Elapsed, &success); err != nil {
			return nil, fmt.Errorf("scanning overhead record: %w", err)
		}

		rec.Stage = stage.String
		rec.Tier = tier.String
		rec.Start = fromEpochSeconds(start)
		if end.Valid {
			rec.End = fromEpochSeconds(end.Float64)
		}
		rec.Success = success != 0
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating overhead records: %w", err)
	}
	return records, nil
}

// nullableString returns nil for empty strings, or the string otherwise.
// Used for nullable TEXT columns in SQLite.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableEpoch(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return epochSeconds(t)
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromEpochSeconds(s float64) time.Time {
	return time.Unix(0, int64(s*float64(time.Second))).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
