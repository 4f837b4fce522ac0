package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/BrandonDHaskell/llllogs/internal/db"
	"github.com/BrandonDHaskell/llllogs/internal/llllogs/store"
	"github.com/BrandonDHaskell/llllogs/internal/llllogs/types"
)

type RunStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewRunStore(db *sql.DB, writer *dbpkg.Worker) *RunStore {
	return &RunStore{db: db, writer: writer}
}

func (s *RunStore) StartRun(ctx context.Context, run store.IngestRun) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO ingest_runs(run_id, started_at_ms, state) VALUES (?, ?, ?);
`, run.RunID, run.StartedAt.UTC().UnixMilli(), string(run.State)); err != nil {
			return fmt.Errorf("StartRun insert: %w", err)
		}
		return nil
	})
}

func (s *RunStore) FinishRun(ctx context.Context, run store.IngestRun) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}
	var errText any
	if run.Error != "" {
		errText = run.Error
	}
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
UPDATE ingest_runs
SET finished_at_ms = ?,
    state          = ?,
    records_read   = ?,
    accepted       = ?,
    duplicates     = ?,
    rejected       = ?,
    error          = ?
WHERE run_id = ?;
`, run.FinishedAt.UTC().UnixMilli(), string(run.State), run.Read, run.Accepted,
			run.Duplicates, run.Rejected, errText, run.RunID); err != nil {
			return fmt.Errorf("FinishRun update: %w", err)
		}
		return nil
	})
}

// RecentRuns returns up to limit runs, newest first.
func (s *RunStore) RecentRuns(ctx context.Context, limit int) ([]store.IngestRun, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT run_id, started_at_ms, finished_at_ms, state,
       records_read, accepted, duplicates, rejected, error
FROM ingest_runs
ORDER BY started_at_ms DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("RecentRuns: %w", err)
	}
	defer rows.Close()

	var out []store.IngestRun
	for rows.Next() {
		var (
			r          store.IngestRun
			startedMs  int64
			finishedMs sql.NullInt64
			state      string
			errText    sql.NullString
		)
		if err := rows.Scan(&r.RunID, &startedMs, &finishedMs, &state,
			&r.Read, &r.Accepted, &r.Duplicates, &r.Rejected, &errText); err != nil {
			return nil, fmt.Errorf("RecentRuns scan: %w", err)
		}
		r.StartedAt = time.UnixMilli(startedMs).UTC()
		if finishedMs.Valid {
			r.FinishedAt = time.UnixMilli(finishedMs.Int64).UTC()
		}
		r.State = types.RunState(state)
		r.Error = errText.String
		out = append(out, r)
	}
	return out, rows.Err()
}
