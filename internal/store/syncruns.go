package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/darshan-rambhia/voltline/internal/model"
)

// InsertSyncRun appends a run to the sync history and returns its row id.
// Sync history is append-only.
func (s *Store) InsertSyncRun(ctx context.Context, run model.SyncRun) (int64, error) {
	var msg any
	if run.ErrorMessage != "" {
		msg = run.ErrorMessage
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_status (run_id, sync_type, status, records_synced, errors_count, error_message, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, string(run.SyncType), string(run.Status), run.RecordsSynced,
		run.ErrorsCount, msg, run.DurationMs, run.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting sync run %s: %w", run.RunID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading sync run id: %w", err)
	}
	return id, nil
}

// ListSyncRuns returns the most recent runs first. limit <= 0 means 50.
func (s *Store) ListSyncRuns(ctx context.Context, limit int) ([]model.SyncRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, sync_type, status, records_synced, errors_count, error_message, duration_ms, created_at
		FROM sync_status
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sync runs: %w", err)
	}
	defer rows.Close()

	var runs []model.SyncRun
	for rows.Next() {
		var r model.SyncRun
		var syncType, status string
		var msg sql.NullString
		if err := rows.Scan(&r.ID, &r.RunID, &syncType, &status, &r.RecordsSynced,
			&r.ErrorsCount, &msg, &r.DurationMs, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning sync run: %w", err)
		}
		r.SyncType = model.SyncType(syncType)
		r.Status = model.RunStatus(status)
		r.ErrorMessage = msg.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LastSuccessfulSync returns the created_at of the newest successful
// full or incremental run. ok is false when there is none.
func (s *Store) LastSuccessfulSync(ctx context.Context) (t time.Time, ok bool, err error) {
	var ms int64
	err = s.db.QueryRowContext(ctx, `
		SELECT created_at FROM sync_status
		WHERE status = ? AND sync_type IN (?, ?)
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		string(model.StatusSuccess), string(model.SyncFull), string(model.SyncIncremental),
	).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("querying last successful sync: %w", err)
	}
	return time.UnixMilli(ms).UTC(), true, nil
}
