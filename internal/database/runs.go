package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"impulse-go/internal/collection"
	"impulse-go/internal/model"
)

// CreateRun records the start of a download run.
func (s *SQLiteDatabase) CreateRun(ctx context.Context, id, groupID, label string) (*model.DownloadRun, error) {
	run := model.DownloadRun{
		ID:        id,
		GroupID:   groupID,
		Label:     label,
		StartedAt: s.clock.Now().UTC(),
		Status:    model.RunStatusRunning,
	}
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO download_runs (id, group_id, label, started_at, status)
			VALUES (:id, :group_id, :label, :started_at, :status)`, run)
		if err != nil {
			return fmt.Errorf("creating download run: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// FinishRun stores the outcome of a download run. result may be nil when
// the run failed before processing any item.
func (s *SQLiteDatabase) FinishRun(ctx context.Context, id, status string, result *collection.DownloadResult, runErr error) error {
	if result == nil {
		result = &collection.DownloadResult{}
	}
	var msg sql.NullString
	if runErr != nil {
		msg = sql.NullString{String: runErr.Error(), Valid: true}
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE download_runs SET
				finished_at = ?, status = ?, total = ?, successful = ?,
				skipped = ?, failed = ?, total_bytes = ?, error_message = ?
			WHERE id = ?`,
			s.clock.Now().UTC(), status, result.Total, result.Successful,
			result.Skipped, result.Failed, result.TotalBytes, msg, id)
		if err != nil {
			return fmt.Errorf("finishing download run %s: %w", id, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("finishing download run %s: not found", id)
		}
		return nil
	})
}

// ListRuns returns the most recent download runs, newest first.
func (s *SQLiteDatabase) ListRuns(ctx context.Context, limit int) ([]model.DownloadRun, error) {
	if limit <= 0 {
		limit = -1
	}
	var runs []model.DownloadRun
	err := s.db.SelectContext(ctx, &runs,
		"SELECT * FROM download_runs ORDER BY started_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("listing download runs: %w", err)
	}
	return runs, nil
}
