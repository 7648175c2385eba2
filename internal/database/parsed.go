package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"impulse-go/internal/model"
)

// ParseStats summarizes parse bookkeeping.
type ParseStats struct {
	Total  int `db:"total"`
	Parsed int `db:"parsed"`
	Failed int `db:"failed"`
	// Unparsed counts downloaded raw replays with no successful parse.
	Unparsed int `db:"unparsed"`
}

// UpsertParsedReplay records a parse result, replacing any previous row
// for the same replay id. The raw replay must already be tracked.
func (s *SQLiteDatabase) UpsertParsedReplay(ctx context.Context, p model.ParsedReplay) error {
	if p.Status == "" {
		p.Status = model.ParseStatusParsed
	}
	if !p.ParsedAt.Valid {
		p.ParsedAt = sql.NullTime{Time: s.clock.Now().UTC(), Valid: true}
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO parsed_replays (
				replay_id, raw_replay_id, output_path, fps, frame_count, feature_count,
				file_size_bytes, parsed_at, status, error_message, metadata
			) VALUES (
				:replay_id, :raw_replay_id, :output_path, :fps, :frame_count, :feature_count,
				:file_size_bytes, :parsed_at, :status, :error_message, :metadata
			)
			ON CONFLICT (replay_id) DO UPDATE SET
				raw_replay_id = excluded.raw_replay_id,
				output_path = excluded.output_path,
				fps = excluded.fps,
				frame_count = excluded.frame_count,
				feature_count = excluded.feature_count,
				file_size_bytes = excluded.file_size_bytes,
				parsed_at = excluded.parsed_at,
				status = excluded.status,
				error_message = excluded.error_message,
				metadata = excluded.metadata`, p)
		if err != nil {
			return fmt.Errorf("recording parse of %s: %w", p.ReplayID, err)
		}
		return nil
	})
}

// MarkParseFailed records a failed parse of a tracked raw replay.
func (s *SQLiteDatabase) MarkParseFailed(ctx context.Context, replayID, message string) error {
	return s.UpsertParsedReplay(ctx, model.ParsedReplay{
		ReplayID:     replayID,
		RawReplayID:  replayID,
		Status:       model.ParseStatusFailed,
		ErrorMessage: sql.NullString{String: message, Valid: true},
	})
}

// IsParsed reports whether the replay has a successful parse recorded.
func (s *SQLiteDatabase) IsParsed(ctx context.Context, replayID string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM parsed_replays WHERE replay_id = ? AND status = ?",
		replayID, model.ParseStatusParsed)
	if err != nil {
		return false, fmt.Errorf("checking parse of %s: %w", replayID, err)
	}
	return n > 0, nil
}

// GetParsedReplay returns the parse record for a replay, or nil.
func (s *SQLiteDatabase) GetParsedReplay(ctx context.Context, replayID string) (*model.ParsedReplay, error) {
	var rows []model.ParsedReplay
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM parsed_replays WHERE replay_id = ?", replayID); err != nil {
		return nil, fmt.Errorf("finding parse of %s: %w", replayID, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// ListUnparsed returns downloaded replays that have no successful parse.
// A limit of zero or less returns all of them.
func (s *SQLiteDatabase) ListUnparsed(ctx context.Context, limit int) ([]model.RawReplay, error) {
	if limit <= 0 {
		limit = -1
	}
	var replays []model.RawReplay
	err := s.db.SelectContext(ctx, &replays, `
		SELECT r.* FROM raw_replays r
		LEFT JOIN parsed_replays p ON p.raw_replay_id = r.replay_id AND p.status = 'parsed'
		WHERE r.status = 'downloaded' AND p.replay_id IS NULL
		ORDER BY r.created_at, r.replay_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing unparsed replays: %w", err)
	}
	return replays, nil
}

// ParseStats returns live parse counts.
func (s *SQLiteDatabase) ParseStats(ctx context.Context) (*ParseStats, error) {
	var stats ParseStats
	err := s.db.GetContext(ctx, &stats, `
		SELECT
			(SELECT COUNT(*) FROM parsed_replays) AS total,
			(SELECT COUNT(*) FROM parsed_replays WHERE status = 'parsed') AS parsed,
			(SELECT COUNT(*) FROM parsed_replays WHERE status = 'failed') AS failed,
			(SELECT COUNT(*) FROM raw_replays r
				WHERE r.status = 'downloaded'
				AND NOT EXISTS (
					SELECT 1 FROM parsed_replays p
					WHERE p.raw_replay_id = r.replay_id AND p.status = 'parsed'
				)) AS unparsed`)
	if err != nil {
		return nil, fmt.Errorf("computing parse stats: %w", err)
	}
	return &stats, nil
}
