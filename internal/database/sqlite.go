package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"impulse-go/internal/collection"
	"impulse-go/internal/database/migrations"
	"impulse-go/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase is the persistent tracking store backed by SQLite.
type SQLiteDatabase struct {
	db    *sqlx.DB
	path  string
	clock collection.Clock
}

// NewSQLiteDatabase opens the database at path, applying any pending
// migrations. path can be a file path or ":memory:". clock may be nil.
func NewSQLiteDatabase(path string, clock collection.Clock) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db.DB); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	s := NewSQLiteDatabaseFromDB(db, clock)
	s.path = path
	return s, nil
}

// NewSQLiteDatabaseFromDB wraps an existing, already migrated connection.
func NewSQLiteDatabaseFromDB(db *sqlx.DB, clock collection.Clock) *SQLiteDatabase {
	if clock == nil {
		clock = collection.RealClock{}
	}
	return &SQLiteDatabase{db: db, clock: clock}
}

// OpenConnection opens and configures a SQLite connection.
// The pool is pinned to one connection: writers are serialized and an
// in-memory database keeps its schema for the lifetime of the handle.
func OpenConnection(path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	// SQLite ships with foreign keys off
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// withTx runs fn inside a transaction. The transaction commits only if fn
// returns nil; every other exit path rolls back.
func (s *SQLiteDatabase) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Group operations

func (s *SQLiteDatabase) RegisterGroup(ctx context.Context, groupID, name string, replayCount int) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO groups (group_id, name, replay_count, downloaded_at)
			VALUES (:group_id, :name, :replay_count, :downloaded_at)
			ON CONFLICT (group_id) DO UPDATE SET
				name = excluded.name,
				replay_count = excluded.replay_count,
				downloaded_at = excluded.downloaded_at`,
			model.Group{
				GroupID:      groupID,
				Name:         name,
				ReplayCount:  replayCount,
				DownloadedAt: s.clock.Now().UTC(),
			})
		if err != nil {
			return fmt.Errorf("registering group %s: %w", groupID, err)
		}
		return nil
	})
}

// GetGroup returns a registered group, or nil when unknown.
func (s *SQLiteDatabase) GetGroup(ctx context.Context, groupID string) (*model.Group, error) {
	var g model.Group
	err := s.db.GetContext(ctx, &g, "SELECT * FROM groups WHERE group_id = ?", groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding group %s: %w", groupID, err)
	}
	return &g, nil
}

// ListGroups returns every registered group, most recently registered first.
func (s *SQLiteDatabase) ListGroups(ctx context.Context) ([]model.Group, error) {
	var groups []model.Group
	if err := s.db.SelectContext(ctx, &groups, "SELECT * FROM groups ORDER BY downloaded_at DESC"); err != nil {
		return nil, fmt.Errorf("listing groups: %w", err)
	}
	return groups, nil
}

// Raw replay operations

func (s *SQLiteDatabase) AddReplay(ctx context.Context, replay collection.Replay) (bool, error) {
	var added bool
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.NamedExecContext(ctx, `
			INSERT INTO raw_replays (replay_id, title, date, blue_team, orange_team, status, created_at)
			VALUES (:replay_id, :title, :date, :blue_team, :orange_team, :status, :created_at)
			ON CONFLICT (replay_id) DO NOTHING`,
			model.RawReplay{
				ReplayID:   replay.ID,
				Title:      nullString(replay.DisplayTitle()),
				Date:       nullString(replay.Date),
				BlueTeam:   nullString(replay.BlueName()),
				OrangeTeam: nullString(replay.OrangeName()),
				Status:     model.StatusPending,
				CreatedAt:  s.clock.Now().UTC(),
			})
		if err != nil {
			return fmt.Errorf("adding replay %s: %w", replay.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("adding replay %s: %w", replay.ID, err)
		}
		added = n == 1
		return nil
	})
	return added, err
}

func (s *SQLiteDatabase) IsDownloaded(ctx context.Context, replayID string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM raw_replays WHERE replay_id = ? AND status = ?",
		replayID, model.StatusDownloaded)
	if err != nil {
		return false, fmt.Errorf("checking replay %s: %w", replayID, err)
	}
	return n > 0, nil
}

func (s *SQLiteDatabase) MarkDownloaded(ctx context.Context, replayID, storageKey string, size int64) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		now := s.clock.Now().UTC()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO raw_replays (replay_id, storage_key, file_size_bytes, downloaded_at, status, error_message, created_at)
			VALUES (?, ?, ?, ?, ?, NULL, ?)
			ON CONFLICT (replay_id) DO UPDATE SET
				storage_key = excluded.storage_key,
				file_size_bytes = excluded.file_size_bytes,
				downloaded_at = excluded.downloaded_at,
				status = excluded.status,
				error_message = NULL`,
			replayID, storageKey, size, now, model.StatusDownloaded, now)
		if err != nil {
			return fmt.Errorf("marking replay %s downloaded: %w", replayID, err)
		}
		return nil
	})
}

func (s *SQLiteDatabase) MarkFailed(ctx context.Context, replayID, message string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO raw_replays (replay_id, status, error_message, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (replay_id) DO UPDATE SET
				status = excluded.status,
				error_message = excluded.error_message`,
			replayID, model.StatusFailed, message, s.clock.Now().UTC())
		if err != nil {
			return fmt.Errorf("marking replay %s failed: %w", replayID, err)
		}
		return nil
	})
}

// GetReplay returns a tracked replay, or nil when unknown.
func (s *SQLiteDatabase) GetReplay(ctx context.Context, replayID string) (*model.RawReplay, error) {
	var r model.RawReplay
	err := s.db.GetContext(ctx, &r, "SELECT * FROM raw_replays WHERE replay_id = ?", replayID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding replay %s: %w", replayID, err)
	}
	return &r, nil
}

// ListReplaysByStatus returns replays in the given state in insertion order.
// A limit of zero or less returns all of them.
func (s *SQLiteDatabase) ListReplaysByStatus(ctx context.Context, status string, limit int) ([]model.RawReplay, error) {
	if limit <= 0 {
		limit = -1
	}
	var replays []model.RawReplay
	err := s.db.SelectContext(ctx, &replays,
		"SELECT * FROM raw_replays WHERE status = ? ORDER BY created_at, replay_id LIMIT ?",
		status, limit)
	if err != nil {
		return nil, fmt.Errorf("listing %s replays: %w", status, err)
	}
	return replays, nil
}

func (s *SQLiteDatabase) Stats(ctx context.Context) (*collection.TrackerStats, error) {
	var stats collection.TrackerStats
	err := s.db.GetContext(ctx, &stats, `
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN status = 'downloaded' THEN 1 ELSE 0 END), 0) AS downloaded,
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0) AS failed,
			COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0) AS pending,
			COALESCE(SUM(CASE WHEN status = 'downloaded' THEN file_size_bytes ELSE 0 END), 0) AS total_bytes
		FROM raw_replays`)
	if err != nil {
		return nil, fmt.Errorf("computing stats: %w", err)
	}
	return &stats, nil
}

// Path returns the database file path (or ":memory:").
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db.DB)
}

// BackupTo writes a consistent copy of the database to destPath using
// VACUUM INTO. destPath must not exist.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

var _ collection.Tracker = (*SQLiteDatabase)(nil)
