package model

import (
	"database/sql"
	"time"
)

// Replay download states.
const (
	StatusPending    = "pending"
	StatusDownloaded = "downloaded"
	StatusFailed     = "failed"
)

// Parse states.
const (
	ParseStatusPending = "pending"
	ParseStatusParsed  = "parsed"
	ParseStatusFailed  = "failed"
)

// Download run states.
const (
	RunStatusRunning     = "running"
	RunStatusSuccess     = "success"
	RunStatusError       = "error"
	RunStatusInterrupted = "interrupted"
)

// Group is a root group registered by a download run.
type Group struct {
	GroupID      string    `db:"group_id"`
	Name         string    `db:"name"`
	ReplayCount  int       `db:"replay_count"`
	DownloadedAt time.Time `db:"downloaded_at"` // last registration
}

// RawReplay tracks the download state of one remote replay.
// A downloaded row always has StorageKey and FileSizeBytes set.
type RawReplay struct {
	ReplayID      string         `db:"replay_id"`
	Title         sql.NullString `db:"title"`
	Date          sql.NullString `db:"date"`
	BlueTeam      sql.NullString `db:"blue_team"`
	OrangeTeam    sql.NullString `db:"orange_team"`
	StorageKey    sql.NullString `db:"storage_key"`
	FileSizeBytes sql.NullInt64  `db:"file_size_bytes"`
	DownloadedAt  sql.NullTime   `db:"downloaded_at"`
	Status        string         `db:"status"`
	ErrorMessage  sql.NullString `db:"error_message"`
	CreatedAt     time.Time      `db:"created_at"`
}

// ParsedReplay records the outcome of parsing a downloaded replay.
type ParsedReplay struct {
	ReplayID      string          `db:"replay_id"`
	RawReplayID   string          `db:"raw_replay_id"`
	OutputPath    sql.NullString  `db:"output_path"`
	FPS           sql.NullFloat64 `db:"fps"`
	FrameCount    sql.NullInt64   `db:"frame_count"`
	FeatureCount  sql.NullInt64   `db:"feature_count"`
	FileSizeBytes sql.NullInt64   `db:"file_size_bytes"`
	ParsedAt      sql.NullTime    `db:"parsed_at"`
	Status        string          `db:"status"`
	ErrorMessage  sql.NullString  `db:"error_message"`
	Metadata      sql.NullString  `db:"metadata"` // JSON
}

// DownloadRun is one invocation of the download command.
type DownloadRun struct {
	ID           string         `db:"id"`
	GroupID      string         `db:"group_id"`
	Label        string         `db:"label"`
	StartedAt    time.Time      `db:"started_at"`
	FinishedAt   sql.NullTime   `db:"finished_at"`
	Status       string         `db:"status"`
	Total        int            `db:"total"`
	Successful   int            `db:"successful"`
	Skipped      int            `db:"skipped"`
	Failed       int            `db:"failed"`
	TotalBytes   int64          `db:"total_bytes"`
	ErrorMessage sql.NullString `db:"error_message"`
}
