package database

import (
	"fmt"
	"os"
	"path/filepath"

	"impulse-go/internal/collection"
	"impulse-go/internal/config"
)

// NewDatabaseFromConfig opens the tracking database described by cfg.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, clock collection.Clock) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite", "":
		if cfg.Path == "" {
			return nil, &config.ConfigurationError{Field: "database.path", Reason: "required for sqlite database"}
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		return NewSQLiteDatabase(cfg.Path, clock)
	case "memory":
		return NewSQLiteDatabase(":memory:", clock)
	default:
		return nil, &config.ConfigurationError{Field: "database.type", Reason: fmt.Sprintf("unknown database type: %s", cfg.Type)}
	}
}
