package database

import (
	"errors"
	"path/filepath"
	"testing"

	"impulse-go/internal/config"
)

func TestNewDatabaseFromConfig(t *testing.T) {
	t.Run("memory database", func(t *testing.T) {
		got, err := NewDatabaseFromConfig(config.DatabaseConfig{Type: "memory"}, nil)
		if err != nil {
			t.Fatalf("NewDatabaseFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		if err := got.CheckMigrations(); err != nil {
			t.Errorf("CheckMigrations() error = %v", err)
		}
	})

	t.Run("sqlite database creates parent directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "impulse.db")
		got, err := NewDatabaseFromConfig(config.DatabaseConfig{Type: "sqlite", Path: path}, nil)
		if err != nil {
			t.Fatalf("NewDatabaseFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		if got.Path() != path {
			t.Errorf("Path() = %q, want %q", got.Path(), path)
		}
	})

	t.Run("sqlite without path", func(t *testing.T) {
		_, err := NewDatabaseFromConfig(config.DatabaseConfig{Type: "sqlite"}, nil)
		var cfgErr *config.ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Errorf("NewDatabaseFromConfig() error = %v, want ConfigurationError", err)
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := NewDatabaseFromConfig(config.DatabaseConfig{Type: "postgres"}, nil)
		if err == nil {
			t.Error("NewDatabaseFromConfig() expected error for unknown type")
		}
	})
}
