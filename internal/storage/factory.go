package storage

import (
	"context"
	"fmt"

	"impulse-go/internal/collection"
	"impulse-go/internal/config"
)

// NewStorageFromConfig creates a Storage implementation based on the storage config type.
// The config is validated first so a missing bucket or directory surfaces
// as a ConfigurationError before any remote work.
func NewStorageFromConfig(ctx context.Context, cfg config.StorageConfig) (collection.Storage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case "memory":
		return NewMemoryStorage(), nil
	case "s3":
		s, err := NewS3StorageFromConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "local":
		s, err := NewFileSystemStorage(cfg.LocalDir)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
