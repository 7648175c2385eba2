package collection

import (
	"context"
	"io"
)

// Storage is a destination for replay bytes. Keys are deterministic: the
// same replay id and path components always map to the same key.
type Storage interface {
	// Save stores the replay under the given path components and returns
	// where it landed. meta may be nil.
	Save(ctx context.Context, replayID string, data []byte, components []string, meta *ReplayMetadata) (*SaveResult, error)

	// Exists reports whether the replay object is present.
	Exists(ctx context.Context, replayID string, components []string) (bool, error)

	// Size returns the stored object's size in bytes, or 0 when absent.
	Size(ctx context.Context, replayID string, components []string) (int64, error)

	// List returns the ids of stored replays under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// Stats counts stored replay objects under prefix.
	Stats(ctx context.Context, prefix string) (*StorageStats, error)

	// Key computes the storage key for a replay without touching storage.
	Key(replayID string, components []string) string

	// PutFile stores an auxiliary artifact (database backup, run log) under key.
	// size is the number of bytes that will be read from r.
	PutFile(ctx context.Context, key string, r io.Reader, size int64) error

	// ValidateSetup verifies that the backend is reachable and writable,
	// creating containers it owns when needed.
	ValidateSetup(ctx context.Context) error
}
