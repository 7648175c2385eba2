package collection

import "context"

// Tracker is the durable record of which replays are known, downloaded or
// failed. Every mutation runs as its own transaction.
type Tracker interface {
	// RegisterGroup upserts the root group of a download run.
	RegisterGroup(ctx context.Context, groupID, name string, replayCount int) error

	// AddReplay records a replay as pending if it is not yet known.
	// Returns true only when a new row was inserted; existing rows are untouched.
	AddReplay(ctx context.Context, replay Replay) (bool, error)

	// IsDownloaded reports whether the replay's status is exactly downloaded.
	IsDownloaded(ctx context.Context, replayID string) (bool, error)

	// MarkDownloaded records a stored replay, creating the row if needed.
	MarkDownloaded(ctx context.Context, replayID, storageKey string, size int64) error

	// MarkFailed records a failed attempt with its message, creating the row if needed.
	MarkFailed(ctx context.Context, replayID, message string) error

	// Stats returns live counts over all tracked replays.
	Stats(ctx context.Context) (*TrackerStats, error)
}

// TreeCache persists crawled group trees keyed by root group id.
type TreeCache interface {
	// Load returns the cached tree, or nil when none exists.
	Load(rootID string) (*GroupTree, error)
	Save(tree *GroupTree) error
	Delete(rootID string) error
}
