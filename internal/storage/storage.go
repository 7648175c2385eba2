// Package storage holds the replay storage backends: a local directory
// tree, an S3 bucket and an in-memory map. All three lay replays out the
// same way: the path components as nested folders and <id>.replay inside.
package storage

import (
	"fmt"
	"path"
	"strings"
)

// ReplayExt is the file extension of stored replays.
const ReplayExt = ".replay"

// StorageError wraps a backend failure with the operation and key involved.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// replayKey joins the path components and the replay file name with '/'.
func replayKey(replayID string, components []string) string {
	name := replayID + ReplayExt
	if len(components) == 0 {
		return name
	}
	return strings.Join(components, "/") + "/" + name
}

// underPrefix reports whether key lies in the folder named by prefix.
// An empty prefix matches everything.
func underPrefix(key, prefix string) bool {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return true
	}
	return key == prefix || strings.HasPrefix(key, prefix+"/")
}

// replayIDFromKey returns the replay id a key was built from.
func replayIDFromKey(key string) string {
	return strings.TrimSuffix(path.Base(key), ReplayExt)
}

// isReplayKey reports whether key names a stored replay.
func isReplayKey(key string) bool {
	return path.Ext(key) == ReplayExt
}
