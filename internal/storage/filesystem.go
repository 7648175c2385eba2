package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"impulse-go/internal/collection"
)

// metadataExt is the suffix of the JSON sidecar written next to a replay.
const metadataExt = ".metadata.json"

// FileSystemStorage stores replays in a local directory tree:
//
//	<root>/
//	  <component>/.../<id>.replay
//	  <component>/.../<id>.metadata.json   (when metadata is given)
//
// Keys are slash-separated paths relative to root.
type FileSystemStorage struct {
	root string
}

// NewFileSystemStorage creates a local store rooted at root, creating it if needed.
func NewFileSystemStorage(root string) (*FileSystemStorage, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileSystemStorage{root: root}, nil
}

// Root returns the base directory.
func (s *FileSystemStorage) Root() string { return s.root }

func (s *FileSystemStorage) Key(replayID string, components []string) string {
	return replayKey(replayID, components)
}

func (s *FileSystemStorage) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// Save writes the replay atomically, plus a metadata sidecar when meta is set.
func (s *FileSystemStorage) Save(ctx context.Context, replayID string, data []byte, components []string, meta *collection.ReplayMetadata) (*collection.SaveResult, error) {
	key := s.Key(replayID, components)
	dest := s.path(key)

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return nil, &StorageError{Op: "save", Key: key, Err: err}
	}
	if err := writeFile(dest, bytes.NewReader(data), int64(len(data))); err != nil {
		return nil, &StorageError{Op: "save", Key: key, Err: err}
	}

	if meta != nil {
		sidecar, err := json.MarshalIndent(meta, "", "  ")
		if err != nil {
			return nil, &StorageError{Op: "save", Key: key, Err: fmt.Errorf("encoding metadata: %w", err)}
		}
		metaPath := strings.TrimSuffix(dest, ReplayExt) + metadataExt
		if err := writeFile(metaPath, bytes.NewReader(sidecar), int64(len(sidecar))); err != nil {
			return nil, &StorageError{Op: "save", Key: key, Err: fmt.Errorf("writing metadata: %w", err)}
		}
	}

	return &collection.SaveResult{
		Key:      key,
		Size:     int64(len(data)),
		Location: dest,
	}, nil
}

func (s *FileSystemStorage) Exists(ctx context.Context, replayID string, components []string) (bool, error) {
	key := s.Key(replayID, components)
	info, err := os.Stat(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, &StorageError{Op: "exists", Key: key, Err: err}
	}
	return info.Mode().IsRegular(), nil
}

func (s *FileSystemStorage) Size(ctx context.Context, replayID string, components []string) (int64, error) {
	key := s.Key(replayID, components)
	info, err := os.Stat(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, &StorageError{Op: "size", Key: key, Err: err}
	}
	return info.Size(), nil
}

// List walks the tree below prefix and returns the sorted replay ids.
func (s *FileSystemStorage) List(ctx context.Context, prefix string) ([]string, error) {
	var ids []string
	err := s.walk(ctx, prefix, func(key string, _ fs.FileInfo) {
		ids = append(ids, replayIDFromKey(key))
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *FileSystemStorage) Stats(ctx context.Context, prefix string) (*collection.StorageStats, error) {
	stats := &collection.StorageStats{}
	err := s.walk(ctx, prefix, func(_ string, info fs.FileInfo) {
		stats.Count++
		stats.TotalBytes += info.Size()
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *FileSystemStorage) walk(ctx context.Context, prefix string, fn func(key string, info fs.FileInfo)) error {
	start := s.path(strings.Trim(prefix, "/"))
	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == start {
				return filepath.SkipAll
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ReplayExt) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		fn(filepath.ToSlash(rel), info)
		return nil
	})
	if err != nil {
		return &StorageError{Op: "list", Key: prefix, Err: err}
	}
	return nil
}

// PutFile stores an auxiliary artifact at key, replacing any previous copy.
func (s *FileSystemStorage) PutFile(ctx context.Context, key string, r io.Reader, size int64) error {
	dest := s.path(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return &StorageError{Op: "put", Key: key, Err: err}
	}
	if err := writeFile(dest, r, size); err != nil {
		return &StorageError{Op: "put", Key: key, Err: err}
	}
	return nil
}

// ValidateSetup verifies that the root is a writable directory.
func (s *FileSystemStorage) ValidateSetup(ctx context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("storage root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage root is not a directory: %s", s.root)
	}

	probe, err := os.CreateTemp(s.root, ".probe-*")
	if err != nil {
		return fmt.Errorf("storage root not writable: %w", err)
	}
	probe.Close()
	return os.Remove(probe.Name())
}

// writeFile writes r to destPath through a temp file in the same directory
// and a rename, so readers never observe a partial file.
func writeFile(destPath string, r io.Reader, expectedSize int64) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

var _ collection.Storage = (*FileSystemStorage)(nil)
