// Package treecache persists crawled group trees so repeated runs against
// the same root group skip the catalog crawl.
package treecache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"

	"impulse-go/internal/collection"
)

// FileCache stores one JSON file per root group:
//
//	<dir>/group_tree_<rootID>.json
type FileCache struct {
	dir string
}

// NewFileCache creates a cache rooted at dir. The directory is created on
// first save.
func NewFileCache(dir string) *FileCache {
	return &FileCache{dir: dir}
}

// Path returns the cache file for rootID.
func (c *FileCache) Path(rootID string) string {
	return filepath.Join(c.dir, fmt.Sprintf("group_tree_%s.json", collection.Sanitize(rootID)))
}

// Load returns the cached tree, or nil when no cache file exists.
func (c *FileCache) Load(rootID string) (*collection.GroupTree, error) {
	data, err := os.ReadFile(c.Path(rootID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading tree cache: %w", err)
	}

	var tree collection.GroupTree
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("decoding tree cache %s: %w", c.Path(rootID), err)
	}
	return &tree, nil
}

// Save writes the tree through a temp file and rename so a crash never
// leaves a truncated cache behind.
func (c *FileCache) Save(tree *collection.GroupTree) error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding tree cache: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, ".tree-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing tree cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, c.Path(tree.ID)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Delete removes the cache file for rootID. Deleting a missing entry is not an error.
func (c *FileCache) Delete(rootID string) error {
	if err := os.Remove(c.Path(rootID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting tree cache: %w", err)
	}
	return nil
}

// MemoryCache keeps trees in memory. Safe for concurrent use.
type MemoryCache struct {
	mu    sync.Mutex
	trees map[string]*collection.GroupTree
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{trees: make(map[string]*collection.GroupTree)}
}

func (c *MemoryCache) Load(rootID string) (*collection.GroupTree, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trees[rootID], nil
}

func (c *MemoryCache) Save(tree *collection.GroupTree) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trees[tree.ID] = tree
	return nil
}

func (c *MemoryCache) Delete(rootID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.trees, rootID)
	return nil
}

var (
	_ collection.TreeCache = (*FileCache)(nil)
	_ collection.TreeCache = (*MemoryCache)(nil)
)
