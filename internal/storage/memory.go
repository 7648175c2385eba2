package storage

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"impulse-go/internal/collection"
)

// MemoryStorage keeps replays in memory. Useful for tests and dry runs.
// Safe for concurrent use.
type MemoryStorage struct {
	mu       sync.RWMutex
	objects  map[string][]byte                    // key -> bytes
	metadata map[string]collection.ReplayMetadata // key -> metadata
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		objects:  make(map[string][]byte),
		metadata: make(map[string]collection.ReplayMetadata),
	}
}

func (m *MemoryStorage) Key(replayID string, components []string) string {
	return replayKey(replayID, components)
}

func (m *MemoryStorage) Save(ctx context.Context, replayID string, data []byte, components []string, meta *collection.ReplayMetadata) (*collection.SaveResult, error) {
	key := m.Key(replayID, components)
	buf := make([]byte, len(data))
	copy(buf, data)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[key] = buf
	if meta != nil {
		m.metadata[key] = *meta
	}
	return &collection.SaveResult{Key: key, Size: int64(len(buf)), Location: "memory://" + key}, nil
}

func (m *MemoryStorage) Exists(ctx context.Context, replayID string, components []string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.objects[m.Key(replayID, components)]
	return ok, nil
}

func (m *MemoryStorage) Size(ctx context.Context, replayID string, components []string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return int64(len(m.objects[m.Key(replayID, components)])), nil
}

func (m *MemoryStorage) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for key := range m.objects {
		if isReplayKey(key) && underPrefix(key, prefix) {
			ids = append(ids, replayIDFromKey(key))
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryStorage) Stats(ctx context.Context, prefix string) (*collection.StorageStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &collection.StorageStats{}
	for key, data := range m.objects {
		if isReplayKey(key) && underPrefix(key, prefix) {
			stats.Count++
			stats.TotalBytes += int64(len(data))
		}
	}
	return stats, nil
}

func (m *MemoryStorage) PutFile(ctx context.Context, key string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return &StorageError{Op: "put", Key: key, Err: err}
	}
	if int64(len(data)) != size {
		return &StorageError{Op: "put", Key: key, Err: fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[key] = data
	return nil
}

// Get returns a copy of the object stored at key.
func (m *MemoryStorage) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.objects[key]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true
}

// Metadata returns the metadata saved with the replay at key.
func (m *MemoryStorage) Metadata(key string) (collection.ReplayMetadata, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	meta, ok := m.metadata[key]
	return meta, ok
}

// Delete removes the object at key. Tests use it to simulate lost objects.
func (m *MemoryStorage) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, key)
	delete(m.metadata, key)
}

// ValidateSetup always succeeds for in-memory storage.
func (m *MemoryStorage) ValidateSetup(ctx context.Context) error {
	return nil
}

var _ collection.Storage = (*MemoryStorage)(nil)
