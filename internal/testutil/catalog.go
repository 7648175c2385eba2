package testutil

import (
	"context"
	"fmt"
	"sync"

	"impulse-go/internal/collection"
)

// FakeCatalog is an in-memory collection.CatalogClient. Groups form a tree
// through AddGroup's parent argument; replay bytes are served from memory.
// Safe for concurrent use.
type FakeCatalog struct {
	mu        sync.Mutex
	groups    map[string]collection.Group
	children  map[string][]collection.Group
	replays   map[string][]collection.Replay
	data      map[string][]byte
	failures  map[string]error
	downloads map[string]int
}

func NewFakeCatalog() *FakeCatalog {
	return &FakeCatalog{
		groups:    make(map[string]collection.Group),
		children:  make(map[string][]collection.Group),
		replays:   make(map[string][]collection.Replay),
		data:      make(map[string][]byte),
		failures:  make(map[string]error),
		downloads: make(map[string]int),
	}
}

// AddGroup registers a group. An empty parentID makes it a root.
func (f *FakeCatalog) AddGroup(id, name, parentID string) *FakeCatalog {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := collection.Group{ID: id, Name: name}
	f.groups[id] = g
	if parentID != "" {
		f.children[parentID] = append(f.children[parentID], g)
	}
	return f
}

// AddReplay lists replay under groupID and serves data for it.
func (f *FakeCatalog) AddReplay(groupID string, replay collection.Replay, data []byte) *FakeCatalog {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replays[groupID] = append(f.replays[groupID], replay)
	f.data[replay.ID] = data
	return f
}

// FailDownload makes DownloadReplay return err for replayID. A nil err clears it.
func (f *FakeCatalog) FailDownload(replayID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, replayID)
		return
	}
	f.failures[replayID] = err
}

// Downloads returns how many times replayID was downloaded.
func (f *FakeCatalog) Downloads(replayID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloads[replayID]
}

// TotalDownloads returns the number of DownloadReplay calls.
func (f *FakeCatalog) TotalDownloads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.downloads {
		n += c
	}
	return n
}

func (f *FakeCatalog) GetGroup(ctx context.Context, groupID string) (*collection.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.groups[groupID]
	if !ok {
		return nil, fmt.Errorf("group %s not found", groupID)
	}
	return &g, nil
}

func (f *FakeCatalog) ListChildGroups(ctx context.Context, groupID string) ([]collection.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]collection.Group(nil), f.children[groupID]...), nil
}

func (f *FakeCatalog) ListReplays(ctx context.Context, groupID string) ([]collection.Replay, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]collection.Replay(nil), f.replays[groupID]...), nil
}

func (f *FakeCatalog) DownloadReplay(ctx context.Context, replayID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads[replayID]++
	if err := f.failures[replayID]; err != nil {
		return nil, err
	}
	data, ok := f.data[replayID]
	if !ok {
		return nil, fmt.Errorf("replay %s not found", replayID)
	}
	return append([]byte(nil), data...), nil
}

var _ collection.CatalogClient = (*FakeCatalog)(nil)
