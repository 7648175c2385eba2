package collection

import (
	"context"
	"errors"
	"fmt"
)

// MissingFromStorageMessage is recorded when the tracker says a replay was
// downloaded but its object is gone. The next run downloads it again.
const MissingFromStorageMessage = "marked downloaded but missing from storage"

// DownloadOptions controls a single download pass.
type DownloadOptions struct {
	// PathPrefix components are prepended to every storage path.
	PathPrefix []string
	// ExcludeRoot drops the root group's name from storage paths.
	ExcludeRoot bool
	// NoCache forces a fresh crawl instead of loading the cached tree.
	NoCache bool
	// OnlyIDs restricts the pass to these replay ids and skips registration.
	OnlyIDs []string
}

// FailedItem is a replay that could not be downloaded in this pass.
type FailedItem struct {
	ReplayID string `json:"replay_id"`
	Error    string `json:"error"`
}

// DownloadResult summarizes one pass. Total = Successful + Skipped + Failed
// when the pass runs to completion.
type DownloadResult struct {
	GroupID     string       `json:"group_id"`
	GroupName   string       `json:"group_name"`
	Total       int          `json:"total"`
	Successful  int          `json:"successful"`
	Skipped     int          `json:"skipped"`
	Failed      int          `json:"failed"`
	TotalBytes  int64        `json:"total_bytes"`
	StorageKeys []string     `json:"storage_keys"`
	FailedItems []FailedItem `json:"failed_items"`
}

// Plan describes what a download pass would do, without touching storage.
type Plan struct {
	GroupID           string
	GroupName         string
	Groups            int
	Total             int
	AlreadyDownloaded int
}

// Downloader drives a download pass: resolve the tree, register replays,
// then fetch and store each one not already stored.
type Downloader struct {
	client   CatalogClient
	storage  Storage
	tracker  Tracker
	crawler  *Crawler
	progress ProgressReporter
	logger   Logger
}

// NewDownloader creates a Downloader. progress and logger may be nil.
func NewDownloader(client CatalogClient, storage Storage, tracker Tracker, crawler *Crawler, progress ProgressReporter, logger Logger) *Downloader {
	if progress == nil {
		progress = nopReporter{}
	}
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Downloader{
		client:   client,
		storage:  storage,
		tracker:  tracker,
		crawler:  crawler,
		progress: progress,
		logger:   logger,
	}
}

// DownloadGroup runs one pass over the group rooted at rootID. Per-item
// failures are recorded and the pass continues. The returned error is
// non-nil only when the pass could not start, or when ctx was cancelled,
// in which case the partial result is returned alongside ctx.Err().
func (d *Downloader) DownloadGroup(ctx context.Context, rootID string, opts DownloadOptions) (*DownloadResult, error) {
	tree, err := d.crawler.LoadOrBuild(ctx, rootID, !opts.NoCache)
	if err != nil {
		return nil, fmt.Errorf("resolving group tree: %w", err)
	}

	items := Flatten(tree)
	if len(opts.OnlyIDs) > 0 {
		items = filterItems(items, opts.OnlyIDs)
		d.logger.Info("restricting pass to selected replays", "requested", len(opts.OnlyIDs), "matched", len(items))
	} else {
		if err := d.register(ctx, tree, items); err != nil {
			return nil, err
		}
	}

	result := &DownloadResult{
		GroupID:     tree.ID,
		GroupName:   tree.Name,
		Total:       len(items),
		StorageKeys: []string{},
		FailedItems: []FailedItem{},
	}

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			d.logger.Warn("download pass interrupted", "processed", i, "total", len(items))
			return result, err
		}
		if err := d.processItem(ctx, i+1, tree, item, opts, result); err != nil {
			d.logger.Warn("download pass interrupted", "processed", i, "total", len(items))
			return result, err
		}
	}

	d.logger.Info("download pass finished",
		"group_id", tree.ID,
		"total", result.Total,
		"successful", result.Successful,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"bytes", result.TotalBytes,
	)
	return result, nil
}

// RetryFailed re-runs the pass for the replays listed in a previous result.
func (d *Downloader) RetryFailed(ctx context.Context, rootID string, failed []FailedItem, opts DownloadOptions) (*DownloadResult, error) {
	ids := make([]string, 0, len(failed))
	for _, f := range failed {
		ids = append(ids, f.ReplayID)
	}
	if len(ids) == 0 {
		return &DownloadResult{GroupID: rootID, StorageKeys: []string{}, FailedItems: []FailedItem{}}, nil
	}
	opts.OnlyIDs = ids
	return d.DownloadGroup(ctx, rootID, opts)
}

// Plan resolves the tree (from cache, or by crawling and caching) and counts
// what is already downloaded. Nothing is registered and storage is untouched.
func (d *Downloader) Plan(ctx context.Context, rootID string, opts DownloadOptions) (*Plan, error) {
	tree, err := d.crawler.LoadOrBuild(ctx, rootID, !opts.NoCache)
	if err != nil {
		return nil, fmt.Errorf("resolving group tree: %w", err)
	}
	items := Flatten(tree)
	if len(opts.OnlyIDs) > 0 {
		items = filterItems(items, opts.OnlyIDs)
	}

	plan := &Plan{
		GroupID:   tree.ID,
		GroupName: tree.Name,
		Groups:    countGroups(tree),
		Total:     len(items),
	}
	for _, item := range items {
		done, err := d.tracker.IsDownloaded(ctx, item.Replay.ID)
		if err != nil {
			return nil, fmt.Errorf("checking replay %s: %w", item.Replay.ID, err)
		}
		if done {
			plan.AlreadyDownloaded++
		}
	}
	return plan, nil
}

func (d *Downloader) register(ctx context.Context, tree *GroupTree, items []FlatReplay) error {
	if err := d.tracker.RegisterGroup(ctx, tree.ID, tree.Name, len(items)); err != nil {
		return fmt.Errorf("registering group %s: %w", tree.ID, err)
	}

	added, existing := 0, 0
	for _, item := range items {
		isNew, err := d.tracker.AddReplay(ctx, item.Replay)
		if err != nil {
			return fmt.Errorf("registering replay %s: %w", item.Replay.ID, err)
		}
		if isNew {
			added++
		} else {
			existing++
		}
	}
	d.logger.Info("registered replays", "group_id", tree.ID, "new", added, "existing", existing)
	return nil
}

// processItem handles one replay. It returns an error only when ctx was
// cancelled mid-item; such an item is left as it was in the tracker.
func (d *Downloader) processItem(ctx context.Context, current int, tree *GroupTree, item FlatReplay, opts DownloadOptions, result *DownloadResult) error {
	id := item.Replay.ID
	components := append(append([]string{}, opts.PathPrefix...), BuildPathComponents(item.GroupPath, tree.Name, !opts.ExcludeRoot)...)
	key := d.storage.Key(id, components)

	report := func(status ProgressStatus, msg string, err error) {
		d.progress.Report(Progress{
			Current:    current,
			Total:      result.Total,
			ReplayID:   id,
			Status:     status,
			Message:    msg,
			StorageKey: key,
			Error:      err,
		})
	}
	fail := func(err error) error {
		if isCancelled(ctx, err) {
			return ctx.Err()
		}
		msg := err.Error()
		if markErr := d.tracker.MarkFailed(ctx, id, msg); markErr != nil {
			d.logger.Error("failed to record failure", "replay_id", id, "error", markErr)
		}
		d.logger.Warn("replay failed", "replay_id", id, "error", msg)
		result.Failed++
		result.FailedItems = append(result.FailedItems, FailedItem{ReplayID: id, Error: msg})
		report(StatusFailed, msg, err)
		return nil
	}

	downloaded, err := d.tracker.IsDownloaded(ctx, id)
	if err != nil {
		return fail(fmt.Errorf("checking tracker: %w", err))
	}

	if downloaded {
		exists, err := d.storage.Exists(ctx, id, components)
		if err != nil {
			return fail(fmt.Errorf("checking storage: %w", err))
		}
		if !exists {
			d.logger.Warn("tracked replay missing from storage", "replay_id", id, "key", key)
			return fail(errors.New(MissingFromStorageMessage))
		}
		result.Skipped++
		report(StatusSkipped, "already downloaded", nil)
		return nil
	}

	exists, err := d.storage.Exists(ctx, id, components)
	if err != nil {
		return fail(fmt.Errorf("checking storage: %w", err))
	}
	if exists {
		size, err := d.storage.Size(ctx, id, components)
		if err != nil {
			return fail(fmt.Errorf("reading stored size: %w", err))
		}
		if err := d.tracker.MarkDownloaded(ctx, id, key, size); err != nil {
			return fail(fmt.Errorf("recording existing object: %w", err))
		}
		d.logger.Info("repaired tracker from storage", "replay_id", id, "key", key, "size", size)
		result.Skipped++
		report(StatusSkipped, "found in storage", nil)
		return nil
	}

	report(StatusDownloading, "", nil)
	data, err := d.client.DownloadReplay(ctx, id)
	if err != nil {
		return fail(fmt.Errorf("downloading: %w", err))
	}

	report(StatusSaving, "", nil)
	saved, err := d.storage.Save(ctx, id, data, components, NewReplayMetadata(item.Replay, tree.ID))
	if err != nil {
		return fail(fmt.Errorf("saving: %w", err))
	}

	if err := d.tracker.MarkDownloaded(ctx, id, saved.Key, saved.Size); err != nil {
		return fail(fmt.Errorf("recording download: %w", err))
	}

	result.Successful++
	result.TotalBytes += saved.Size
	result.StorageKeys = append(result.StorageKeys, saved.Key)
	report(StatusComplete, saved.Location, nil)
	return nil
}

func isCancelled(ctx context.Context, err error) bool {
	if ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func filterItems(items []FlatReplay, ids []string) []FlatReplay {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []FlatReplay
	for _, item := range items {
		if want[item.Replay.ID] {
			out = append(out, item)
		}
	}
	return out
}

func countGroups(tree *GroupTree) int {
	n := 1
	for _, c := range tree.Children {
		n += countGroups(c)
	}
	return n
}
