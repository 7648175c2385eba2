package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"impulse-go/internal/ballchasing"
	"impulse-go/internal/collection"
	"impulse-go/internal/config"
	"impulse-go/internal/database"
	"impulse-go/internal/model"
	"impulse-go/internal/ratelimit"
	"impulse-go/internal/storage"
	"impulse-go/internal/treecache"
)

// Storage prefixes for auxiliary artifacts.
const (
	LogsPrefix    = "logs"
	BackupsPrefix = "database-backups"
)

// rateStatusEvery is how often, in items, the console prints limiter usage.
const rateStatusEvery = 50

// ImpulseApp is the application layer between the CLI and the collection
// engine. It constructs all dependencies from config, exposes high-level
// operations, and manages the DB lifecycle on Close.
type ImpulseApp struct {
	cfg        *config.Config
	db         *database.SQLiteDatabase
	storage    collection.Storage
	cache      *treecache.FileCache
	limiter    *ratelimit.Limiter
	catalog    collection.CatalogClient
	downloader *collection.Downloader
	logger     *slog.Logger
	out        io.Writer
	clock      collection.Clock
	op         *Operation
	logFile    *os.File
}

type appOptions struct {
	out     io.Writer
	echo    io.Writer
	catalog collection.CatalogClient
	storage collection.Storage
	clock   collection.Clock
	ids     collection.IDGenerator
	pause   func(ctx context.Context, d time.Duration) error
}

// Option customizes NewImpulseApp.
type Option func(*appOptions)

// WithOutput sets where progress and summaries are printed (default stdout).
func WithOutput(w io.Writer) Option { return func(o *appOptions) { o.out = w } }

// WithLogEcho sets where warnings are mirrored besides the log file
// (default stderr). nil disables mirroring.
func WithLogEcho(w io.Writer) Option { return func(o *appOptions) { o.echo = w } }

// WithCatalog replaces the remote catalog client.
func WithCatalog(c collection.CatalogClient) Option { return func(o *appOptions) { o.catalog = c } }

// WithStorage replaces the storage backend built from config.
func WithStorage(s collection.Storage) Option { return func(o *appOptions) { o.storage = s } }

// WithClock replaces the time source.
func WithClock(c collection.Clock) Option { return func(o *appOptions) { o.clock = c } }

// WithIDGenerator replaces the run id generator.
func WithIDGenerator(g collection.IDGenerator) Option { return func(o *appOptions) { o.ids = g } }

// WithCrawlPause replaces the delay between crawled nodes.
func WithCrawlPause(pause func(ctx context.Context, d time.Duration) error) Option {
	return func(o *appOptions) { o.pause = pause }
}

// NewImpulseApp creates a fully wired ImpulseApp from the given config.
// operation identifies the CLI command being run (e.g. "download", "stats").
// The remote client is only built when an API key is configured; operations
// that need it fail with a ConfigurationError otherwise.
// The caller must call Close when done.
func NewImpulseApp(ctx context.Context, cfg *config.Config, operation string, opts ...Option) (*ImpulseApp, error) {
	o := appOptions{
		out:   os.Stdout,
		echo:  os.Stderr,
		clock: collection.RealClock{},
		ids:   collection.UUIDGenerator{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	op := NewOperation(o.ids.New(), operation)
	logger, logFile, err := newLogger(cfg.LogDir, op.ID, o.echo)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	adapter := &slogAdapter{l: logger}

	store := o.storage
	if store == nil {
		store, err = storage.NewStorageFromConfig(ctx, cfg.Storage)
		if err != nil {
			logFile.Close()
			return nil, fmt.Errorf("creating storage: %w", err)
		}
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database, o.clock)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if err := db.CheckMigrations(); err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	limiter := ratelimit.New(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.RequestsPerHour, ratelimit.WithLogger(adapter))

	catalog := o.catalog
	if catalog == nil && cfg.APIKey != "" {
		catalog = ballchasing.NewClient(cfg.APIKey, limiter,
			ballchasing.WithBaseURL(cfg.API.BaseURL),
			ballchasing.WithPageSize(cfg.API.PageSize),
			ballchasing.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.API.TimeoutSeconds) * time.Second}),
		)
	}

	cache := treecache.NewFileCache(cfg.CacheDir)
	crawler := collection.NewCrawler(catalog, cache, adapter)
	if o.pause != nil {
		crawler.SetPause(o.pause)
	}

	progress := &consoleProgress{out: o.out, every: rateStatusEvery, status: limiter.Status, perHour: cfg.RateLimit.RequestsPerHour}
	downloader := collection.NewDownloader(catalog, store, db, crawler, progress, adapter)

	logger.Info("starting", "operation", operation, "storage", cfg.Storage.Type, "database", db.Path())

	return &ImpulseApp{
		cfg:        cfg,
		db:         db,
		storage:    store,
		cache:      cache,
		limiter:    limiter,
		catalog:    catalog,
		downloader: downloader,
		logger:     logger,
		out:        o.out,
		clock:      o.clock,
		op:         op,
		logFile:    logFile,
	}, nil
}

// Operation returns the operation record of this invocation.
func (a *ImpulseApp) Operation() *Operation { return a.op }

func (a *ImpulseApp) requireCatalog() error {
	if a.catalog == nil {
		return &config.ConfigurationError{Field: config.EnvAPIKey, Reason: "API key is required"}
	}
	return nil
}

// persistOperation records the download run in the database.
func (a *ImpulseApp) persistOperation(ctx context.Context, groupID, label string) error {
	if a.op.Persisted() {
		return nil
	}
	if _, err := a.db.CreateRun(ctx, a.op.ID, groupID, label); err != nil {
		return fmt.Errorf("persisting download run: %w", err)
	}
	a.op.GroupID = groupID
	a.op.Label = label
	a.op.persisted = true
	return nil
}

// DownloadRequest describes one download pass.
type DownloadRequest struct {
	GroupID string
	// Label names the run in history and in the run log file; defaults to GroupID.
	Label   string
	Options collection.DownloadOptions
	// RetryFailed restricts the pass to replays the tracker lists as failed.
	RetryFailed bool
}

// DownloadReport is the outcome of Download, suitable for printing and
// for the JSON run log.
type DownloadReport struct {
	RunID         string                     `json:"run_id"`
	Label         string                     `json:"label"`
	GroupID       string                     `json:"group_id"`
	StorageType   string                     `json:"storage_type"`
	Status        string                     `json:"status"`
	StartedAt     time.Time                  `json:"started"`
	FinishedAt    time.Time                  `json:"finished"`
	Result        *collection.DownloadResult `json:"results"`
	StoragePrefix string                     `json:"storage_prefix"`
	Storage       *collection.StorageStats   `json:"storage_stats,omitempty"`
	Tracker       *collection.TrackerStats   `json:"tracker_stats,omitempty"`
	LogPath       string                     `json:"-"`
	LogKey        string                     `json:"-"`
}

// Duration is the wall time of the pass.
func (r *DownloadReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Download runs one download pass and records it as a download run.
// Per-item failures are part of the report, not an error. When ctx is
// cancelled the partial report is returned together with the context error.
func (a *ImpulseApp) Download(ctx context.Context, req DownloadRequest) (*DownloadReport, error) {
	if err := a.requireCatalog(); err != nil {
		return nil, err
	}
	if err := a.storage.ValidateSetup(ctx); err != nil {
		return nil, fmt.Errorf("validating storage: %w", err)
	}
	if req.Label == "" {
		req.Label = req.GroupID
	}
	if err := a.persistOperation(ctx, req.GroupID, req.Label); err != nil {
		return nil, err
	}

	started := a.clock.Now().UTC()
	a.logger.Info("download started", "group_id", req.GroupID, "label", req.Label, "retry_failed", req.RetryFailed)

	var (
		result *collection.DownloadResult
		runErr error
	)
	if req.RetryFailed {
		result, runErr = a.retryFailed(ctx, req)
	} else {
		result, runErr = a.downloader.DownloadGroup(ctx, req.GroupID, req.Options)
	}
	a.op.Status = runStatus(ctx, runErr)

	// Bookkeeping after an interrupt must still reach the database.
	bg := context.WithoutCancel(ctx)
	if err := a.db.FinishRun(bg, a.op.ID, a.op.Status, result, runErr); err != nil {
		a.logger.Error("failed to finish download run", "run_id", a.op.ID, "error", err)
	}
	if result == nil {
		return nil, runErr
	}

	report := &DownloadReport{
		RunID:         a.op.ID,
		Label:         req.Label,
		GroupID:       req.GroupID,
		StorageType:   a.cfg.Storage.Type,
		Status:        a.op.Status,
		StartedAt:     started,
		FinishedAt:    a.clock.Now().UTC(),
		Result:        result,
		StoragePrefix: statsPrefix(req.Options, result.GroupName),
	}

	if stats, err := a.storage.Stats(bg, report.StoragePrefix); err != nil {
		a.logger.Warn("could not compute storage stats", "prefix", report.StoragePrefix, "error", err)
	} else {
		report.Storage = stats
	}
	if stats, err := a.db.Stats(bg); err != nil {
		a.logger.Warn("could not compute tracker stats", "error", err)
	} else {
		report.Tracker = stats
	}
	if err := a.writeRunLog(bg, report); err != nil {
		a.logger.Warn("could not save run log", "error", err)
	}

	a.logger.Info("download finished", "status", report.Status,
		"successful", result.Successful, "skipped", result.Skipped, "failed", result.Failed)
	return report, runErr
}

func (a *ImpulseApp) retryFailed(ctx context.Context, req DownloadRequest) (*collection.DownloadResult, error) {
	rows, err := a.db.ListReplaysByStatus(ctx, model.StatusFailed, 0)
	if err != nil {
		return nil, err
	}
	failed := make([]collection.FailedItem, 0, len(rows))
	for _, r := range rows {
		failed = append(failed, collection.FailedItem{ReplayID: r.ReplayID, Error: r.ErrorMessage.String})
	}
	a.logger.Info("retrying failed replays", "count", len(failed))
	return a.downloader.RetryFailed(ctx, req.GroupID, failed, req.Options)
}

// runStatus maps the outcome of a pass to a download run status.
func runStatus(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return model.RunStatusSuccess
	case ctx.Err() != nil, errors.Is(err, context.Canceled):
		return model.RunStatusInterrupted
	default:
		return model.RunStatusError
	}
}

// statsPrefix is the storage folder a pass writes into: the path prefix
// when one is set, else the root group's folder. An unknown root (a retry
// pass with nothing to retry) counts everything.
func statsPrefix(opts collection.DownloadOptions, rootName string) string {
	if len(opts.PathPrefix) > 0 {
		return strings.Join(opts.PathPrefix, "/")
	}
	if opts.ExcludeRoot || rootName == "" {
		return ""
	}
	return collection.PathComponent(rootName)
}

// writeRunLog saves the report as download_log_<label>_<ts>.json in the log
// directory and uploads a copy to storage under logs/.
func (a *ImpulseApp) writeRunLog(ctx context.Context, report *DownloadReport) error {
	data, err := json.MarshalIndent(runLogEntry{
		DownloadReport:  report,
		DurationSeconds: report.Duration().Seconds(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding run log: %w", err)
	}

	name := fmt.Sprintf("download_log_%s_%s.json", collection.Sanitize(report.Label), report.StartedAt.Format("20060102_150405"))
	path := filepath.Join(a.cfg.LogDir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing run log: %w", err)
	}
	report.LogPath = path

	key := LogsPrefix + "/" + name
	if err := a.storage.PutFile(ctx, key, bytes.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("uploading run log: %w", err)
	}
	report.LogKey = key
	return nil
}

type runLogEntry struct {
	*DownloadReport
	DurationSeconds float64 `json:"duration_seconds"`
}

// Plan resolves the group tree and reports what a download pass would do.
func (a *ImpulseApp) Plan(ctx context.Context, groupID string, opts collection.DownloadOptions) (*collection.Plan, error) {
	if err := a.requireCatalog(); err != nil {
		return nil, err
	}
	return a.downloader.Plan(ctx, groupID, opts)
}

// StatsReport combines tracker, parse and storage statistics.
type StatsReport struct {
	Tracker       *collection.TrackerStats
	Parse         *database.ParseStats
	Storage       *collection.StorageStats
	StoragePrefix string
	Groups        []model.Group
}

// Stats gathers statistics; storage statistics are limited to prefix.
func (a *ImpulseApp) Stats(ctx context.Context, prefix string) (*StatsReport, error) {
	tracker, err := a.db.Stats(ctx)
	if err != nil {
		return nil, err
	}
	parse, err := a.db.ParseStats(ctx)
	if err != nil {
		return nil, err
	}
	store, err := a.storage.Stats(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("storage stats: %w", err)
	}
	groups, err := a.db.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	return &StatsReport{Tracker: tracker, Parse: parse, Storage: store, StoragePrefix: prefix, Groups: groups}, nil
}

// FailedReplays lists replays whose last attempt failed.
func (a *ImpulseApp) FailedReplays(ctx context.Context, limit int) ([]model.RawReplay, error) {
	return a.db.ListReplaysByStatus(ctx, model.StatusFailed, limit)
}

// History returns the most recent download runs.
func (a *ImpulseApp) History(ctx context.Context, limit int) ([]model.DownloadRun, error) {
	return a.db.ListRuns(ctx, limit)
}

// ClearCache deletes the cached tree of groupID so the next pass crawls again.
func (a *ImpulseApp) ClearCache(groupID string) error {
	if err := a.cache.Delete(groupID); err != nil {
		return err
	}
	a.logger.Info("cleared tree cache", "group_id", groupID)
	return nil
}

// RateLimitStatus reports the limiter's hourly window.
func (a *ImpulseApp) RateLimitStatus() ratelimit.Status {
	return a.limiter.Status()
}

// BackupDatabase snapshots the tracking database and uploads it to storage
// under database-backups/. It returns the storage key.
func (a *ImpulseApp) BackupDatabase(ctx context.Context) (string, error) {
	tmpDir, err := os.MkdirTemp("", "impulse-db-backup-*")
	if err != nil {
		return "", fmt.Errorf("creating temp dir for db backup: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	tmpPath := filepath.Join(tmpDir, "snapshot.db")
	if err := a.db.BackupTo(tmpPath); err != nil {
		return "", err
	}
	return a.uploadBackup(ctx, tmpPath)
}

func (a *ImpulseApp) uploadBackup(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening db backup for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat db backup: %w", err)
	}

	key := fmt.Sprintf("%s/%s_%s.db", BackupsPrefix, databaseStem(a.db.Path()), a.clock.Now().UTC().Format("20060102_150405"))
	if err := a.storage.PutFile(ctx, key, f, info.Size()); err != nil {
		return "", fmt.Errorf("uploading db backup: %w", err)
	}
	a.logger.Info("database backed up", "key", key, "size", info.Size())
	return key, nil
}

func databaseStem(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if stem == "" || strings.HasPrefix(stem, ":") {
		return "impulse"
	}
	return stem
}

// Close closes all resources. After a download run the database is first
// snapshotted and uploaded to storage; a failed upload is reported but the
// database is still closed.
func (a *ImpulseApp) Close() error {
	var firstErr error

	if a.op.Persisted() {
		if _, err := a.BackupDatabase(context.Background()); err != nil {
			firstErr = fmt.Errorf("backing up database: %w", err)
		}
	}

	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
