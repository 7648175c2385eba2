package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"impulse-go/internal/app"
	"impulse-go/internal/collection"
	"impulse-go/internal/config"
	"impulse-go/internal/seasons"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var configPath string

// loadConfig reads the config file when it exists and falls back to
// defaults otherwise, then applies the environment and .env secrets.
func loadConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}
	path := configPath
	if path == "" {
		path = defaults["config_path"]
	}

	var cfg *config.Config
	if _, err := os.Stat(path); err == nil {
		cfg, err = config.ReadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if cfg.BaseDir == "" {
			cfg.BaseDir = defaults["base_dir"]
		}
	} else {
		cfg = config.NewConfig(defaults["base_dir"])
	}
	cfg.ApplyDefaults()

	if err := cfg.ApplyEnv(defaults["env_file"]); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newApp creates an ImpulseApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "download", "stats").
func newApp(ctx context.Context, cfg *config.Config, operation string) (*app.ImpulseApp, error) {
	a, err := app.NewImpulseApp(ctx, cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// openApp loads the config and creates an ImpulseApp for read-only commands.
func openApp(ctx context.Context, operation string) (*app.ImpulseApp, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg, operation)
}

var rootCmd = &cobra.Command{
	Use:          "impulse",
	Short:        "Collect replay files from ballchasing.com",
	SilenceUsage: true,
}

// download command
var downloadCmd = &cobra.Command{
	Use:   "download [GROUP_ID]",
	Short: "Download every replay of a group tree",
	Long: `Download every replay of a ballchasing group, including all nested
subgroups. Replays already in storage are skipped, so the command can be
rerun safely after an interruption.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDownload,
}

func runDownload(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	seasonKey, _ := flags.GetString("season")
	storageType, _ := flags.GetString("storage")
	outputDir, _ := flags.GetString("output")
	prefix, _ := flags.GetString("prefix")
	excludeRoot, _ := flags.GetBool("exclude-root")
	noCache, _ := flags.GetBool("no-cache")
	dryRun, _ := flags.GetBool("dry-run")
	yes, _ := flags.GetBool("yes")
	retryFailed, _ := flags.GetBool("retry-failed")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if storageType != "" {
		cfg.Storage.Type = storageType
	}
	if outputDir != "" {
		cfg.Storage.LocalDir = outputDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	req := app.DownloadRequest{
		RetryFailed: retryFailed,
		Options: collection.DownloadOptions{
			ExcludeRoot: excludeRoot,
			NoCache:     noCache,
			PathPrefix:  collection.SplitPrefix(prefix),
		},
	}

	var season *seasons.Season
	switch {
	case seasonKey != "" && len(args) > 0:
		return errors.New("pass either GROUP_ID or --season, not both")
	case seasonKey != "":
		s, err := seasons.Lookup(seasonKey)
		if err != nil {
			return err
		}
		season = &s
		req.GroupID = s.GroupID
		req.Label = s.Key
		if len(req.Options.PathPrefix) == 0 {
			req.Options.PathPrefix = s.DefaultPrefix()
		}
	case len(args) > 0:
		req.GroupID = args[0]
	default:
		return errors.New("a GROUP_ID or --season is required")
	}
	if len(req.Options.PathPrefix) == 0 && cfg.Storage.Type == "s3" && cfg.Storage.S3Prefix != "" {
		req.Options.PathPrefix = collection.SplitPrefix(cfg.Storage.S3Prefix)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	operation := "download"
	if dryRun {
		operation = "plan"
	}
	a, err := newApp(ctx, cfg, operation)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	if season != nil {
		fmt.Fprintf(out, "Season:  %s (%s)\n", season.Name, season.Key)
		fmt.Fprintf(out, "Expected about %s replays, %s\n",
			humanize.Comma(int64(season.EstimatedCount)), humanize.Bytes(uint64(season.EstimatedBytes())))
	}
	fmt.Fprintf(out, "Storage: %s\n", describeStorage(cfg.Storage))
	if len(req.Options.PathPrefix) > 0 {
		fmt.Fprintf(out, "Prefix:  %s\n", strings.Join(req.Options.PathPrefix, "/"))
	}

	if dryRun || !retryFailed {
		plan, err := a.Plan(ctx, req.GroupID, req.Options)
		if err != nil {
			return withHint(fmt.Errorf("planning download: %w", err))
		}
		fmt.Fprintln(out)
		app.WritePlan(out, plan, seasons.AvgReplayBytes)
		if dryRun {
			return nil
		}
		// The plan just crawled the tree; reuse it.
		req.Options.NoCache = false
	}

	if !yes {
		ok, err := confirm("Proceed with download?")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	report, err := a.Download(ctx, req)
	if report != nil {
		app.WriteSummary(out, report)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(out, "Interrupted. Run the same command again to resume.")
			return errors.New("download interrupted")
		}
		return withHint(fmt.Errorf("download failed: %w", err))
	}
	return nil
}

// withHint appends the operator hint for catalog failures.
func withHint(err error) error {
	if hint := app.RemoteHint(err); hint != "" {
		return fmt.Errorf("%w (%s)", err, hint)
	}
	return err
}

func describeStorage(s config.StorageConfig) string {
	switch s.Type {
	case "local":
		return "local " + s.LocalDir
	case "s3":
		return fmt.Sprintf("s3://%s (%s)", s.S3Bucket, s.S3Region)
	default:
		return s.Type
	}
}

// confirm asks a yes/no question on the terminal. Without a terminal the
// caller must pass --yes.
func confirm(question string) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, errors.New("stdin is not a terminal; pass --yes to run non-interactively")
	}
	fmt.Printf("%s [y/N] ", question)
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("reading answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// seasons command
var seasonsCmd = &cobra.Command{
	Use:   "seasons",
	Short: "Known RLCS seasons",
}

var seasonsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known seasons",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		var total int64
		for _, s := range seasons.All() {
			active := ""
			if s.Active {
				active = "  [active]"
			}
			fmt.Fprintf(out, "%-6s  %-24s  %7s replays  %8s%s\n",
				s.Key, s.Name, humanize.Comma(int64(s.EstimatedCount)), humanize.Bytes(uint64(s.EstimatedBytes())), active)
			total += s.EstimatedBytes()
		}
		fmt.Fprintf(out, "\nEstimated total: %s (as of %s)\n", humanize.Bytes(uint64(total)), seasons.LastUpdated)
	},
}

var seasonsInfoCmd = &cobra.Command{
	Use:   "info KEY",
	Short: "Show details of a season",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := seasons.Lookup(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Key:       %s\n", s.Key)
		fmt.Fprintf(out, "Name:      %s\n", s.Name)
		fmt.Fprintf(out, "Group ID:  %s\n", s.GroupID)
		fmt.Fprintf(out, "Replays:   about %s\n", humanize.Comma(int64(s.EstimatedCount)))
		fmt.Fprintf(out, "Size:      about %s\n", humanize.Bytes(uint64(s.EstimatedBytes())))
		fmt.Fprintf(out, "Prefix:    %s\n", strings.Join(s.DefaultPrefix(), "/"))
		fmt.Fprintf(out, "Active:    %t\n", s.Active)
		return nil
	},
}

// stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show tracker and storage statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix, _ := cmd.Flags().GetString("prefix")

		a, err := openApp(cmd.Context(), "stats")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Stats(cmd.Context(), strings.Trim(prefix, "/"))
		if err != nil {
			return err
		}
		app.WriteStats(cmd.OutOrStdout(), report)
		return nil
	},
}

// failed command
var failedCmd = &cobra.Command{
	Use:   "failed",
	Short: "List replays whose download failed",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := openApp(cmd.Context(), "failed")
		if err != nil {
			return err
		}
		defer a.Close()

		replays, err := a.FailedReplays(cmd.Context(), limit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(replays) == 0 {
			fmt.Fprintln(out, "No failed replays.")
			return nil
		}
		for _, r := range replays {
			fmt.Fprintf(out, "%s  %s\n", r.ReplayID, r.ErrorMessage.String)
		}
		fmt.Fprintf(out, "\n%d failed. Run download --retry-failed to try them again.\n", len(replays))
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View download run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := openApp(cmd.Context(), "history")
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.History(cmd.Context(), limit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(runs) == 0 {
			fmt.Fprintln(out, "No download runs recorded.")
			return nil
		}

		for _, r := range runs {
			duration := ""
			if r.FinishedAt.Valid {
				d := r.FinishedAt.Time.Sub(r.StartedAt)
				duration = d.Truncate(time.Second).String()
			}
			fmt.Fprintf(out, "%s  %-12s  %s  %-11s  %5d ok  %5d skipped  %5d failed  %s\n",
				r.ID[:min(8, len(r.ID))],
				r.Label,
				r.StartedAt.Format("2006-01-02 15:04:05"),
				r.Status,
				r.Successful,
				r.Skipped,
				r.Failed,
				duration,
			)
		}
		return nil
	},
}

// cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the group tree cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear GROUP_ID",
	Short: "Delete the cached tree of a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), "cache-clear")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ClearCache(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared cached tree for %s\n", args[0])
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the tracking database",
}

var dbBackupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Upload a snapshot of the tracking database to storage",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), "db-backup")
		if err != nil {
			return err
		}
		defer a.Close()

		key, err := a.BackupDatabase(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Database backed up to %s\n", key)
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		path := configPath
		if path == "" {
			path = defaults["config_path"]
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(path, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Configuration initialized at %s\n", path)
		fmt.Fprintf(out, "Base Dir: %s\n", cfg.BaseDir)
		fmt.Fprintf(out, "Set %s in the environment or in %s before downloading.\n", config.EnvAPIKey, defaults["env_file"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		apiKey := "(not set)"
		if cfg.APIKey != "" {
			apiKey = "(set)"
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Base Dir:   %s\n", cfg.BaseDir)
		fmt.Fprintf(out, "Log Dir:    %s\n", cfg.LogDir)
		fmt.Fprintf(out, "Cache Dir:  %s\n", cfg.CacheDir)
		fmt.Fprintf(out, "API:        %s (page size %d, timeout %ds)\n", cfg.API.BaseURL, cfg.API.PageSize, cfg.API.TimeoutSeconds)
		fmt.Fprintf(out, "API Key:    %s\n", apiKey)
		fmt.Fprintf(out, "Rate Limit: %g/s, %d/h\n", cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.RequestsPerHour)
		fmt.Fprintf(out, "Database:   %s %s\n", cfg.Database.Type, cfg.Database.Path)
		fmt.Fprintf(out, "Storage:    %s\n", describeStorage(cfg.Storage))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default $"+app.EnvConfigPath+" or ~/.config/impulse.toml)")

	// download
	rootCmd.AddCommand(downloadCmd)
	f := downloadCmd.Flags()
	f.String("season", "", "Download a known season instead of GROUP_ID (see seasons list)")
	f.String("storage", "", "Storage backend: local, s3 or memory")
	f.StringP("output", "o", "", "Local storage directory")
	f.String("prefix", "", "Path prefix for stored replays, e.g. replays/rlcs/2024")
	f.Bool("exclude-root", false, "Do not include the root group's name in storage paths")
	f.Bool("no-cache", false, "Crawl the group tree again instead of using the cache")
	f.Bool("dry-run", false, "Show what would be downloaded and exit")
	f.BoolP("yes", "y", false, "Do not ask for confirmation")
	f.Bool("retry-failed", false, "Only retry replays whose last download failed")

	// seasons
	seasonsCmd.AddCommand(seasonsListCmd)
	seasonsCmd.AddCommand(seasonsInfoCmd)
	rootCmd.AddCommand(seasonsCmd)

	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().String("prefix", "", "Limit storage statistics to this prefix")

	rootCmd.AddCommand(failedCmd)
	failedCmd.Flags().IntP("limit", "n", 0, "Maximum number of replays to show (0 for all)")

	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to show")

	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)

	dbCmd.AddCommand(dbBackupCmd)
	rootCmd.AddCommand(dbCmd)

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	rootCmd.AddCommand(configCmd)
}
