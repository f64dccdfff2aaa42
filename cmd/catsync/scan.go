package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sddi-tools/catsync/internal/ckan"
	"github.com/sddi-tools/catsync/internal/config"
	"github.com/sddi-tools/catsync/internal/history"
	"github.com/sddi-tools/catsync/internal/logging"
	"github.com/sddi-tools/catsync/internal/observability"
	"github.com/sddi-tools/catsync/internal/scan"
	"github.com/sddi-tools/catsync/internal/timeutil"
	"github.com/sddi-tools/catsync/internal/tracking"
)

var scanCommand = &cobra.Command{
	Use:   "scan",
	Short: "Scan the monitored directory for files the catalog is missing or behind on",
	Long: `Walks the monitored directory, resolves each file against the catalog and
reports files that are absent from the catalog or newer locally.

Configuration can be loaded from a JSON file using --config. Command-line arguments override config file values.`,
	RunE: runScanCmd,
}

var (
	scanConfigPath   string
	scanCatalogURL   string
	scanAPIKey       string
	scanDir          string
	scanAllowedExts  []string
	scanExcludedExts []string
	scanExcludeDirs  []string
	scanTrackingFile string
	scanTimezone     string
	scanTolerance    int
	scanForce        bool
	scanPrune        bool
	scanWorkers      int
	scanTimeout      int
	scanHistoryDSN   string
	scanLogLevel     string
	scanLogFormat    string
)

func init() {
	scanCommand.Flags().StringVar(&scanConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")

	scanCommand.Flags().StringVar(&scanCatalogURL, "catalog-url", "", "Catalog API base URL")
	scanCommand.Flags().StringVarP(&scanDir, "dir", "d", "", "Directory to monitor")
	scanCommand.Flags().StringSliceVar(&scanAllowedExts, "allowed-extensions", nil, "Extensions to check (\"*\" admits all)")
	scanCommand.Flags().StringSliceVar(&scanExcludedExts, "excluded-extensions", nil, "Extensions to skip")
	scanCommand.Flags().StringSliceVar(&scanExcludeDirs, "exclude-dirs", nil, "Directory names to skip during the walk")
	scanCommand.Flags().StringVar(&scanTrackingFile, "tracking-file", "", "Path of the tracking document")
	scanCommand.Flags().StringVar(&scanTimezone, "timezone", "", "IANA timezone for report timestamps")
	scanCommand.Flags().IntVar(&scanTolerance, "tolerance", 0, "Timestamp comparison tolerance in seconds")
	scanCommand.Flags().BoolVarP(&scanForce, "force", "f", false, "Check every file, ignoring the tracking document")
	scanCommand.Flags().BoolVar(&scanPrune, "prune", false, "Drop tracking entries for files no longer on disk")
	scanCommand.Flags().IntVar(&scanWorkers, "workers", 0, "Parallel catalog lookups")
	scanCommand.Flags().IntVar(&scanTimeout, "timeout", 0, "Per-request catalog timeout in seconds")
	scanCommand.Flags().StringVar(&scanHistoryDSN, "history-dsn", "", "PostgreSQL DSN for scan history (optional, defaults to CATSYNC_HISTORY_DSN env var)")
	scanCommand.Flags().StringVar(&scanLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	scanCommand.Flags().StringVar(&scanLogFormat, "log-format", "", "Log format (json, console)")

	// API key can be passed as a flag, or read from env var CATSYNC_API_KEY
	scanCommand.Flags().StringVar(&scanAPIKey, "api-key", "", "Catalog API key (optional, defaults to CATSYNC_API_KEY env var)")

	rootCmd.AddCommand(scanCommand)
}

// loadScanConfig merges config file, CLI flags and defaults, in ascending
// priority of defaults < file < flags.
func loadScanConfig(cmd *cobra.Command) (config.Config, error) {
	var cfg config.Config
	if scanConfigPath != "" {
		loaded, err := config.LoadConfig(scanConfigPath)
		if err != nil {
			return cfg, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loaded
	}

	// Only override if the flag was explicitly set
	if cmd.Flags().Changed("catalog-url") {
		cfg.CatalogURL = scanCatalogURL
	}
	if cmd.Flags().Changed("api-key") {
		cfg.APIKey = scanAPIKey
	}
	if cmd.Flags().Changed("dir") {
		cfg.MonitorDir = scanDir
	}
	if cmd.Flags().Changed("allowed-extensions") {
		cfg.AllowedExtensions = scanAllowedExts
	}
	if cmd.Flags().Changed("excluded-extensions") {
		cfg.ExcludedExtensions = scanExcludedExts
	}
	if cmd.Flags().Changed("exclude-dirs") {
		cfg.ExcludeDirs = scanExcludeDirs
	}
	if cmd.Flags().Changed("tracking-file") {
		cfg.TrackingFile = scanTrackingFile
	}
	if cmd.Flags().Changed("timezone") {
		cfg.DisplayTimezone = scanTimezone
	}
	if cmd.Flags().Changed("tolerance") {
		cfg.ToleranceSeconds = scanTolerance
	}
	if cmd.Flags().Changed("force") {
		cfg.ForceCheck = scanForce
	}
	if cmd.Flags().Changed("prune") {
		cfg.Prune = scanPrune
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = scanWorkers
	}
	if cmd.Flags().Changed("timeout") {
		cfg.TimeoutSeconds = scanTimeout
	}
	if cmd.Flags().Changed("history-dsn") {
		cfg.HistoryDSN = scanHistoryDSN
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = scanLogLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.LogFormat = scanLogFormat
	}

	cfg = cfg.MergeWithDefaults(config.Defaults())

	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("CATSYNC_API_KEY")
	}
	if cfg.HistoryDSN == "" {
		cfg.HistoryDSN = os.Getenv("CATSYNC_HISTORY_DSN")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func runScanCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadScanConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.CatalogURL == "" {
		return fmt.Errorf("config error: catalog_url is required")
	}

	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		return err
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := ckan.New(cfg.CatalogURL, &ckan.Options{APIKey: cfg.APIKey, Timeout: cfg.Timeout()})
	if err != nil {
		return err
	}

	norm, err := timeutil.NewNormalizer(cfg.DisplayTimezone)
	if err != nil {
		return fmt.Errorf("config error: display_timezone: %w", err)
	}

	scanner, err := scan.New(client, tracking.NewStore(cfg.TrackingFile), scan.Options{
		Root:               cfg.MonitorDir,
		AllowedExtensions:  cfg.AllowedExtensions,
		ExcludedExtensions: cfg.ExcludedExtensions,
		ExcludeDirs:        cfg.ExcludeDirs,
		Force:              cfg.ForceCheck,
		Prune:              cfg.Prune,
		Workers:            cfg.Workers,
		Tolerance:          cfg.Tolerance(),
	})
	if err != nil {
		return err
	}

	report, runErr := scanner.Run(ctx)
	if report != nil {
		observability.NewPrinter(os.Stdout, norm).PrintReport(report)
		recordHistory(cfg.HistoryDSN, report)
	}
	return runErr
}

// recordHistory writes the report to the history database when one is
// configured. Failures are logged and swallowed; history is best-effort.
func recordHistory(dsn string, report *scan.Report) {
	if dsn == "" {
		return
	}
	ctx := context.Background()
	store, err := history.Connect(ctx, dsn)
	if err != nil {
		logging.L().Warn("history database unavailable", logging.Err(err))
		return
	}
	defer store.Close()
	if err := store.RecordRun(ctx, report); err != nil {
		logging.L().Warn("recording scan history failed", logging.Err(err))
	}
}
