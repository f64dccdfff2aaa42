// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the single configuration value object constructed at startup and
// passed into the scanner and its collaborators. All fields are optional in
// the file; missing values fall back to defaults or CLI flags.
type Config struct {
	// Catalog
	CatalogURL string `json:"catalog_url,omitempty" validate:"omitempty,url"` // Catalog API base URL
	APIKey     string `json:"api_key,omitempty"`                              // Opaque API key header value

	// Monitoring
	MonitorDir         string   `json:"monitor_dir,omitempty"`         // Root directory to scan
	AllowedExtensions  []string `json:"allowed_extensions,omitempty"`  // Extension allow set; "*" admits all
	ExcludedExtensions []string `json:"excluded_extensions,omitempty"` // Extension exclusion set
	ExcludeDirs        []string `json:"exclude_dirs,omitempty"`        // Directory names skipped during the walk
	TrackingFile       string   `json:"tracking_file,omitempty"`       // Path of the tracking document

	// Comparison
	DisplayTimezone  string `json:"display_timezone,omitempty"`                   // IANA zone used for report rendering
	ToleranceSeconds int    `json:"tolerance_seconds,omitempty" validate:"gte=0"` // Timestamp comparison tolerance

	// Behavior
	ForceCheck     bool `json:"force_check,omitempty"`                      // Bypass the tracker filter entirely
	Prune          bool `json:"prune,omitempty"`                            // Drop tracking entries for deleted files
	Workers        int  `json:"workers,omitempty" validate:"gte=0"`         // Parallel file evaluations (0 = default)
	TimeoutSeconds int  `json:"timeout_seconds,omitempty" validate:"gte=0"` // Per-request catalog timeout

	// Import/export
	WorkbookPath string `json:"workbook_path,omitempty"` // Excel workbook for import/export
	SchemaConfig string `json:"schema_config,omitempty"` // Schema mapping configuration file

	// Persistence
	HistoryDSN string `json:"history_dsn,omitempty"` // Optional Postgres DSN for scan history

	// Logging
	LogLevel  string `json:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	LogFormat string `json:"log_format,omitempty" validate:"omitempty,oneof=json console"`
}

// Defaults returns the built-in configuration defaults, mirroring the values
// the original deployment used.
func Defaults() Config {
	return Config{
		AllowedExtensions:  []string{"*"},
		ExcludedExtensions: []string{".tmp", ".log", ".cache", ".bak", ".swp"},
		ExcludeDirs:        []string{"__pycache__", "schema_templates", "templates"},
		TrackingFile:       "file_tracking.json",
		DisplayTimezone:    "Europe/Berlin",
		ToleranceSeconds:   2,
		Workers:            4,
		TimeoutSeconds:     30,
		LogLevel:           "info",
		LogFormat:          "console",
	}
}

// LoadConfig loads configuration from a JSON file.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration is usable for a scan. A failure here
// is fatal: the run aborts before any file is touched.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	if c.MonitorDir == "" {
		return fmt.Errorf("config error: monitor_dir is required")
	}
	info, err := os.Stat(c.MonitorDir)
	if err != nil {
		return fmt.Errorf("config error: monitor_dir %s: %w", c.MonitorDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("config error: monitor_dir %s is not a directory", c.MonitorDir)
	}

	if c.DisplayTimezone != "" {
		if _, err := time.LoadLocation(c.DisplayTimezone); err != nil {
			return fmt.Errorf("config error: display_timezone: %w", err)
		}
	}

	return nil
}

// Tolerance returns the timestamp comparison tolerance as a duration.
func (c *Config) Tolerance() time.Duration {
	return time.Duration(c.ToleranceSeconds) * time.Second
}

// Timeout returns the per-request catalog timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// MergeWithDefaults returns a new Config with unset fields filled from
// defaults. Bool fields are not merged; CLI flags always win for those.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.CatalogURL == "" {
		result.CatalogURL = defaults.CatalogURL
	}
	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}
	if result.MonitorDir == "" {
		result.MonitorDir = defaults.MonitorDir
	}
	if result.AllowedExtensions == nil {
		result.AllowedExtensions = defaults.AllowedExtensions
	}
	if result.ExcludedExtensions == nil {
		result.ExcludedExtensions = defaults.ExcludedExtensions
	}
	if result.ExcludeDirs == nil {
		result.ExcludeDirs = defaults.ExcludeDirs
	}
	if result.TrackingFile == "" {
		result.TrackingFile = defaults.TrackingFile
	}
	if result.DisplayTimezone == "" {
		result.DisplayTimezone = defaults.DisplayTimezone
	}
	if result.ToleranceSeconds == 0 {
		result.ToleranceSeconds = defaults.ToleranceSeconds
	}
	if result.Workers == 0 {
		result.Workers = defaults.Workers
	}
	if result.TimeoutSeconds == 0 {
		result.TimeoutSeconds = defaults.TimeoutSeconds
	}
	if result.WorkbookPath == "" {
		result.WorkbookPath = defaults.WorkbookPath
	}
	if result.SchemaConfig == "" {
		result.SchemaConfig = defaults.SchemaConfig
	}
	if result.HistoryDSN == "" {
		result.HistoryDSN = defaults.HistoryDSN
	}
	if result.LogLevel == "" {
		result.LogLevel = defaults.LogLevel
	}
	if result.LogFormat == "" {
		result.LogFormat = defaults.LogFormat
	}

	return result
}
