// Package config provides configuration loading and structs for the Sashikomi server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	DataSource DataSourceConfig `yaml:"datasource"`
	Convert    ConvertConfig    `yaml:"convert"`
	Watch      WatchConfig      `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the database and stored binaries.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	ArtifactsDir string `yaml:"artifacts_dir"`
}

// DataSourceConfig describes the external tabular data source workbook.
type DataSourceConfig struct {
	WorkbookPath      string `yaml:"workbook_path"`
	Sheet             string `yaml:"sheet"`
	KeyColumn         string `yaml:"key_column"`
	StatusColumn      string `yaml:"status_column"`
	UnprocessedStatus string `yaml:"unprocessed_status"`
	ProcessedStatus   string `yaml:"processed_status"`
}

// ConvertConfig holds PDF conversion service settings. PrimaryURL points at
// the asynchronous job-based service; SecondaryURL, when set, enables the
// synchronous self-hosted endpoint tried first on caller request.
type ConvertConfig struct {
	PrimaryURL      string `yaml:"primary_url"`
	PrimaryAPIKey   string `yaml:"primary_api_key"`
	SecondaryURL    string `yaml:"secondary_url"`
	PollIntervalMS  int    `yaml:"poll_interval_ms"`
	PollMaxAttempts int    `yaml:"poll_max_attempts"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
}

// WatchConfig holds template inbox watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.ArtifactsDir = expandPath(cfg.Storage.ArtifactsDir, configDir)
	cfg.DataSource.WorkbookPath = expandPath(cfg.DataSource.WorkbookPath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
