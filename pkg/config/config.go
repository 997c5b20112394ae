// Package config provides configuration loading and management for dicomlabeler.
// It handles loading configuration from YAML files, environment overrides and
// provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override values loaded from the YAML file
const (
	EnvAddr     = "DICOMLABELER_ADDR"
	EnvDataDir  = "DICOMLABELER_DATA_DIR"
	EnvTempDir  = "DICOMLABELER_TEMP_DIR"
	EnvLogLevel = "DICOMLABELER_LOG_LEVEL"
	EnvDemoURL  = "DICOMLABELER_DEMO_URL"
	EnvMaxBytes = "DICOMLABELER_MAX_ARCHIVE_BYTES"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Server parameters
	Server struct {
		// Addr is the listen address of the HTTP API
		Addr string `yaml:"addr"`

		// ShutdownTimeout bounds graceful shutdown
		ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	} `yaml:"server"`

	// Scratch storage parameters
	Storage struct {
		// DataDir holds expanded archives, one sub-directory per session
		DataDir string `yaml:"dataDir"`

		// TempZipDir holds downloaded archives while they are staged
		TempZipDir string `yaml:"tempZipDir"`
	} `yaml:"storage"`

	// Archive ingestion parameters
	Ingest struct {
		// MaxArchiveBytes is the largest archive accepted (upload or download)
		MaxArchiveBytes int64 `yaml:"maxArchiveBytes"`

		// MaxExtractedBytes bounds the total size of the files expanded
		// from one archive
		MaxExtractedBytes int64 `yaml:"maxExtractedBytes"`

		// DownloadTimeout bounds a remote archive download
		DownloadTimeout time.Duration `yaml:"downloadTimeout"`

		// DemoURL is fetched when the demo dataset is requested
		DemoURL string `yaml:"demoURL"`

		// SliceExtensions lists the file extensions recognized as slices
		SliceExtensions []string `yaml:"sliceExtensions"`
	} `yaml:"ingest"`

	// Processing parameters
	Processing struct {
		// NumCores specifies how many goroutines decode slice files
		NumCores int `yaml:"numCores"`
	} `yaml:"processing"`

	// Viewer parameters
	Viewer struct {
		// DefaultThreshold is the initial threshold slider position (0-100)
		DefaultThreshold float64 `yaml:"defaultThreshold"`

		// DisplayWidth is the width in pixels views are scaled to when
		// served; 0 keeps the native size
		DisplayWidth int `yaml:"displayWidth"`
	} `yaml:"viewer"`

	// Logging parameters
	Logging struct {
		// Level is one of debug, info, warn, error
		Level string `yaml:"level"`

		// Format is text or json
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Addr = ":8501"
	cfg.Server.ShutdownTimeout = 5 * time.Second

	cfg.Storage.DataDir = "./data"
	cfg.Storage.TempZipDir = "./temp"

	cfg.Ingest.MaxArchiveBytes = 100 * 1024 * 1024
	cfg.Ingest.MaxExtractedBytes = 1024 * 1024 * 1024
	cfg.Ingest.DownloadTimeout = 5 * time.Minute
	cfg.Ingest.DemoURL = "https://drive.google.com/file/d/1ESRZpJA92g8L4PqT2adCN3hseFbnw9Hg/view?usp=sharing"
	cfg.Ingest.SliceExtensions = []string{".dcm"}

	cfg.Processing.NumCores = runtime.NumCPU()

	cfg.Viewer.DefaultThreshold = 50
	cfg.Viewer.DisplayWidth = 400

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		return cfg, nil
	}

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnv overrides configuration values with the DICOMLABELER_*
// environment variables that are set
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvAddr); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv(EnvTempDir); v != "" {
		c.Storage.TempZipDir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvDemoURL); v != "" {
		c.Ingest.DemoURL = v
	}
	if v := os.Getenv(EnvMaxBytes); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvMaxBytes, err)
		}
		c.Ingest.MaxArchiveBytes = n
	}
	return c.Validate()
}

// Validate checks that values are usable
func (c *Config) Validate() error {
	if c.Ingest.MaxArchiveBytes <= 0 {
		return fmt.Errorf("ingest.maxArchiveBytes must be positive")
	}
	if c.Ingest.MaxExtractedBytes <= 0 {
		return fmt.Errorf("ingest.maxExtractedBytes must be positive")
	}
	if c.Viewer.DefaultThreshold < 0 || c.Viewer.DefaultThreshold > 100 {
		return fmt.Errorf("viewer.defaultThreshold must be within 0-100, got %g", c.Viewer.DefaultThreshold)
	}
	if c.Viewer.DisplayWidth < 0 {
		return fmt.Errorf("viewer.displayWidth must not be negative, got %d", c.Viewer.DisplayWidth)
	}
	if c.Storage.DataDir == "" || c.Storage.TempZipDir == "" {
		return fmt.Errorf("storage.dataDir and storage.tempZipDir are required")
	}
	if len(c.Ingest.SliceExtensions) == 0 {
		return fmt.Errorf("ingest.sliceExtensions must list at least one extension")
	}
	if c.Processing.NumCores <= 0 {
		c.Processing.NumCores = 1
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
