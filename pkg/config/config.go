package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the harvester
type Config struct {
	// Data directory layout
	Data DataConfig `yaml:"data" json:"data"`

	// Scrape pipeline settings
	Scrape ScrapeConfig `yaml:"scrape" json:"scrape"`

	// HTTP service settings
	Server ServerConfig `yaml:"server" json:"server"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// DataConfig holds the data root under which media, sidecars and the
// SQLite stores live
type DataConfig struct {
	RootDirectory string `yaml:"root_directory" json:"root_directory"`
}

// ScrapeConfig holds the ingestion pipeline configuration. Interval, wait
// bounds, download budget and target account are only the seed values: once
// the settings store exists they are read from there so they can be changed
// at runtime.
type ScrapeConfig struct {
	IntervalMinutes    int           `yaml:"interval_minutes" json:"interval_minutes"`
	MaxNewVideosPerRun int           `yaml:"max_new_videos_per_run" json:"max_new_videos_per_run"`
	WaitMinSeconds     float64       `yaml:"wait_min_seconds" json:"wait_min_seconds"`
	WaitMaxSeconds     float64       `yaml:"wait_max_seconds" json:"wait_max_seconds"`
	TargetAccount      string        `yaml:"target_account" json:"target_account"`
	FeedTimeout        time.Duration `yaml:"feed_timeout" json:"feed_timeout"`
	PostTimeout        time.Duration `yaml:"post_timeout" json:"post_timeout"`
	DownloadTimeout    time.Duration `yaml:"download_timeout" json:"download_timeout"`
	RunTimeout         time.Duration `yaml:"run_timeout" json:"run_timeout"`
	PageLoadsPerMinute int           `yaml:"page_loads_per_minute" json:"page_loads_per_minute"`
	UserAgent          string        `yaml:"user_agent" json:"user_agent"`
}

// ServerConfig holds the HTTP listener configuration
type ServerConfig struct {
	Address string `yaml:"address" json:"address"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Data: DataConfig{
			RootDirectory: "./data",
		},
		Scrape: ScrapeConfig{
			IntervalMinutes:    30,
			MaxNewVideosPerRun: 4,
			WaitMinSeconds:     60,
			WaitMaxSeconds:     120,
			TargetAccount:      "",
			FeedTimeout:        60 * time.Second,
			PostTimeout:        60 * time.Second,
			DownloadTimeout:    120 * time.Second,
			RunTimeout:         30 * time.Minute,
			PageLoadsPerMinute: 20,
			UserAgent:          "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120 Safari/537.36",
		},
		Server: ServerConfig{
			Address: ":8080",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromEnv loads configuration from environment variables. The bare keys
// (SCRAPE_INTERVAL, TARGET_ACCOUNT, ...) match what the settings store seeds
// from, so a single .env drives both.
func (c *Config) LoadFromEnv() error {
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Data.RootDirectory = dataDir
	}
	if account := os.Getenv("TARGET_ACCOUNT"); account != "" {
		c.Scrape.TargetAccount = account
	}
	if v := os.Getenv("SCRAPE_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Scrape.IntervalMinutes = n
		}
	}
	if v := os.Getenv("MAX_NEW_VIDEOS_PER_RUN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Scrape.MaxNewVideosPerRun = n
		}
	}
	if v := os.Getenv("WAIT_MIN_SECONDS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			c.Scrape.WaitMinSeconds = f
		}
	}
	if v := os.Getenv("WAIT_MAX_SECONDS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			c.Scrape.WaitMaxSeconds = f
		}
	}
	if addr := os.Getenv("VIDHARVEST_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = strings.ToLower(logLevel)
	}
	if logFile := os.Getenv("LOG_FILE"); logFile != "" {
		c.Logging.File = logFile
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".vidharvest.yaml",
		".vidharvest.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "vidharvest", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "vidharvest", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Data.RootDirectory == "" {
		errs = append(errs, errors.New("data root directory is required"))
	}
	if c.Scrape.MaxNewVideosPerRun <= 0 {
		errs = append(errs, errors.New("max new videos per run must be positive"))
	}
	if c.Scrape.WaitMinSeconds < 0 {
		errs = append(errs, errors.New("wait min seconds cannot be negative"))
	}
	if c.Scrape.WaitMaxSeconds < c.Scrape.WaitMinSeconds {
		errs = append(errs, errors.New("wait max seconds must be >= wait min seconds"))
	}
	if c.Scrape.FeedTimeout <= 0 {
		errs = append(errs, errors.New("feed timeout must be positive"))
	}
	if c.Scrape.PostTimeout <= 0 {
		errs = append(errs, errors.New("post timeout must be positive"))
	}
	if c.Scrape.DownloadTimeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}
	if c.Scrape.RunTimeout < 0 {
		errs = append(errs, errors.New("run timeout cannot be negative"))
	}
	if c.Scrape.PageLoadsPerMinute <= 0 {
		errs = append(errs, errors.New("page loads per minute must be positive"))
	}
	if c.Server.Address == "" {
		errs = append(errs, errors.New("server address is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: Environment variables > .env file > Config file > Defaults
func Load(configPath string) (*Config, error) {
	// Try to load a .env file (don't fail if it doesn't exist)
	_ = godotenv.Load(".env")

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Override with environment variables (includes values from .env)
	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
