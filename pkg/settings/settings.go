// Package settings is the runtime-modifiable key/value store. Values are
// seeded from the environment on first open and persisted in SQLite
// thereafter, so the browser UI can change them without a restart.
package settings

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/mattn/go-sqlite3"

	"vidharvest/pkg/logger"
)

// Recognized setting keys
const (
	KeyScrapeInterval = "SCRAPE_INTERVAL"
	KeyMaxNewVideos   = "MAX_NEW_VIDEOS_PER_RUN"
	KeyWaitMinSeconds = "WAIT_MIN_SECONDS"
	KeyWaitMaxSeconds = "WAIT_MAX_SECONDS"
	KeyTargetAccount  = "TARGET_ACCOUNT"
)

// Keys lists every recognized setting key
var Keys = []string{
	KeyScrapeInterval,
	KeyMaxNewVideos,
	KeyWaitMinSeconds,
	KeyWaitMaxSeconds,
	KeyTargetAccount,
}

// IsValidKey reports whether key is a recognized setting
func IsValidKey(key string) bool {
	for _, k := range Keys {
		if k == key {
			return true
		}
	}
	return false
}

// ErrNotFound is returned when a key has no value
var ErrNotFound = fmt.Errorf("setting not found")

// Store is a SQLite-backed settings store
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

// Open opens the settings database at path and seeds missing keys from the
// environment (falling back to built-in defaults).
func Open(path string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create settings directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("CREATE TABLE IF NOT EXISTS settings (key TEXT PRIMARY KEY, value TEXT);"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create settings schema: %w", err)
	}

	s := &Store{db: db, logger: log}
	if err := s.seedDefaults(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// seedDefaults inserts missing keys; existing values are never overwritten
func (s *Store) seedDefaults() error {
	defaults := map[string]string{
		KeyScrapeInterval: envOr(KeyScrapeInterval, "30"),
		KeyMaxNewVideos:   envOr(KeyMaxNewVideos, "4"),
		KeyWaitMinSeconds: envOr(KeyWaitMinSeconds, "60"),
		KeyWaitMaxSeconds: envOr(KeyWaitMaxSeconds, "120"),
		KeyTargetAccount:  envOr(KeyTargetAccount, ""),
	}
	for key, value := range defaults {
		if _, err := s.db.Exec("INSERT OR IGNORE INTO settings(key, value) VALUES (?, ?)", key, value); err != nil {
			return fmt.Errorf("failed to seed setting %s: %w", key, err)
		}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value for key, or ErrNotFound
func (s *Store) Get(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, nil
}

// Set stores the value for key, replacing any previous value
func (s *Store) Set(key, value string) error {
	if _, err := s.db.Exec("INSERT OR REPLACE INTO settings(key, value) VALUES (?, ?)", key, value); err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	s.logger.DebugWithFields("setting updated", map[string]interface{}{
		"key":   key,
		"value": value,
	})
	return nil
}

// All returns every persisted setting
func (s *Store) All() (map[string]string, error) {
	rows, err := s.db.Query("SELECT key, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		out[key] = value
	}
	return out, rows.Err()
}

// ScrapeInterval returns the scheduler cadence in minutes
func (s *Store) ScrapeInterval() (int, error) {
	v, err := s.Get(KeyScrapeInterval)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(v)
}

// MaxDownloads returns the per-run download budget
func (s *Store) MaxDownloads() (int, error) {
	v, err := s.Get(KeyMaxNewVideos)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(v)
}

// WaitBounds returns the inter-download delay bounds in seconds
func (s *Store) WaitBounds() (float64, float64, error) {
	minRaw, err := s.Get(KeyWaitMinSeconds)
	if err != nil {
		return 0, 0, err
	}
	maxRaw, err := s.Get(KeyWaitMaxSeconds)
	if err != nil {
		return 0, 0, err
	}
	min, err := strconv.ParseFloat(minRaw, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid %s: %w", KeyWaitMinSeconds, err)
	}
	max, err := strconv.ParseFloat(maxRaw, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid %s: %w", KeyWaitMaxSeconds, err)
	}
	return min, max, nil
}

// TargetAccount returns the account the scheduler harvests
func (s *Store) TargetAccount() (string, error) {
	return s.Get(KeyTargetAccount)
}
