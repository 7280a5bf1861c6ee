// Package registry is the durable set of already-processed post identifiers.
// Presence of a row is the sole truth for "already downloaded". It is kept
// separate from the content catalog so registry checks stay cheap.
package registry

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"vidharvest/pkg/logger"
)

// Identifiers are scoped by source type: platform shortcodes are only unique
// within one platform, so a second source reusing the same shortcode space
// must not collide.
const schema = `
CREATE TABLE IF NOT EXISTS downloaded_posts (
	id TEXT NOT NULL,
	source_type TEXT NOT NULL,
	original_url TEXT,
	file_path TEXT,
	downloaded_at TEXT,
	PRIMARY KEY (source_type, id)
);
`

// Registry records downloaded post identifiers in a SQLite database
type Registry struct {
	db     *sql.DB
	logger logger.Logger
}

// Open opens (creating if necessary) the registry database at path
func Open(path string, log logger.Logger) (*Registry, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}
	// sqlite handles one writer at a time; serialize through a single conn
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create registry schema: %w", err)
	}

	log.DebugWithFields("download registry opened", map[string]interface{}{
		"path": path,
	})

	return &Registry{db: db, logger: log}, nil
}

// Close closes the underlying database
func (r *Registry) Close() error {
	return r.db.Close()
}

// IsDownloaded reports whether the post identifier has been recorded for the
// given source type.
func (r *Registry) IsDownloaded(sourceType, id string) (bool, error) {
	var one int
	err := r.db.QueryRow("SELECT 1 FROM downloaded_posts WHERE source_type = ? AND id = ?", sourceType, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("registry lookup failed: %w", err)
	}
	return true, nil
}

// Record persists that a post has been downloaded. Insert-if-absent: calling
// it twice with the same source type and id is a no-op the second time.
func (r *Registry) Record(id, sourceType, originalURL, filePath string) error {
	downloadedAt := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.Exec(
		`INSERT OR IGNORE INTO downloaded_posts (id, source_type, original_url, file_path, downloaded_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id, sourceType, originalURL, filePath, downloadedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record download: %w", err)
	}
	return nil
}

// Count returns the number of recorded identifiers
func (r *Registry) Count() (int, error) {
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM downloaded_posts").Scan(&n); err != nil {
		return 0, fmt.Errorf("registry count failed: %w", err)
	}
	return n, nil
}
