// Package catalog is the content catalog: a queryable index over everything
// the pipeline has ingested. Rows are derived from sidecar documents and can
// be rebuilt from them.
package catalog

import (
	"database/sql"
	"embed"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"vidharvest/pkg/logger"
	"vidharvest/pkg/metadata"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a SQLite-backed content catalog
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

// Open opens the catalog database at path and migrates it to the latest
// schema version.
func Open(path string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create catalog directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: log}
	if err := s.setup(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// setup runs the embedded schema migrations
func (s *Store) setup() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{
		MigrationsTable: "migrations",
	})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil {
		if stderrors.Is(err, migrate.ErrNoChange) {
			s.logger.Debug("catalog schema already up to date")
			return nil
		}
		return fmt.Errorf("failed to migrate catalog schema: %w", err)
	}

	s.logger.Debug("catalog schema migrated to latest version")
	return nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert writes a catalog row for the record. Duplicate inserts on
// (original_url, file_path) are silently ignored, not errors.
func (s *Store) Insert(rec *metadata.Record) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO ingested_content (
			id, source_type, original_url, file_path, publish_date, author,
			length_seconds, language, license, ingest_date, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SourceID,
		rec.SourceType,
		rec.OriginalURL,
		rec.FilePath,
		rec.PublishDate,
		strings.Join(rec.Author, ","),
		rec.LengthSeconds,
		rec.Language,
		rec.License,
		rec.IngestDate,
		rec.Notes,
	)
	if err != nil {
		return fmt.Errorf("failed to insert catalog row: %w", err)
	}
	return nil
}

// List returns catalog rows ordered by ingest date descending. A non-empty
// sourceType filters the result.
func (s *Store) List(limit, offset int, sourceType string) ([]metadata.Record, error) {
	query := `SELECT id, source_type, original_url, file_path, publish_date, author,
		length_seconds, language, license, ingest_date, notes
		FROM ingested_content`
	args := []interface{}{}
	if sourceType != "" {
		query += " WHERE source_type = ?"
		args = append(args, sourceType)
	}
	query += " ORDER BY ingest_date DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer rows.Close()

	records := []metadata.Record{}
	for rows.Next() {
		var (
			rec    metadata.Record
			author sql.NullString
		)
		err := rows.Scan(
			&rec.SourceID,
			&rec.SourceType,
			&rec.OriginalURL,
			&rec.FilePath,
			&rec.PublishDate,
			&author,
			&rec.LengthSeconds,
			&rec.Language,
			&rec.License,
			&rec.IngestDate,
			&rec.Notes,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan catalog row: %w", err)
		}
		rec.Author = []string{}
		if author.Valid && author.String != "" {
			rec.Author = strings.Split(author.String, ",")
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read catalog rows: %w", err)
	}

	return records, nil
}

// Count returns the number of catalog rows
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM ingested_content").Scan(&n); err != nil {
		return 0, fmt.Errorf("catalog count failed: %w", err)
	}
	return n, nil
}
