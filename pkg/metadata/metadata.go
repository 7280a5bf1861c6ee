// Package metadata assembles the canonical record written for every ingested
// item. The sidecar file is the durable proof of ingestion; the catalog row is
// a derived index that can be rebuilt from sidecars.
package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"vidharvest/pkg/errors"
	"vidharvest/pkg/logger"
)

const iso8601 = "2006-01-02T15:04:05Z"

// Record is the canonical metadata document for one ingested item
type Record struct {
	SourceID      string   `json:"source_id"`
	SourceType    string   `json:"source_type"`
	OriginalURL   string   `json:"original_url"`
	FilePath      string   `json:"file_path"`
	PublishDate   *string  `json:"publish_date"`
	Author        []string `json:"author"`
	LengthSeconds *int     `json:"length_seconds"`
	Language      string   `json:"language"`
	License       *string  `json:"license"`
	IngestDate    string   `json:"ingest_date"`
	Notes         *string  `json:"notes"`
}

// Catalog is the derived index the builder writes rows into
type Catalog interface {
	Insert(rec *Record) error
}

// BuildParams holds the inputs for building a Record. PublishTime takes
// precedence over PublishDate when set.
type BuildParams struct {
	SourceType    string
	OriginalURL   string
	FilePath      string
	Author        string
	PublishDate   string // already-formatted timestamp, best effort
	PublishTime   time.Time
	LengthSeconds *int
	Language      string
	License       *string
	Notes         string
}

// Builder constructs and persists canonical metadata records
type Builder struct {
	catalog Catalog
	logger  logger.Logger
}

// NewBuilder creates a Builder writing catalog rows through cat. A nil
// catalog disables the index write; sidecars are still produced.
func NewBuilder(cat Catalog, log logger.Logger) *Builder {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Builder{catalog: cat, logger: log}
}

// Build assembles a Record with a freshly generated source id and the ingest
// date stamped to the current UTC time.
func (b *Builder) Build(p BuildParams) *Record {
	rec := &Record{
		SourceID:      uuid.NewString(),
		SourceType:    p.SourceType,
		OriginalURL:   p.OriginalURL,
		FilePath:      p.FilePath,
		PublishDate:   normalizePublishDate(p.PublishTime, p.PublishDate),
		Author:        []string{},
		LengthSeconds: p.LengthSeconds,
		Language:      p.Language,
		License:       p.License,
		IngestDate:    time.Now().UTC().Format(iso8601),
	}
	if p.Author != "" {
		rec.Author = []string{p.Author}
	}
	if rec.Language == "" {
		rec.Language = "und"
	}
	if p.Notes != "" {
		notes := p.Notes
		rec.Notes = &notes
	}
	return rec
}

// Persist writes the sidecar document and then the catalog row. The two
// writes are independent: a catalog failure is logged and swallowed, since
// the sidecar is the recovery source of truth. A sidecar failure is fatal
// for the item.
func (b *Builder) Persist(rec *Record) error {
	sidecar, err := WriteSidecar(rec)
	if err != nil {
		return errors.Wrap(errors.TypePersistence, "failed to write sidecar", err)
	}
	b.logger.DebugWithFields("sidecar written", map[string]interface{}{
		"source_id": rec.SourceID,
		"sidecar":   sidecar,
	})

	if b.catalog == nil {
		return nil
	}
	if err := b.catalog.Insert(rec); err != nil {
		b.logger.ErrorWithFields("catalog insert failed", map[string]interface{}{
			"source_id": rec.SourceID,
			"error":     err.Error(),
		})
	}
	return nil
}

// normalizePublishDate converts a timestamp or best-effort string to UTC
// ISO-8601 with a trailing designator. Strings missing the UTC marker get it
// appended, not reparsed.
func normalizePublishDate(t time.Time, s string) *string {
	if !t.IsZero() {
		formatted := t.UTC().Format(iso8601)
		return &formatted
	}
	if s == "" {
		return nil
	}
	if !strings.HasSuffix(s, "Z") {
		s += "Z"
	}
	return &s
}

// SidecarPath returns the sidecar document path for a media file, sharing
// its base name.
func SidecarPath(mediaPath string) string {
	ext := filepath.Ext(mediaPath)
	return strings.TrimSuffix(mediaPath, ext) + ".json"
}

// WriteSidecar writes the record as an indented JSON document next to the
// media file, returning the sidecar path.
func WriteSidecar(rec *Record) (string, error) {
	path := SidecarPath(rec.FilePath)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create sidecar directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write sidecar file: %w", err)
	}
	return path, nil
}

// ReadSidecar loads a previously written sidecar document. Used by the
// catalog rebuild path.
func ReadSidecar(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sidecar file: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sidecar: %w", err)
	}
	return &rec, nil
}
