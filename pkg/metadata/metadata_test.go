package metadata

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidharvest/pkg/logger"
)

// recordingCatalog captures inserts and optionally fails them
type recordingCatalog struct {
	records []*Record
	err     error
}

func (c *recordingCatalog) Insert(rec *Record) error {
	if c.err != nil {
		return c.err
	}
	c.records = append(c.records, rec)
	return nil
}

func TestBuildGeneratesDistinctSourceIDs(t *testing.T) {
	b := NewBuilder(nil, logger.NewTestLogger())

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		rec := b.Build(BuildParams{SourceType: "instagram"})
		require.NotEmpty(t, rec.SourceID)
		assert.False(t, seen[rec.SourceID], "source id %s generated twice", rec.SourceID)
		seen[rec.SourceID] = true
	}
}

func TestBuildDefaults(t *testing.T) {
	b := NewBuilder(nil, logger.NewTestLogger())

	rec := b.Build(BuildParams{
		SourceType:  "instagram",
		OriginalURL: "https://example.com/p/abc/",
		FilePath:    "/data/abc.mp4",
	})

	assert.Equal(t, "und", rec.Language)
	assert.Empty(t, rec.Author)
	assert.Nil(t, rec.PublishDate)
	assert.Nil(t, rec.Notes)
	assert.NotEmpty(t, rec.IngestDate)

	_, err := time.Parse(iso8601, rec.IngestDate)
	assert.NoError(t, err)
}

func TestBuildWrapsAuthorAndNotes(t *testing.T) {
	b := NewBuilder(nil, logger.NewTestLogger())

	rec := b.Build(BuildParams{
		SourceType: "instagram",
		Author:     "creator",
		Notes:      "scraped via pipeline",
	})

	assert.Equal(t, []string{"creator"}, rec.Author)
	require.NotNil(t, rec.Notes)
	assert.Equal(t, "scraped via pipeline", *rec.Notes)
}

func TestNormalizePublishDate(t *testing.T) {
	tests := []struct {
		name        string
		publishTime time.Time
		publishDate string
		want        *string
	}{
		{
			name: "timestamp wins over string",
			publishTime: time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC),
			publishDate: "2020-01-01T00:00:00",
			want:        strPtr("2024-03-01T10:30:00Z"),
		},
		{
			name:        "string without designator gets one appended",
			publishDate: "2024-03-01T10:30:00",
			want:        strPtr("2024-03-01T10:30:00Z"),
		},
		{
			name:        "string with designator kept as is",
			publishDate: "2024-03-01T10:30:00Z",
			want:        strPtr("2024-03-01T10:30:00Z"),
		},
		{
			name: "nothing given means nil",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizePublishDate(tt.publishTime, tt.publishDate)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func TestSidecarPath(t *testing.T) {
	assert.Equal(t, "/data/abc.json", SidecarPath("/data/abc.mp4"))
	assert.Equal(t, "clip.json", SidecarPath("clip.webm"))
	assert.Equal(t, "/data/noext.json", SidecarPath("/data/noext"))
}

func TestSidecarRoundTrip(t *testing.T) {
	dir := t.TempDir()
	mediaPath := filepath.Join(dir, "abc.mp4")

	b := NewBuilder(nil, logger.NewTestLogger())
	rec := b.Build(BuildParams{
		SourceType:  "instagram",
		OriginalURL: "https://example.com/p/abc/",
		FilePath:    mediaPath,
		Author:      "creator",
		PublishTime: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	})

	path, err := WriteSidecar(rec)
	require.NoError(t, err)
	assert.Equal(t, SidecarPath(mediaPath), path)

	loaded, err := ReadSidecar(path)
	require.NoError(t, err)
	assert.Equal(t, rec.SourceID, loaded.SourceID)
	assert.Equal(t, rec.Author, loaded.Author)
	require.NotNil(t, loaded.PublishDate)
	assert.Equal(t, "2024-03-01T10:00:00Z", *loaded.PublishDate)
}

func TestPersistWritesSidecarAndCatalogRow(t *testing.T) {
	dir := t.TempDir()
	cat := &recordingCatalog{}
	b := NewBuilder(cat, logger.NewTestLogger())

	rec := b.Build(BuildParams{
		SourceType: "instagram",
		FilePath:   filepath.Join(dir, "abc.mp4"),
	})
	require.NoError(t, b.Persist(rec))

	_, err := os.Stat(SidecarPath(rec.FilePath))
	require.NoError(t, err)
	require.Len(t, cat.records, 1)
	assert.Equal(t, rec.SourceID, cat.records[0].SourceID)
}

func TestPersistSwallowsCatalogFailure(t *testing.T) {
	dir := t.TempDir()
	log := logger.NewTestLogger()
	cat := &recordingCatalog{err: os.ErrPermission}
	b := NewBuilder(cat, log)

	rec := b.Build(BuildParams{
		SourceType: "instagram",
		FilePath:   filepath.Join(dir, "abc.mp4"),
	})

	require.NoError(t, b.Persist(rec))
	assert.True(t, log.HasError())

	// the sidecar still exists
	_, err := os.Stat(SidecarPath(rec.FilePath))
	assert.NoError(t, err)
}

func TestPersistFailsWhenSidecarCannotBeWritten(t *testing.T) {
	b := NewBuilder(&recordingCatalog{}, logger.NewTestLogger())

	rec := b.Build(BuildParams{
		SourceType: "instagram",
		FilePath:   filepath.Join(t.TempDir(), "missing", "abc.mp4"),
	})

	// make the parent path unwritable by occupying it with a file
	parent := filepath.Dir(rec.FilePath)
	require.NoError(t, os.WriteFile(parent, []byte("blocker"), 0644))

	err := b.Persist(rec)
	assert.Error(t, err)
}

func strPtr(s string) *string { return &s }
