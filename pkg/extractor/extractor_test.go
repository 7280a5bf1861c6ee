package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidharvest/pkg/feed"
	"vidharvest/pkg/logger"
	"vidharvest/pkg/metadata"
	"vidharvest/pkg/ratelimit"
)

// fakeSource serves a scripted feed
type fakeSource struct {
	refs        []feed.PostRef
	listErr     error
	media       map[string]feed.MediaInfo
	classifyErr map[string]error
}

func (f *fakeSource) ListPosts(ctx context.Context, account string) ([]feed.PostRef, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.refs, nil
}

func (f *fakeSource) Classify(ctx context.Context, ref feed.PostRef) (feed.MediaInfo, error) {
	if err := f.classifyErr[ref.ID]; err != nil {
		return feed.MediaInfo{}, err
	}
	return f.media[ref.ID], nil
}

// fakeRegistry is an in-memory download registry
type fakeRegistry struct {
	seen      map[string]bool
	recordErr error
	lookupErr error
}

func newFakeRegistry(ids ...string) *fakeRegistry {
	seen := make(map[string]bool)
	for _, id := range ids {
		seen[id] = true
	}
	return &fakeRegistry{seen: seen}
}

func (f *fakeRegistry) IsDownloaded(sourceType, id string) (bool, error) {
	if f.lookupErr != nil {
		return false, f.lookupErr
	}
	return f.seen[id], nil
}

func (f *fakeRegistry) Record(id, sourceType, originalURL, filePath string) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	f.seen[id] = true
	return nil
}

// fakeFetcher records requested URLs
type fakeFetcher struct {
	fetched []string
	errs    map[string]error
}

func (f *fakeFetcher) FetchWithRetry(ctx context.Context, url string) ([]byte, error) {
	if err := f.errs[url]; err != nil {
		return nil, err
	}
	f.fetched = append(f.fetched, url)
	return []byte("media"), nil
}

// fakeStore records saved file names
type fakeStore struct {
	saved   []string
	saveErr error
}

func (f *fakeStore) SaveMedia(r io.Reader, filename string) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	io.Copy(io.Discard, r)
	f.saved = append(f.saved, filename)
	return "/data/instagram/" + filename, nil
}

// fakeBuilder records persisted metadata
type fakeBuilder struct {
	built      []metadata.BuildParams
	persisted  []*metadata.Record
	persistErr error
	n          int
}

func (f *fakeBuilder) Build(p metadata.BuildParams) *metadata.Record {
	f.built = append(f.built, p)
	f.n++
	return &metadata.Record{
		SourceID:    fmt.Sprintf("uuid-%d", f.n),
		SourceType:  p.SourceType,
		OriginalURL: p.OriginalURL,
		FilePath:    p.FilePath,
	}
}

func (f *fakeBuilder) Persist(rec *metadata.Record) error {
	if f.persistErr != nil {
		return f.persistErr
	}
	f.persisted = append(f.persisted, rec)
	return nil
}

func videoRef(id string) feed.PostRef {
	return feed.PostRef{ID: id, URL: "https://example.com/p/" + id + "/"}
}

func videoInfo(id string) feed.MediaInfo {
	return feed.MediaInfo{
		Type:       feed.MediaTypeVideo,
		VideoURL:   "https://cdn.example.com/" + id + ".mp4",
		UploadedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

type fixture struct {
	source   *fakeSource
	registry *fakeRegistry
	fetcher  *fakeFetcher
	store    *fakeStore
	builder  *fakeBuilder
	log      *logger.TestLogger
}

func newFixture() *fixture {
	return &fixture{
		source: &fakeSource{
			media:       make(map[string]feed.MediaInfo),
			classifyErr: make(map[string]error),
		},
		registry: newFakeRegistry(),
		fetcher:  &fakeFetcher{errs: make(map[string]error)},
		store:    &fakeStore{},
		builder:  &fakeBuilder{},
		log:      logger.NewTestLogger(),
	}
}

func (fx *fixture) extractor() *Extractor {
	return New(
		fx.source, fx.registry, fx.fetcher, fx.store, fx.builder,
		ratelimit.NewUniformDelayer(ratelimit.FixedBounds(0, 0)),
		"instagram", fx.log,
	)
}

func TestRunDownloadsUnseenVideos(t *testing.T) {
	fx := newFixture()
	fx.source.refs = []feed.PostRef{videoRef("vid1"), videoRef("vid2")}
	fx.source.media["vid1"] = videoInfo("vid1")
	fx.source.media["vid2"] = videoInfo("vid2")

	descriptors := fx.extractor().Run(context.Background(), "creator", true, 4)

	require.Len(t, descriptors, 2)
	assert.Len(t, fx.fetcher.fetched, 2)
	assert.Len(t, fx.builder.persisted, 2)
	assert.True(t, fx.registry.seen["vid1"])
	assert.True(t, fx.registry.seen["vid2"])
}

func TestRunSkipsImagesAndSeenVideos(t *testing.T) {
	fx := newFixture()
	fx.source.refs = []feed.PostRef{videoRef("pic1"), videoRef("old1"), videoRef("new1")}
	fx.source.media["pic1"] = feed.MediaInfo{Type: feed.MediaTypeImage}
	fx.source.media["old1"] = videoInfo("old1")
	fx.source.media["new1"] = videoInfo("new1")
	fx.registry.seen["old1"] = true

	descriptors := fx.extractor().Run(context.Background(), "creator", true, 4)

	// all three posts are described, only the unseen video is fetched
	require.Len(t, descriptors, 3)
	require.Len(t, fx.fetcher.fetched, 1)
	assert.Contains(t, fx.fetcher.fetched[0], "new1")
}

func TestRunHonorsDownloadBudget(t *testing.T) {
	fx := newFixture()
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("vid%d", i)
		fx.source.refs = append(fx.source.refs, videoRef(id))
		fx.source.media[id] = videoInfo(id)
	}

	descriptors := fx.extractor().Run(context.Background(), "creator", true, 2)

	assert.Len(t, descriptors, 6, "every post is still described")
	assert.Len(t, fx.fetcher.fetched, 2, "downloads stop at the budget")
}

func TestRunSeenVideosDoNotConsumeBudget(t *testing.T) {
	fx := newFixture()
	fx.source.refs = []feed.PostRef{videoRef("old1"), videoRef("old2"), videoRef("new1")}
	for _, id := range []string{"old1", "old2", "new1"} {
		fx.source.media[id] = videoInfo(id)
	}
	fx.registry.seen["old1"] = true
	fx.registry.seen["old2"] = true

	fx.extractor().Run(context.Background(), "creator", true, 1)

	require.Len(t, fx.fetcher.fetched, 1)
	assert.Contains(t, fx.fetcher.fetched[0], "new1")
}

func TestRunWithoutFetchOnlyDescribes(t *testing.T) {
	fx := newFixture()
	fx.source.refs = []feed.PostRef{videoRef("vid1")}
	fx.source.media["vid1"] = videoInfo("vid1")

	descriptors := fx.extractor().Run(context.Background(), "creator", false, 4)

	require.Len(t, descriptors, 1)
	assert.Equal(t, feed.MediaTypeVideo, descriptors[0].MediaType)
	assert.Equal(t, "20240301T100000", descriptors[0].DatePosted)
	assert.Empty(t, fx.fetcher.fetched)
}

func TestRunFeedFailureReturnsEmpty(t *testing.T) {
	fx := newFixture()
	fx.source.listErr = errors.New("feed page did not render")

	descriptors := fx.extractor().Run(context.Background(), "creator", true, 4)

	assert.Empty(t, descriptors)
	assert.True(t, fx.log.HasError())
}

func TestRunClassificationFailureSkipsOnlyThatPost(t *testing.T) {
	fx := newFixture()
	fx.source.refs = []feed.PostRef{videoRef("bad1"), videoRef("good1")}
	fx.source.classifyErr["bad1"] = errors.New("post markup changed")
	fx.source.media["good1"] = videoInfo("good1")

	descriptors := fx.extractor().Run(context.Background(), "creator", true, 4)

	require.Len(t, descriptors, 1)
	assert.Equal(t, "good1", descriptors[0].ID)
	assert.Len(t, fx.fetcher.fetched, 1)
}

func TestRunTransferFailureLeavesPostEligible(t *testing.T) {
	fx := newFixture()
	fx.source.refs = []feed.PostRef{videoRef("vid1"), videoRef("vid2")}
	fx.source.media["vid1"] = videoInfo("vid1")
	fx.source.media["vid2"] = videoInfo("vid2")
	fx.fetcher.errs["https://cdn.example.com/vid1.mp4"] = errors.New("connection reset")

	fx.extractor().Run(context.Background(), "creator", true, 4)

	// the failed item was never recorded, the second one went through
	assert.False(t, fx.registry.seen["vid1"])
	assert.True(t, fx.registry.seen["vid2"])
	assert.Empty(t, fx.builder.persistedFor("vid1"))
}

func TestRunSidecarFailureLeavesPostEligible(t *testing.T) {
	fx := newFixture()
	fx.source.refs = []feed.PostRef{videoRef("vid1")}
	fx.source.media["vid1"] = videoInfo("vid1")
	fx.builder.persistErr = errors.New("disk full")

	fx.extractor().Run(context.Background(), "creator", true, 4)

	assert.False(t, fx.registry.seen["vid1"], "an unproven item must stay eligible")
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	fx := newFixture()
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("vid%d", i)
		fx.source.refs = append(fx.source.refs, videoRef(id))
		fx.source.media[id] = videoInfo(id)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	descriptors := fx.extractor().Run(ctx, "creator", true, 4)
	assert.Empty(t, descriptors)
	assert.Empty(t, fx.fetcher.fetched)
}

func TestIngestFilenameCarriesIDAndDate(t *testing.T) {
	fx := newFixture()
	fx.source.refs = []feed.PostRef{videoRef("vid1")}
	fx.source.media["vid1"] = videoInfo("vid1")

	fx.extractor().Run(context.Background(), "creator", true, 4)

	require.Len(t, fx.store.saved, 1)
	assert.Equal(t, "vid1_20240301T100000.mp4", fx.store.saved[0])
}

func TestIngestMetadataCarriesAccountAndURL(t *testing.T) {
	fx := newFixture()
	fx.source.refs = []feed.PostRef{videoRef("vid1")}
	fx.source.media["vid1"] = videoInfo("vid1")

	fx.extractor().Run(context.Background(), "creator", true, 4)

	require.Len(t, fx.builder.built, 1)
	p := fx.builder.built[0]
	assert.Equal(t, "instagram", p.SourceType)
	assert.Equal(t, "https://example.com/p/vid1/", p.OriginalURL)
	assert.Equal(t, "creator", p.Author)
	assert.True(t, strings.HasSuffix(p.FilePath, "vid1_20240301T100000.mp4"))
}

// persistedFor filters persisted records by original URL substring
func (f *fakeBuilder) persistedFor(id string) []*metadata.Record {
	var out []*metadata.Record
	for _, rec := range f.persisted {
		if strings.Contains(rec.OriginalURL, id) {
			out = append(out, rec)
		}
	}
	return out
}
