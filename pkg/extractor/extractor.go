// Package extractor drives one ingestion pass over an account feed: enumerate
// posts, classify them, and download previously unseen videos with their
// metadata.
package extractor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"vidharvest/pkg/feed"
	"vidharvest/pkg/logger"
	"vidharvest/pkg/metadata"
	"vidharvest/pkg/ratelimit"
)

// Registry is the durable set of already-downloaded post identifiers
type Registry interface {
	IsDownloaded(sourceType, id string) (bool, error)
	Record(id, sourceType, originalURL, filePath string) error
}

// Fetcher transfers media bytes
type Fetcher interface {
	FetchWithRetry(ctx context.Context, url string) ([]byte, error)
}

// MediaStore persists media files
type MediaStore interface {
	SaveMedia(r io.Reader, filename string) (string, error)
}

// Builder constructs and persists canonical metadata records
type Builder interface {
	Build(p metadata.BuildParams) *metadata.Record
	Persist(rec *metadata.Record) error
}

// Extractor runs the content ingestion pipeline for one source type
type Extractor struct {
	source     feed.Source
	registry   Registry
	fetcher    Fetcher
	store      MediaStore
	builder    Builder
	delayer    ratelimit.Delayer
	sourceType string
	logger     logger.Logger
}

// New creates an Extractor
func New(
	source feed.Source,
	registry Registry,
	fetcher Fetcher,
	store MediaStore,
	builder Builder,
	delayer ratelimit.Delayer,
	sourceType string,
	log logger.Logger,
) *Extractor {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Extractor{
		source:     source,
		registry:   registry,
		fetcher:    fetcher,
		store:      store,
		builder:    builder,
		delayer:    delayer,
		sourceType: sourceType,
		logger:     log,
	}
}

// Run performs one extraction pass over the account's feed. It returns the
// full descriptor sequence (images and videos alike) regardless of whether
// any download occurred. A failing post never aborts the pass; a failing
// feed navigation truncates the result but is not returned as an error,
// since partial results are still useful to callers.
func (e *Extractor) Run(ctx context.Context, account string, fetchMedia bool, maxDownloads int) []feed.PostDescriptor {
	descriptors := []feed.PostDescriptor{}

	refs, err := e.source.ListPosts(ctx, account)
	if err != nil {
		e.logger.ErrorWithFields("feed enumeration failed", map[string]interface{}{
			"account": account,
			"error":   err.Error(),
		})
		return descriptors
	}

	downloads := 0
	for _, ref := range refs {
		if ctx.Err() != nil {
			e.logger.WarnWithFields("extraction cancelled", map[string]interface{}{
				"account": account,
			})
			break
		}

		info, err := e.source.Classify(ctx, ref)
		if err != nil {
			e.logger.ErrorWithFields("failed to inspect post", map[string]interface{}{
				"account": account,
				"post_id": ref.ID,
				"error":   err.Error(),
			})
			continue
		}

		desc := feed.PostDescriptor{
			ID:        ref.ID,
			URL:       ref.URL,
			MediaType: info.Type,
		}
		if !info.UploadedAt.IsZero() {
			desc.DatePosted = info.UploadedAt.UTC().Format("20060102T150405")
		}
		descriptors = append(descriptors, desc)

		if info.Type == feed.MediaTypeVideo && fetchMedia && downloads < maxDownloads {
			done, err := e.ingest(ctx, account, ref, info, desc)
			if err != nil {
				e.logger.ErrorWithFields("failed to ingest video", map[string]interface{}{
					"account": account,
					"post_id": ref.ID,
					"error":   err.Error(),
				})
				continue
			}
			if done {
				downloads++
				e.logger.InfoWithFields("video ingested", map[string]interface{}{
					"account":       account,
					"post_id":       ref.ID,
					"downloads":     downloads,
					"max_downloads": maxDownloads,
				})
			}
		}
	}

	e.logger.InfoWithFields("extraction pass complete", map[string]interface{}{
		"account":   account,
		"posts":     len(descriptors),
		"downloads": downloads,
	})

	return descriptors
}

// ingest runs the fetch pipeline for one unseen video: transfer the bytes,
// write the media file, persist metadata, record the identifier, then pause.
// Returns false when the registry already holds the identifier.
func (e *Extractor) ingest(ctx context.Context, account string, ref feed.PostRef, info feed.MediaInfo, desc feed.PostDescriptor) (bool, error) {
	seen, err := e.registry.IsDownloaded(e.sourceType, ref.ID)
	if err != nil {
		return false, err
	}
	if seen {
		e.logger.DebugWithFields("post already recorded, skipping download", map[string]interface{}{
			"post_id": ref.ID,
		})
		return false, nil
	}

	if info.VideoURL == "" {
		return false, fmt.Errorf("post %s has no resolvable video source", ref.ID)
	}

	data, err := e.fetcher.FetchWithRetry(ctx, info.VideoURL)
	if err != nil {
		// no registry record: the item stays eligible for the next run
		return false, err
	}

	suffix := desc.DatePosted
	if suffix == "" {
		suffix = fmt.Sprintf("%d", time.Now().Unix())
	}
	filename := fmt.Sprintf("%s_%s.mp4", ref.ID, suffix)

	path, err := e.store.SaveMedia(bytes.NewReader(data), filename)
	if err != nil {
		return false, err
	}

	rec := e.builder.Build(metadata.BuildParams{
		SourceType:  e.sourceType,
		OriginalURL: ref.URL,
		FilePath:    path,
		Author:      account,
		PublishTime: info.UploadedAt,
		Notes:       "scraped via pipeline",
	})
	if err := e.builder.Persist(rec); err != nil {
		// sidecar write failed: the item is not proven ingested, do not
		// record it
		return false, err
	}

	if err := e.registry.Record(ref.ID, e.sourceType, ref.URL, path); err != nil {
		e.logger.ErrorWithFields("failed to record download", map[string]interface{}{
			"post_id": ref.ID,
			"error":   err.Error(),
		})
	}

	// polite delay between transfers to avoid rate limits
	if err := e.delayer.Delay(ctx); err != nil {
		e.logger.WarnWithFields("download delay interrupted", map[string]interface{}{
			"post_id": ref.ID,
			"error":   err.Error(),
		})
	}

	return true, nil
}
