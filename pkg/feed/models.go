package feed

import (
	"context"
	"strings"
	"time"
)

// MediaType identifies the kind of media a post carries
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

// PostRef is a reference to a single post discovered in an account feed
type PostRef struct {
	ID  string
	URL string
}

// PostDescriptor is the minimal record produced during feed enumeration
type PostDescriptor struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	MediaType  MediaType `json:"media_type"`
	DatePosted string    `json:"date_posted"` // ISO date, best effort; empty when unknown
}

// MediaInfo is the result of inspecting a post's own page
type MediaInfo struct {
	Type       MediaType
	VideoURL   string    // direct video source, empty for images
	UploadedAt time.Time // zero when the page does not expose it
}

// Source abstracts the brittle DOM-scraping logic behind a narrow boundary,
// so it can be swapped or mocked without touching registry, metadata or
// scheduling logic.
type Source interface {
	// ListPosts enumerates the post references in an account's public feed.
	ListPosts(ctx context.Context, account string) ([]PostRef, error)

	// Classify opens a post's own page and determines its media type.
	Classify(ctx context.Context, ref PostRef) (MediaInfo, error)
}

// genericSegments are post-type path markers that never identify a post.
// When the last path segment is one of these the preceding segment holds
// the shortcode.
var genericSegments = map[string]bool{
	"p":     true,
	"reel":  true,
	"reels": true,
	"tv":    true,
}

// PostIDFromPath derives a post identifier from a feed anchor href by taking
// the last non-generic path segment. The platform exposes no API, so this
// heuristic is the only stable key available.
func PostIDFromPath(href string) (string, bool) {
	trimmed := href
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	var parts []string
	for _, part := range strings.Split(trimmed, "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	for i := len(parts) - 1; i >= 0; i-- {
		if !genericSegments[parts[i]] {
			return parts[i], true
		}
	}
	return "", false
}
