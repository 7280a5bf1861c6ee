package feed

import (
	"context"
	stderrors "errors"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"vidharvest/pkg/errors"
	"vidharvest/pkg/logger"
	"vidharvest/pkg/ratelimit"
)

const defaultBaseURL = "https://www.instagram.com"

// feed page scripts; kept together so selector churn stays in one place
const (
	feedAnchorsJS = `Array.from(document.querySelectorAll("article a[href]")).map(a => a.getAttribute("href"))`
	hasVideoJS    = `document.querySelector("video") !== null`
	videoSrcJS    = `(() => { const v = document.querySelector("video"); return v && v.src ? v.src : ""; })()`
	metaVideoJS   = `(() => { const m = document.querySelector("meta[property='og:video']"); return m ? m.content : ""; })()`
	uploadDateJS  = `(() => { const m = document.querySelector("meta[property='og:video:upload_date']"); return m ? m.content : ""; })()`
)

// BrowserOptions configures a BrowserSource
type BrowserOptions struct {
	BaseURL     string
	UserAgent   string
	FeedTimeout time.Duration
	PostTimeout time.Duration
	Headless    bool
}

// BrowserSource drives a headless browser against the platform's public pages.
// It owns one browser process; each ListPosts or Classify call runs in its own
// tab which is always torn down when the call returns.
type BrowserSource struct {
	opts        BrowserOptions
	throttle    ratelimit.Limiter
	logger      logger.Logger
	allocCancel context.CancelFunc
	browser     context.Context
	browserStop context.CancelFunc
}

// NewBrowserSource creates a browser-backed feed source. The throttle paces
// page navigations so feed inspection itself does not hammer the platform.
func NewBrowserSource(opts BrowserOptions, throttle ratelimit.Limiter, log logger.Logger) *BrowserSource {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}

	execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("lang", "en-US"),
		chromedp.UserAgent(opts.UserAgent),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), execOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	return &BrowserSource{
		opts:        opts,
		throttle:    throttle,
		logger:      log,
		allocCancel: allocCancel,
		browser:     browserCtx,
		browserStop: browserCancel,
	}
}

// Close tears down the browser process and all of its tabs
func (b *BrowserSource) Close() error {
	b.browserStop()
	b.allocCancel()
	return nil
}

// ListPosts navigates to the account's public feed and enumerates post
// references from the anchors inside the feed container.
func (b *BrowserSource) ListPosts(ctx context.Context, account string) ([]PostRef, error) {
	feedURL := b.opts.BaseURL + "/" + account + "/"

	b.logger.DebugWithFields("navigating to account feed", map[string]interface{}{
		"account": account,
		"url":     feedURL,
	})

	if !b.throttle.Allow() {
		b.throttle.Wait()
	}

	tab, closeTab := chromedp.NewContext(b.browser)
	defer closeTab()
	navCtx, cancel := context.WithTimeout(tab, b.opts.FeedTimeout)
	defer cancel()

	var hrefs []string
	err := chromedp.Run(navCtx,
		chromedp.Navigate(feedURL),
		chromedp.WaitVisible("article", chromedp.ByQuery),
		chromedp.Evaluate(feedAnchorsJS, &hrefs),
	)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return nil, errors.Wrap(errors.TypeExtractionTimeout, "feed container did not render in time", err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrap(errors.TypeExtractionTimeout, "feed navigation failed", err)
	}

	refs := make([]PostRef, 0, len(hrefs))
	seen := make(map[string]bool, len(hrefs))
	for _, href := range hrefs {
		if href == "" {
			continue
		}
		id, ok := PostIDFromPath(href)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		url := href
		if strings.HasPrefix(href, "/") {
			url = b.opts.BaseURL + href
		}
		refs = append(refs, PostRef{ID: id, URL: url})
	}

	b.logger.DebugWithFields("feed enumerated", map[string]interface{}{
		"account": account,
		"posts":   len(refs),
	})

	return refs, nil
}

// Classify opens the post's own page in a fresh tab to reliably determine its
// media type. The feed grid does not expose media type or the raw video
// source, so this second navigation is unavoidable.
func (b *BrowserSource) Classify(ctx context.Context, ref PostRef) (MediaInfo, error) {
	if !b.throttle.Allow() {
		b.throttle.Wait()
	}

	tab, closeTab := chromedp.NewContext(b.browser)
	defer closeTab()
	navCtx, cancel := context.WithTimeout(tab, b.opts.PostTimeout)
	defer cancel()

	var (
		hasVideo   bool
		videoSrc   string
		metaSrc    string
		uploadDate string
	)
	err := chromedp.Run(navCtx,
		chromedp.Navigate(ref.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(hasVideoJS, &hasVideo),
		chromedp.Evaluate(videoSrcJS, &videoSrc),
		chromedp.Evaluate(metaVideoJS, &metaSrc),
		chromedp.Evaluate(uploadDateJS, &uploadDate),
	)
	if err != nil {
		if ctx.Err() != nil {
			return MediaInfo{}, ctx.Err()
		}
		return MediaInfo{}, errors.Wrap(errors.TypeClassification, "failed to inspect post "+ref.ID, err)
	}

	if !hasVideo {
		return MediaInfo{Type: MediaTypeImage}, nil
	}

	info := MediaInfo{Type: MediaTypeVideo, VideoURL: videoSrc}
	if info.VideoURL == "" {
		// fall back to the video meta tag
		info.VideoURL = metaSrc
	}
	if uploadDate != "" {
		if ts, err := strconv.ParseInt(uploadDate, 10, 64); err == nil {
			info.UploadedAt = time.Unix(ts, 0).UTC()
		}
	}

	b.logger.DebugWithFields("post classified", map[string]interface{}{
		"post_id":    ref.ID,
		"media_type": string(info.Type),
	})

	return info, nil
}
