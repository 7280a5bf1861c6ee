// Package fetch transfers media bytes over HTTP.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"vidharvest/pkg/errors"
	"vidharvest/pkg/logger"
	"vidharvest/pkg/retry"
)

// Client downloads media files with browser-like headers
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	retryCfg   *retry.Config
	logger     logger.Logger
}

// NewClient creates a media fetch client
func NewClient(timeout time.Duration, userAgent string, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		headers: map[string]string{
			"User-Agent":      userAgent,
			"Accept":          "*/*",
			"Accept-Language": "en-US,en;q=0.9",
		},
		retryCfg: &retry.Config{
			MaxAttempts: 3,
			Backoff:     retry.DefaultExponentialBackoff(),
			RetryIf:     retry.DefaultRetryIf,
			Context:     context.Background(),
			Logger:      log,
		},
		logger: log,
	}
}

// SetHeader sets a custom header for the client
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// Fetch downloads the bytes at url. Non-2xx responses and network failures
// come back as typed transfer errors so callers can classify them.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(errors.TypeTransfer, "invalid media URL", err)
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorWithFields("media request failed", map[string]interface{}{
			"url":   url,
			"error": err.Error(),
		})
		return nil, &errors.Error{
			Type:    errors.TypeTransfer,
			Message: "network error",
			Code:    0,
			Err:     err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &errors.Error{
			Type:    errors.TypeTransfer,
			Message: fmt.Sprintf("unexpected status %d", resp.StatusCode),
			Code:    resp.StatusCode,
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(errors.TypeTransfer, "failed to read media body", err)
	}

	c.logger.DebugWithFields("media fetched", map[string]interface{}{
		"url":        url,
		"size_bytes": len(data),
		"duration":   time.Since(start),
	})

	return data, nil
}

// FetchWithRetry downloads the bytes at url, retrying transient transfer
// failures with exponential backoff.
func (c *Client) FetchWithRetry(ctx context.Context, url string) ([]byte, error) {
	cfg := *c.retryCfg
	cfg.Context = ctx
	return retry.DoWithResult(func() ([]byte, error) {
		return c.Fetch(ctx, url)
	}, &cfg)
}
