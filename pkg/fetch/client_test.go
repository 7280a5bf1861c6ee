package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidharvest/pkg/errors"
	"vidharvest/pkg/logger"
	"vidharvest/pkg/retry"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c := NewClient(5*time.Second, "test-agent", logger.NewTestLogger())
	// fast retries for tests
	c.retryCfg.Backoff = &retry.ConstantBackoff{Delay: time.Millisecond}
	return c
}

func TestFetchReturnsBody(t *testing.T) {
	var gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		w.Write([]byte("video bytes"))
	}))
	defer srv.Close()

	c := newTestClient(t)
	data, err := c.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []byte("video bytes"), data)
	assert.Equal(t, "test-agent", gotAgent)
}

func TestFetchNonOKStatusIsTypedTransferError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t)
	_, err := c.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypeTransfer))

	var typed *errors.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, http.StatusNotFound, typed.Code)
}

func TestFetchNetworkErrorIsTypedTransferError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	c := newTestClient(t)
	_, err := c.Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	var typed *errors.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, errors.TypeTransfer, typed.Type)
	assert.Equal(t, 0, typed.Code)
}

func TestFetchWithRetryRecoversFromServerErrors(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("finally"))
	}))
	defer srv.Close()

	c := newTestClient(t)
	data, err := c.FetchWithRetry(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []byte("finally"), data)
	assert.EqualValues(t, 3, atomic.LoadInt64(&calls))
}

func TestFetchWithRetryGivesUpOnClientErrors(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := newTestClient(t)
	_, err := c.FetchWithRetry(context.Background(), srv.URL)
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt64(&calls), "403 must not be retried")
}

func TestSetHeader(t *testing.T) {
	var gotReferer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReferer = r.Header.Get("Referer")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := newTestClient(t)
	c.SetHeader("Referer", "https://example.com/")

	_, err := c.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/", gotReferer)
}
