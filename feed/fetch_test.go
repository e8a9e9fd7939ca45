package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = "Package,Version\nleft-pad,= 1.2.3\n"

func newTestFetcher(t *testing.T, ts *httptest.Server) *Fetcher {
	t.Helper()
	f := NewFetcher(ts.Client(), NewCache(t.TempDir(), time.Minute))
	f.Retries = 0
	f.Timeout = 5 * time.Second
	return f
}

func TestFetchStoresAndReusesCache(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(sampleCSV))
	}))
	defer ts.Close()

	f := newTestFetcher(t, ts)
	src := Source{Name: "test", URL: ts.URL, CacheFile: "test.csv"}

	data, origin, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, OriginNetwork, origin)
	assert.Equal(t, sampleCSV, string(data))

	data, origin, err = f.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, OriginCache, origin)
	assert.Equal(t, sampleCSV, string(data))
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchNoCacheAlwaysDownloads(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(sampleCSV))
	}))
	defer ts.Close()

	f := newTestFetcher(t, ts)
	f.NoCache = true
	src := Source{Name: "test", URL: ts.URL, CacheFile: "test.csv"}

	for i := 0; i < 2; i++ {
		_, origin, err := f.Fetch(context.Background(), src)
		require.NoError(t, err)
		assert.Equal(t, OriginNetwork, origin)
	}
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetchFallsBack(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		plain   bool
		limit   int64
	}{
		{
			name: "redirect is not followed",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, "https://example.invalid/feed.csv", http.StatusFound)
			},
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "payload too large",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(strings.Repeat("a", 100)))
			},
			limit: 10,
		},
		{
			name: "plain http rejected",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(sampleCSV))
			},
			plain: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewTLSServer(tt.handler)
			defer ts.Close()

			f := newTestFetcher(t, ts)
			if tt.limit > 0 {
				f.MaxBytes = tt.limit
			}
			url := ts.URL
			if tt.plain {
				url = "http://" + strings.TrimPrefix(ts.URL, "https://")
			}
			src := Source{Name: "test", URL: url, CacheFile: "test.csv", Bundled: "packages.csv"}

			data, origin, err := f.Fetch(context.Background(), src)
			require.NoError(t, err)
			assert.Equal(t, OriginFallback, origin)

			deny, err := ParseDelimited(strings.NewReader(string(data)))
			require.NoError(t, err)
			assert.True(t, deny.Watches("posthog-node"))

			_, cached := f.Cache.Load("test.csv")
			assert.False(t, cached, "failed downloads must not be cached")
		})
	}
}

func TestFetchWithoutFallbackFails(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	f := newTestFetcher(t, ts)
	_, origin, err := f.Fetch(context.Background(), Source{Name: "test", URL: ts.URL})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoFallback)
	assert.Equal(t, OriginFailed, origin)
}

func TestDownloadErrors(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusMovedPermanently)
	}))
	defer ts.Close()

	f := newTestFetcher(t, ts)

	_, err := f.download(context.Background(), ts.URL)
	assert.ErrorIs(t, err, ErrRedirect)

	_, err = f.download(context.Background(), "http://example.com/feed.csv")
	assert.ErrorIs(t, err, ErrInsecureURL)
}
