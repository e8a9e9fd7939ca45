package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDenylistMergesSources(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/feed.csv":
			_, _ = w.Write([]byte("Package,Version\nleft-pad,= 1.2.3\n"))
		case "/feed.json":
			_, _ = w.Write([]byte(`{"left-pad": ["1.2.4"], "kill-port": null}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	f := newTestFetcher(t, ts)
	sources := []Source{
		{Name: "delimited", URL: ts.URL + "/feed.csv", Format: FormatDelimited},
		{Name: "structured", URL: ts.URL + "/feed.json", Format: FormatStructured},
	}

	deny, results := LoadDenylist(context.Background(), f, sources)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.NoError(t, res.Err)
		assert.Equal(t, OriginNetwork, res.Origin)
	}
	assert.Equal(t, []string{"1.2.3", "1.2.4"}, deny["left-pad"].Sorted())
	assert.True(t, deny["kill-port"].IsWildcard())
}

func TestLoadDenylistToleratesFailedSource(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/feed.csv" {
			_, _ = w.Write([]byte("left-pad,= 1.2.3\n"))
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	f := newTestFetcher(t, ts)
	sources := []Source{
		{Name: "delimited", URL: ts.URL + "/feed.csv", Format: FormatDelimited},
		{Name: "structured", URL: ts.URL + "/feed.json", Format: FormatStructured},
	}

	deny, results := LoadDenylist(context.Background(), f, sources)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.Equal(t, OriginFailed, results[1].Origin)
	assert.True(t, deny["left-pad"].Has("1.2.3"))
}

func TestLoadDenylistBundledSnapshots(t *testing.T) {
	f := NewFetcher(nil, nil)
	sources := DefaultSources()
	for i := range sources {
		sources[i].URL = ""
	}

	deny, results := LoadDenylist(context.Background(), f, sources)
	for _, res := range results {
		assert.Equal(t, OriginFallback, res.Origin)
		assert.Positive(t, res.Entries)
	}
	assert.True(t, deny.Watches("posthog-node"))
	assert.True(t, deny["crossenv"].IsWildcard())
}

func TestLoadDenylistAllSourcesFail(t *testing.T) {
	sources := []Source{
		{Name: "delimited", Format: FormatDelimited},
		{Name: "structured", Format: FormatStructured},
	}

	deny, results := LoadDenylist(context.Background(), NewFetcher(nil, nil), sources)
	assert.Empty(t, deny)
	require.Len(t, results, 2)
	for i, res := range results {
		assert.Equal(t, sources[i].Name, res.Name)
		assert.Equal(t, OriginFailed, res.Origin)
		assert.ErrorIs(t, res.Err, ErrNoFallback)
	}
}
