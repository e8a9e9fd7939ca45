package report

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"npm-ioc-scanner/scanner"
)

func TestNewPayload(t *testing.T) {
	r := sampleReport(
		scanner.Issue{Kind: scanner.KindVersionMatch, Package: "left-pad", Version: "1.2.3"},
		scanner.Issue{Kind: scanner.KindScriptWarning, Package: "x", Version: "1.0.0"},
	)

	p, err := NewPayload(r)
	require.NoError(t, err)

	sum := sha256.Sum256(p.Body)
	assert.Equal(t, hex.EncodeToString(sum[:]), p.ContentHash)
	assert.Equal(t, 2, p.IssueCount)
	assert.Equal(t, 1, p.CriticalCount)
	assert.Equal(t, r.ScanID+".json", ObjectKey(r))
}

func TestMinioUploader(t *testing.T) {
	type request struct {
		method, path, contentType, hash, issues string
		body                                    []byte
	}
	got := make(chan request, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		select {
		case got <- request{
			method:      r.Method,
			path:        r.URL.Path,
			contentType: r.Header.Get("Content-Type"),
			hash:        r.Header.Get("X-Amz-Meta-Content-Sha256"),
			issues:      r.Header.Get("X-Amz-Meta-Issue-Count"),
			body:        body,
		}:
		default:
		}
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	u, err := NewMinioUploader(strings.TrimPrefix(ts.URL, "http://"), "access", "secret", "reports", false)
	require.NoError(t, err)

	p := Payload{ContentHash: "abc123", IssueCount: 3, CriticalCount: 1, Body: []byte(`{"scan_id":"x"}`)}
	require.NoError(t, u.Upload(context.Background(), "x.json", p))

	req := <-got
	assert.Equal(t, http.MethodPut, req.method)
	assert.Equal(t, "/reports/x.json", req.path)
	assert.Equal(t, "application/json", req.contentType)
	assert.Equal(t, "abc123", req.hash)
	assert.Equal(t, "3", req.issues)
	assert.Contains(t, string(req.body), `{"scan_id":"x"}`)
}

func TestNewMinioUploaderRequiresBucket(t *testing.T) {
	_, err := NewMinioUploader("localhost:9000", "a", "b", "", false)
	assert.Error(t, err)
}
