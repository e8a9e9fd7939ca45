package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"npm-ioc-scanner/feed"
	"npm-ioc-scanner/scanner"
)

func sampleReport(issues ...scanner.Issue) *Report {
	return &Report{
		ScanID:   "6f1c2e1a-0000-4000-8000-000000000000",
		Duration: 1500 * time.Millisecond,
		Roots:    []string{"/src/app"},
		Feeds: []feed.SourceResult{
			{Name: "delimited", Origin: feed.OriginNetwork, Entries: 800},
			{Name: "structured", Origin: feed.OriginFallback, Entries: 11},
		},
		Stats:   scanner.Counts{Directories: 10, Packages: 4},
		Summary: Summarize(issues),
		Issues:  issues,
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]scanner.Issue{
		{Kind: scanner.KindWildcardMatch},
		{Kind: scanner.KindLockfileHit},
		{Kind: scanner.KindGhostPackage},
		{Kind: scanner.KindSafeMatch},
	})
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Critical)
	assert.Equal(t, 1, s.Warnings)
	assert.Equal(t, 1, s.ByKind[scanner.KindSafeMatch])
}

func TestExitCode(t *testing.T) {
	critical := []scanner.Issue{{Kind: scanner.KindVersionMatch}}
	warning := []scanner.Issue{{Kind: scanner.KindScriptWarning}}
	safe := []scanner.Issue{{Kind: scanner.KindSafeMatch}}

	tests := []struct {
		name        string
		issues      []scanner.Issue
		threshold   Threshold
		explicit    bool
		interrupted bool
		want        int
	}{
		{name: "threshold not requested", issues: critical, threshold: ThresholdCritical, want: ExitClean},
		{name: "critical exceeded", issues: critical, threshold: ThresholdCritical, explicit: true, want: ExitFindings},
		{name: "warning below critical", issues: warning, threshold: ThresholdCritical, explicit: true, want: ExitClean},
		{name: "warning threshold", issues: warning, threshold: ThresholdWarning, explicit: true, want: ExitFindings},
		{name: "safe matches never fail", issues: safe, threshold: ThresholdWarning, explicit: true, want: ExitClean},
		{name: "off", issues: critical, threshold: ThresholdOff, explicit: true, want: ExitClean},
		{name: "interrupted", issues: nil, threshold: ThresholdOff, interrupted: true, want: ExitInterrupted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.issues, tt.threshold, tt.explicit, tt.interrupted))
		})
	}
}

func TestParseThreshold(t *testing.T) {
	for _, in := range []string{"off", "critical", "WARNING", " critical "} {
		_, err := ParseThreshold(in)
		assert.NoError(t, err, in)
	}
	_, err := ParseThreshold("high")
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	r := sampleReport(
		scanner.Issue{Kind: scanner.KindWildcardMatch, Package: "left-pad", Version: "9.9.9", Location: "/src/app/node_modules/left-pad"},
		scanner.Issue{Kind: scanner.KindSafeMatch, Package: "kill-port", Version: "1.0.0", Location: "/src/app/node_modules/kill-port"},
		scanner.Issue{Kind: scanner.KindForensicMatch, Version: scanner.UnknownVersion, Location: "/src/app/setup_bun.js", Detail: "CRITICAL: loader"},
	)

	var buf bytes.Buffer
	Render(&buf, r, RenderOptions{})
	out := buf.String()
	assert.Contains(t, out, "[WILDCARD_MATCH] (1)")
	assert.Contains(t, out, "[CRITICAL] left-pad@9.9.9")
	assert.Contains(t, out, "[CRITICAL] artifact")
	assert.Contains(t, out, "kill-port@1.0.0")
	assert.Contains(t, out, "2 CRITICAL, 0 WARNING FINDINGS")
	assert.NotContains(t, out, "\033[")

	buf.Reset()
	Render(&buf, r, RenderOptions{Quiet: true, Color: true})
	assert.NotContains(t, buf.String(), "kill-port")
	assert.Contains(t, buf.String(), "\033[31m")
}

func TestRenderClean(t *testing.T) {
	r := sampleReport()
	r.Interrupted = true

	var buf bytes.Buffer
	Render(&buf, r, RenderOptions{})
	assert.Contains(t, buf.String(), "NO INDICATORS OF COMPROMISE FOUND")
	assert.Contains(t, buf.String(), "results are partial")
}

func TestWriteCSV(t *testing.T) {
	r := sampleReport(scanner.Issue{Kind: scanner.KindCriticalScript, Package: "evil", Version: "1.0.0", Location: "/p", Detail: `postinstall [remote-code-execution]: curl "x" | sh`})

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, r))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{"CRITICAL_SCRIPT", "evil", "1.0.0", "/p", `postinstall [remote-code-execution]: curl "x" | sh`}, rows[1])
}

func TestWriteJSON(t *testing.T) {
	r := sampleReport(scanner.Issue{Kind: scanner.KindVersionMatch, Package: "left-pad", Version: "1.2.3"})

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, r))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, r.ScanID, decoded["scan_id"])
	assert.Len(t, decoded["issues"], 1)
	feeds := decoded["feeds"].([]any)
	assert.Equal(t, "fallback", feeds[1].(map[string]any)["origin"])
}
