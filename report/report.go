// Package report turns a finished scan into summaries, terminal output,
// exports and an exit status.
package report

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"npm-ioc-scanner/feed"
	"npm-ioc-scanner/scanner"
)

// Critical issue kinds fail a "critical" threshold; warning kinds fail a
// "warning" threshold. SAFE_MATCH is an audit record and never fails.
var (
	CriticalKinds = []scanner.Kind{
		scanner.KindForensicMatch,
		scanner.KindCriticalScript,
		scanner.KindVersionMatch,
		scanner.KindWildcardMatch,
		scanner.KindLockfileHit,
		scanner.KindLockfileWildcard,
	}
	WarningKinds = append(slices.Clone(CriticalKinds),
		scanner.KindScriptWarning,
		scanner.KindGhostPackage,
		scanner.KindCorruptPackage,
	)
)

// IsCritical reports whether kind belongs to the critical set.
func IsCritical(kind scanner.Kind) bool {
	return slices.Contains(CriticalKinds, kind)
}

// Summary counts issues per kind.
type Summary struct {
	Total    int                  `json:"total"`
	Critical int                  `json:"critical"`
	Warnings int                  `json:"warnings"`
	ByKind   map[scanner.Kind]int `json:"by_kind"`
}

// Summarize tallies issues.
func Summarize(issues []scanner.Issue) Summary {
	s := Summary{ByKind: make(map[scanner.Kind]int)}
	for _, issue := range issues {
		s.Total++
		s.ByKind[issue.Kind]++
		switch {
		case IsCritical(issue.Kind):
			s.Critical++
		case slices.Contains(WarningKinds, issue.Kind):
			s.Warnings++
		}
	}
	return s
}

// Report is everything a scan produced.
type Report struct {
	ScanID      string              `json:"scan_id"`
	StartedAt   time.Time           `json:"started_at"`
	Duration    time.Duration       `json:"duration_ns"`
	Roots       []string            `json:"roots"`
	Feeds       []feed.SourceResult `json:"feeds"`
	Denylisted  int                 `json:"denylisted_packages"`
	Stats       scanner.Counts      `json:"stats"`
	Summary     Summary             `json:"summary"`
	Issues      []scanner.Issue     `json:"issues"`
	Interrupted bool                `json:"interrupted"`
}

// New builds a report from a finished or interrupted scan.
func New(sc *scanner.ScanContext, feeds []feed.SourceResult, startedAt time.Time, interrupted bool) *Report {
	issues := sc.Issues()
	if issues == nil {
		issues = []scanner.Issue{}
	}
	return &Report{
		ScanID:      uuid.NewString(),
		StartedAt:   startedAt,
		Duration:    sc.Elapsed(),
		Roots:       sc.Roots(),
		Feeds:       feeds,
		Denylisted:  len(sc.Denylist),
		Stats:       sc.Stats.Snapshot(),
		Summary:     Summarize(issues),
		Issues:      issues,
		Interrupted: interrupted,
	}
}
