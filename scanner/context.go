// Package scanner walks project and system trees looking for compromised npm
// packages, known malware artifacts, dangerous lifecycle scripts and
// denylisted lockfile entries.
package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"npm-ioc-scanner/feed"
)

const (
	// HardMaxDepth is the traversal depth no option can exceed.
	HardMaxDepth    = 10
	DefaultMaxDepth = 5
	// MaxDirectories and MaxPackages stop further traversal once reached.
	MaxDirectories = 100000
	MaxPackages    = 50000
)

// UnknownVersion is recorded when a finding has no version to report.
const UnknownVersion = "UNKNOWN"

// Kind classifies an Issue.
type Kind string

const (
	KindForensicMatch    Kind = "FORENSIC_MATCH"
	KindCriticalScript   Kind = "CRITICAL_SCRIPT"
	KindScriptWarning    Kind = "SCRIPT_WARNING"
	KindVersionMatch     Kind = "VERSION_MATCH"
	KindWildcardMatch    Kind = "WILDCARD_MATCH"
	KindSafeMatch        Kind = "SAFE_MATCH"
	KindGhostPackage     Kind = "GHOST_PACKAGE"
	KindCorruptPackage   Kind = "CORRUPT_PACKAGE"
	KindLockfileHit      Kind = "LOCKFILE_HIT"
	KindLockfileWildcard Kind = "LOCKFILE_WILDCARD"
)

// Issue is one finding. Issues are appended to the ledger and never modified.
type Issue struct {
	Kind     Kind   `json:"kind"`
	Package  string `json:"package"`
	Version  string `json:"version"`
	Location string `json:"location"`
	Detail   string `json:"detail"`
}

// Stats holds the run counters. They double as the directory and package
// ceilings.
type Stats struct {
	Directories     atomic.Int64
	Packages        atomic.Int64
	Files           atomic.Int64
	Lockfiles       atomic.Int64
	Errors          atomic.Int64
	SymlinksSkipped atomic.Int64
}

// Counts is a point-in-time copy of Stats.
type Counts struct {
	Directories     int64 `json:"directories"`
	Packages        int64 `json:"packages"`
	Files           int64 `json:"files"`
	Lockfiles       int64 `json:"lockfiles"`
	Errors          int64 `json:"errors"`
	SymlinksSkipped int64 `json:"symlinks_skipped"`
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() Counts {
	return Counts{
		Directories:     s.Directories.Load(),
		Packages:        s.Packages.Load(),
		Files:           s.Files.Load(),
		Lockfiles:       s.Lockfiles.Load(),
		Errors:          s.Errors.Load(),
		SymlinksSkipped: s.SymlinksSkipped.Load(),
	}
}

// Options bound a scan.
type Options struct {
	MaxDepth       int
	MaxDirectories int
	MaxPackages    int
}

// DefaultOptions returns the standard scan bounds.
func DefaultOptions() Options {
	return Options{
		MaxDepth:       DefaultMaxDepth,
		MaxDirectories: MaxDirectories,
		MaxPackages:    MaxPackages,
	}
}

// ScanContext carries all state of one scan run: the denylist, the limits,
// the counters and the issue ledger. It is passed to every traversal step
// instead of living in package globals.
type ScanContext struct {
	Denylist feed.Denylist
	Stats    Stats

	opts     Options
	verifier *Verifier
	roots    []string
	elapsed  time.Duration

	mu     sync.Mutex
	issues []Issue

	dirLimit sync.Once
	pkgLimit sync.Once
}

// New returns a ScanContext matching against deny. Options outside their
// valid range are clamped.
func New(deny feed.Denylist, opts Options) *ScanContext {
	if deny == nil {
		deny = make(feed.Denylist)
	}
	if opts.MaxDepth < 0 {
		opts.MaxDepth = 0
	}
	if opts.MaxDepth > HardMaxDepth {
		opts.MaxDepth = HardMaxDepth
	}
	if opts.MaxDirectories <= 0 || opts.MaxDirectories > MaxDirectories {
		opts.MaxDirectories = MaxDirectories
	}
	if opts.MaxPackages <= 0 || opts.MaxPackages > MaxPackages {
		opts.MaxPackages = MaxPackages
	}
	return &ScanContext{
		Denylist: deny,
		opts:     opts,
		verifier: DefaultVerifier(),
	}
}

// Scan validates every root and then walks them in order. Invalid or missing
// roots abort before any traversal starts. When ctx is cancelled the walk
// unwinds and ctx.Err() is returned; issues found so far stay in the ledger.
func (c *ScanContext) Scan(ctx context.Context, roots ...string) error {
	resolved := make([]string, 0, len(roots))
	for _, root := range roots {
		p, err := ValidatePath(root, "")
		if err != nil {
			return errors.Wrapf(err, "invalid scan root %q", root)
		}
		real, err := filepath.EvalSymlinks(p)
		if err != nil {
			return errors.Wrapf(err, "scan root %s", p)
		}
		info, err := os.Stat(real)
		if err != nil {
			return errors.Wrapf(err, "scan root %s", real)
		}
		if !info.IsDir() {
			return errors.Errorf("scan root %s is not a directory", real)
		}
		if !containsPath(resolved, real) {
			resolved = append(resolved, real)
		}
	}
	c.roots = append(c.roots, resolved...)

	start := time.Now()
	defer func() { c.elapsed += time.Since(start) }()

	for _, root := range resolved {
		if ctx.Err() != nil {
			break
		}
		log.Infof("scanning %s (max depth %d)", root, c.opts.MaxDepth)
		c.visit(ctx, root, 0)
	}
	return ctx.Err()
}

// Report appends issue to the ledger.
func (c *ScanContext) Report(issue Issue) {
	if issue.Version == "" {
		issue.Version = UnknownVersion
	}
	c.mu.Lock()
	c.issues = append(c.issues, issue)
	c.mu.Unlock()
}

// Issues returns a copy of the ledger in discovery order.
func (c *ScanContext) Issues() []Issue {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Issue, len(c.issues))
	copy(out, c.issues)
	return out
}

// Roots returns the resolved scan roots.
func (c *ScanContext) Roots() []string {
	return append([]string(nil), c.roots...)
}

// Elapsed returns the total time spent walking.
func (c *ScanContext) Elapsed() time.Duration {
	return c.elapsed
}

func (c *ScanContext) maxDepth() int {
	return min(c.opts.MaxDepth, HardMaxDepth)
}

// exhausted reports whether a scan ceiling was reached, logging each ceiling
// the first time it trips.
func (c *ScanContext) exhausted() bool {
	if c.Stats.Directories.Load() >= int64(c.opts.MaxDirectories) {
		c.dirLimit.Do(func() {
			log.Warnf("directory limit of %d reached, stopping traversal", c.opts.MaxDirectories)
		})
		return true
	}
	if c.Stats.Packages.Load() >= int64(c.opts.MaxPackages) {
		c.pkgLimit.Do(func() {
			log.Warnf("package limit of %d reached, stopping traversal", c.opts.MaxPackages)
		})
		return true
	}
	return false
}

func containsPath(list []string, p string) bool {
	for _, existing := range list {
		if existing == p {
			return true
		}
	}
	return false
}
