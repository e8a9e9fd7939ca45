package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// MaxManifestBytes caps the size of a package.json that will be parsed.
const MaxManifestBytes = 5 << 20

var errManifestTooLarge = errors.New("manifest exceeds size limit")

// Manifest is the subset of package.json the scanner reads.
type Manifest struct {
	Name    string         `json:"name"`
	Version string         `json:"version"`
	Scripts map[string]any `json:"scripts"`
}

// ReadManifest parses the package.json at path.
func ReadManifest(path string) (*Manifest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, errors.Errorf("%s is not a regular file", path)
	}
	if info.Size() > MaxManifestBytes {
		return nil, errManifestTooLarge
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	return &m, nil
}

// readManifest reads the package.json at p. A symlinked manifest is only
// read when its target lies inside the scan roots.
func (c *ScanContext) readManifest(p string) (*Manifest, error) {
	info, err := os.Lstat(p)
	if err != nil {
		return nil, err
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return ReadManifest(p)
	}
	target, err := resolveSymlink(p)
	if err != nil {
		return nil, errors.Wrap(err, "manifest symlink")
	}
	real, err := filepath.EvalSymlinks(target)
	if err != nil {
		return nil, errors.Wrap(err, "manifest symlink")
	}
	if !c.withinRoots(real) {
		return nil, errors.Wrapf(ErrOutsidePath, "manifest symlink to %s", real)
	}
	return ReadManifest(real)
}

// scanPackage checks one installed package: forensic artifacts among its
// files, its manifest, colocated lockfiles and any nested install root.
func (c *ScanContext) scanPackage(ctx context.Context, dir, name string, depth int) {
	if ctx.Err() != nil || c.exhausted() {
		return
	}
	c.Stats.Packages.Add(1)

	entries, err := c.readDir(dir)
	if err != nil {
		c.Stats.Errors.Add(1)
		log.Debugf("failed to read %s: %v", dir, err)
	}

	version := ""
	manifestPath := filepath.Join(dir, "package.json")
	m, err := c.readManifest(manifestPath)
	watched := c.Denylist.Watches(name)
	switch {
	case err == nil:
		version = m.Version
		for _, issue := range AnalyzeScripts(m.Scripts, name, version, manifestPath) {
			c.Report(issue)
		}
		c.matchVersion(name, version, dir)
	case !watched:
		log.Debugf("ignoring unreadable manifest for %s: %v", name, err)
	case os.IsNotExist(errors.Cause(err)):
		c.Report(Issue{
			Kind:     KindGhostPackage,
			Package:  name,
			Location: dir,
			Detail:   "package directory present without package.json",
		})
	default:
		c.Report(Issue{
			Kind:     KindCorruptPackage,
			Package:  name,
			Location: manifestPath,
			Detail:   fmt.Sprintf("unreadable manifest: %v", err),
		})
	}

	var nested string
	for _, e := range entries {
		if ctx.Err() != nil {
			return
		}
		if e.isDir {
			if e.name == installRootName {
				nested = e.path
			}
			continue
		}
		c.Stats.Files.Add(1)
		if lockfileKindOf(e.name) != lockfileNone {
			c.checkLockfile(e.path, e.name)
		} else if _, ok := c.verifier.Lookup(e.name); ok {
			c.verifyArtifact(e.path, e.name, name, version)
		}
	}

	if nested != "" {
		c.scanInstallRoot(ctx, nested, depth+1)
	}
}

// matchVersion records the denylist verdict for an installed package. A
// wildcard entry wins over an exact version match.
func (c *ScanContext) matchVersion(name, version, location string) {
	vs, ok := c.Denylist.Lookup(name)
	if !ok {
		return
	}
	issue := Issue{Package: name, Version: version, Location: location}
	switch {
	case vs.IsWildcard():
		issue.Kind = KindWildcardMatch
		issue.Detail = "every version of this package is compromised"
	case vs.Has(version):
		issue.Kind = KindVersionMatch
		issue.Detail = "installed version is compromised"
	default:
		issue.Kind = KindSafeMatch
		issue.Detail = "watched package, installed version not listed"
	}
	c.Report(issue)
}
