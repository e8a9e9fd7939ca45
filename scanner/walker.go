package scanner

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/karrick/godirwalk"
	log "github.com/sirupsen/logrus"
)

const installRootName = "node_modules"

// Directories under a home directory that never hold npm projects.
var skipDirs = map[string]struct{}{
	"Library": {}, "Applications": {}, "Movies": {}, "Music": {},
	"Photos": {}, "Pictures": {}, "Pods": {}, "vendor": {},
}

// entry is a directory entry with symlinks already resolved.
type entry struct {
	name  string
	path  string
	isDir bool
}

// readDir lists dir in name order. Symlinked entries are replaced by their
// real targets, or dropped when the target may not be followed.
func (c *ScanContext) readDir(dir string) ([]entry, error) {
	dirents, err := godirwalk.ReadDirents(dir, nil)
	if err != nil {
		return nil, err
	}
	sort.Sort(dirents)

	out := make([]entry, 0, len(dirents))
	for _, de := range dirents {
		p := filepath.Join(dir, de.Name())
		if _, err := ValidatePath(p, ""); err != nil {
			c.Stats.Errors.Add(1)
			log.Debugf("skipping %s: %v", p, err)
			continue
		}
		e := entry{name: de.Name(), path: p, isDir: de.IsDir()}
		if de.IsSymlink() {
			real, info, ok := c.followSymlink(p)
			if !ok {
				continue
			}
			e.path = real
			e.isDir = info.IsDir()
			if !e.isDir && !info.Mode().IsRegular() {
				continue
			}
		} else if !e.isDir && !de.IsRegular() {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// visit scans one ordinary directory and recurses into its children.
func (c *ScanContext) visit(ctx context.Context, dir string, depth int) {
	if ctx.Err() != nil || c.exhausted() || depth > c.maxDepth() {
		return
	}
	if filepath.Base(dir) == installRootName {
		c.scanInstallRoot(ctx, dir, depth)
		return
	}
	c.Stats.Directories.Add(1)

	entries, err := c.readDir(dir)
	if err != nil {
		c.Stats.Errors.Add(1)
		log.Debugf("failed to read %s: %v", dir, err)
		return
	}

	for _, e := range entries {
		if ctx.Err() != nil {
			return
		}
		if !e.isDir {
			c.Stats.Files.Add(1)
			if lockfileKindOf(e.name) != lockfileNone {
				c.checkLockfile(e.path, e.name)
			} else if _, ok := c.verifier.Lookup(e.name); ok {
				c.verifyArtifact(e.path, e.name, "", "")
			}
			continue
		}

		if desc, ok := artifactDirs[e.name]; ok {
			c.Report(Issue{
				Kind:     KindForensicMatch,
				Location: e.path,
				Detail:   string(SeverityCritical) + ": " + desc,
			})
		}
		switch {
		case e.name == installRootName:
			c.scanInstallRoot(ctx, e.path, depth+1)
		case e.name == ".github":
			c.checkWorkflows(ctx, e.path)
		case strings.HasPrefix(e.name, ".") || strings.HasPrefix(e.name, "_"):
			continue
		default:
			if _, skip := skipDirs[e.name]; skip {
				continue
			}
			c.visit(ctx, e.path, depth+1)
		}
	}
}

// scanInstallRoot scans every package in a node_modules directory,
// expanding one level of @scope directories.
func (c *ScanContext) scanInstallRoot(ctx context.Context, dir string, depth int) {
	if ctx.Err() != nil || c.exhausted() || depth > c.maxDepth() {
		return
	}
	c.Stats.Directories.Add(1)

	entries, err := c.readDir(dir)
	if err != nil {
		c.Stats.Errors.Add(1)
		log.Debugf("failed to read %s: %v", dir, err)
		return
	}

	for _, e := range entries {
		if ctx.Err() != nil || c.exhausted() {
			return
		}
		if !e.isDir {
			if e.name == ".package-lock.json" {
				c.Stats.Files.Add(1)
				c.checkLockfile(e.path, e.name)
			}
			continue
		}
		if strings.HasPrefix(e.name, ".") {
			continue
		}
		if !strings.HasPrefix(e.name, "@") {
			c.scanPackage(ctx, e.path, e.name, depth)
			continue
		}

		scoped, err := c.readDir(e.path)
		if err != nil {
			c.Stats.Errors.Add(1)
			log.Debugf("failed to read %s: %v", e.path, err)
			continue
		}
		for _, s := range scoped {
			if ctx.Err() != nil || c.exhausted() {
				return
			}
			if s.isDir {
				c.scanPackage(ctx, s.path, e.name+"/"+s.name, depth)
			}
		}
	}
}

func (c *ScanContext) verifyArtifact(path, filename, pkg, version string) {
	c.recordVerdict(c.verifier.Verify(path, filename), path, pkg, version)
}

func (c *ScanContext) recordVerdict(verdict Verdict, path, pkg, version string) {
	if !verdict.Confirmed {
		log.Debugf("dismissed %s: %s", path, verdict.Reason)
		return
	}
	c.Report(Issue{
		Kind:     KindForensicMatch,
		Package:  pkg,
		Version:  version,
		Location: path,
		Detail:   string(verdict.Severity) + ": " + verdict.Reason,
	})
}
