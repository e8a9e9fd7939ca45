package scanner

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"npm-ioc-scanner/feed"
)

const (
	// MaxLockfileBytes is the largest lockfile that will be read.
	MaxLockfileBytes = 100 << 20
	// MaxLockfileDepth bounds descent into tree-shaped npm lockfiles.
	MaxLockfileDepth = 100
)

type lockfileKind int

const (
	lockfileNone lockfileKind = iota
	lockfileNPM
	lockfileYarn
	lockfilePNPM
)

func lockfileKindOf(name string) lockfileKind {
	switch name {
	case "package-lock.json", "npm-shrinkwrap.json", ".package-lock.json":
		return lockfileNPM
	case "yarn.lock":
		return lockfileYarn
	case "pnpm-lock.yaml":
		return lockfilePNPM
	}
	return lockfileNone
}

// checkLockfile runs the matcher for the lockfile at path. Parse failures are
// logged and otherwise ignored since lockfiles are often mid-write.
func (c *ScanContext) checkLockfile(path, name string) {
	kind := lockfileKindOf(name)
	if kind == lockfileNone {
		return
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	if info.Size() > MaxLockfileBytes {
		log.Warnf("skipping lockfile %s: %d bytes exceeds the %d byte limit", path, info.Size(), MaxLockfileBytes)
		return
	}
	c.Stats.Lockfiles.Add(1)

	var issues []Issue
	switch kind {
	case lockfileNPM:
		var data []byte
		if data, err = os.ReadFile(path); err == nil {
			issues, err = MatchNPMLockfile(data, c.Denylist, path)
		}
	case lockfileYarn:
		var f *os.File
		if f, err = os.Open(path); err == nil {
			issues, err = MatchYarnLockfile(f, c.Denylist, path)
			_ = f.Close()
		}
	case lockfilePNPM:
		var data []byte
		if data, err = os.ReadFile(path); err == nil {
			issues, err = MatchPNPMLockfile(data, c.Denylist, path)
		}
	}
	if err != nil {
		c.Stats.Errors.Add(1)
		log.Debugf("ignoring lockfile %s: %v", path, err)
	}
	for _, issue := range issues {
		c.Report(issue)
	}
}

// lockfileIssue returns the issue for a locked name@version, if any. Wildcard
// entries are checked first.
func lockfileIssue(deny feed.Denylist, name, version, location string) (Issue, bool) {
	vs, ok := deny.Lookup(name)
	if !ok {
		return Issue{}, false
	}
	switch {
	case vs.IsWildcard():
		return Issue{
			Kind:     KindLockfileWildcard,
			Package:  name,
			Version:  version,
			Location: location,
			Detail:   "lockfile pins a package whose every version is compromised",
		}, true
	case vs.Has(version):
		return Issue{
			Kind:     KindLockfileHit,
			Package:  name,
			Version:  version,
			Location: location,
			Detail:   "lockfile pins a compromised version",
		}, true
	}
	return Issue{}, false
}

type npmLockfile struct {
	LockfileVersion int                        `json:"lockfileVersion"`
	Packages        map[string]npmLockPackage  `json:"packages"`
	Dependencies    map[string]json.RawMessage `json:"dependencies"`
}

type npmLockPackage struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type npmLockDependency struct {
	Version      string                     `json:"version"`
	Dependencies map[string]json.RawMessage `json:"dependencies"`
}

// MatchNPMLockfile checks an npm lockfile. The flat "packages" map of
// lockfile v2 and v3 is preferred; v1 files are walked through their nested
// "dependencies" tree.
func MatchNPMLockfile(data []byte, deny feed.Denylist, location string) ([]Issue, error) {
	var lock npmLockfile
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, errors.Wrap(err, "failed to parse npm lockfile")
	}
	if len(lock.Packages) > 0 {
		return matchNPMPackages(lock.Packages, deny, location), nil
	}
	return matchNPMDependencies(lock.Dependencies, deny, location, 0), nil
}

func matchNPMPackages(packages map[string]npmLockPackage, deny feed.Denylist, location string) []Issue {
	var issues []Issue
	for _, key := range sortedKeys(packages) {
		if key == "" {
			continue
		}
		i := strings.LastIndex(key, installRootName+"/")
		if i < 0 {
			continue
		}
		pkg := packages[key]
		name := key[i+len(installRootName)+1:]
		if pkg.Name != "" {
			name = pkg.Name
		}
		if issue, ok := lockfileIssue(deny, name, pkg.Version, fmt.Sprintf("%s (%s)", location, key)); ok {
			issues = append(issues, issue)
		}
	}
	return issues
}

func matchNPMDependencies(deps map[string]json.RawMessage, deny feed.Denylist, location string, depth int) []Issue {
	if depth >= MaxLockfileDepth {
		return nil
	}
	var issues []Issue
	for _, name := range sortedKeys(deps) {
		var dep npmLockDependency
		if err := json.Unmarshal(deps[name], &dep); err != nil {
			continue
		}
		if issue, ok := lockfileIssue(deny, name, dep.Version, location); ok {
			issues = append(issues, issue)
		}
		if len(dep.Dependencies) > 0 {
			issues = append(issues, matchNPMDependencies(dep.Dependencies, deny, location, depth+1)...)
		}
	}
	return issues
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
