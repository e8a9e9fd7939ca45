package scanner

import (
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"npm-ioc-scanner/feed"
)

type pnpmLockfile struct {
	Packages map[string]pnpmPackage `yaml:"packages"`
}

type pnpmPackage struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// MatchPNPMLockfile checks the packages section of a pnpm-lock.yaml. Keys are
// accepted in the v5 (/name/1.2.3), v6 (/name@1.2.3) and v9 (name@1.2.3)
// forms, with peer dependency suffixes removed.
func MatchPNPMLockfile(data []byte, deny feed.Denylist, location string) ([]Issue, error) {
	var lock pnpmLockfile
	if err := yaml.Unmarshal(data, &lock); err != nil {
		return nil, errors.Wrap(err, "failed to parse pnpm lockfile")
	}

	var issues []Issue
	for _, key := range sortedKeys(lock.Packages) {
		name, version, ok := parsePNPMKey(key)
		if pkg := lock.Packages[key]; pkg.Name != "" && pkg.Version != "" {
			name, version, ok = pkg.Name, pkg.Version, true
		}
		if !ok {
			continue
		}
		if issue, hit := lockfileIssue(deny, name, version, location); hit {
			issues = append(issues, issue)
		}
	}
	return issues, nil
}

func parsePNPMKey(key string) (string, string, bool) {
	key = strings.TrimPrefix(key, "/")
	if i := strings.IndexByte(key, '('); i >= 0 {
		key = key[:i]
	}

	if at := strings.LastIndex(key, "@"); at > 0 {
		name, version := key[:at], key[at+1:]
		if feed.ValidPackageName(name) && version != "" {
			return name, version, true
		}
	}

	slash := strings.LastIndex(key, "/")
	if slash <= 0 {
		return "", "", false
	}
	name, version := key[:slash], key[slash+1:]
	if i := strings.IndexByte(version, '_'); i >= 0 {
		version = version[:i]
	}
	if !feed.ValidPackageName(name) || version == "" {
		return "", "", false
	}
	return name, version, true
}
