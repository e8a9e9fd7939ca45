// Package feed acquires, caches and parses the compromised-package denylists
// the scanner matches installed packages against.
package feed

import (
	"sort"

	"github.com/Masterminds/semver/v3"
)

// Wildcard marks every version of a package as compromised.
const Wildcard = "*"

// VersionSet is the set of compromised versions for one package.
type VersionSet map[string]struct{}

// IsWildcard reports whether any version of the package is compromised.
func (vs VersionSet) IsWildcard() bool {
	_, ok := vs[Wildcard]
	return ok
}

// Has reports whether version is an exact member of the set.
func (vs VersionSet) Has(version string) bool {
	_, ok := vs[version]
	return ok
}

// Sorted returns the set's versions in lexical order.
func (vs VersionSet) Sorted() []string {
	out := make([]string, 0, len(vs))
	for v := range vs {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Denylist maps package names to compromised version sets. It is built fresh
// each run and never persisted; only the raw feed text is cached.
type Denylist map[string]VersionSet

// Add records version as compromised for name.
func (d Denylist) Add(name, version string) {
	vs, ok := d[name]
	if !ok {
		vs = make(VersionSet)
		d[name] = vs
	}
	vs[version] = struct{}{}
}

// Merge unions other into d per package.
func (d Denylist) Merge(other Denylist) {
	for name, versions := range other {
		for v := range versions {
			d.Add(name, v)
		}
	}
}

// Lookup returns the version set for name.
func (d Denylist) Lookup(name string) (VersionSet, bool) {
	vs, ok := d[name]
	return vs, ok
}

// Watches reports whether the denylist has any entry for name.
func (d Denylist) Watches(name string) bool {
	_, ok := d[name]
	return ok
}

// MatchConstraint returns the denylisted versions of name that satisfy the
// semver range constraint. Versions that are not valid semver are skipped.
func (d Denylist) MatchConstraint(name, constraint string) ([]string, error) {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return nil, err
	}
	var matched []string
	for _, raw := range d[name].Sorted() {
		if raw == Wildcard {
			continue
		}
		v, err := semver.NewVersion(raw)
		if err != nil {
			continue
		}
		if c.Check(v) {
			matched = append(matched, raw)
		}
	}
	return matched, nil
}
