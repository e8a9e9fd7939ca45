package scanner

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	MaxPathLength  = 4096
	MaxSymlinkHops = 3
)

var (
	ErrNullByte     = errors.New("path contains a null byte")
	ErrPathTooLong  = errors.New("path exceeds maximum length")
	ErrOutsidePath  = errors.New("path is outside the allowed base directory")
	ErrSymlinkDepth = errors.New("too many levels of symbolic links")
)

// ValidatePath returns the absolute form of p after rejecting null bytes and
// overlong paths. When base is non-empty the result must also lie within it.
func ValidatePath(p, base string) (string, error) {
	if strings.ContainsRune(p, 0) {
		return "", ErrNullByte
	}
	if len(p) > MaxPathLength {
		return "", ErrPathTooLong
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve %q", p)
	}
	if len(abs) > MaxPathLength {
		return "", ErrPathTooLong
	}
	if base != "" {
		baseAbs, err := filepath.Abs(base)
		if err != nil {
			return "", errors.Wrapf(err, "failed to resolve %q", base)
		}
		if !within(abs, baseAbs) {
			return "", ErrOutsidePath
		}
	}
	return abs, nil
}

func within(p, root string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// resolveSymlink follows the link at p for at most MaxSymlinkHops hops and
// returns the first non-link target.
func resolveSymlink(p string) (string, error) {
	cur := p
	for hop := 0; hop < MaxSymlinkHops; hop++ {
		target, err := os.Readlink(cur)
		if err != nil {
			return "", err
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(cur), target)
		}
		target = filepath.Clean(target)
		if _, err := ValidatePath(target, ""); err != nil {
			return "", err
		}
		info, err := os.Lstat(target)
		if err != nil {
			return "", err
		}
		if info.Mode()&os.ModeSymlink == 0 {
			return target, nil
		}
		cur = target
	}
	return "", ErrSymlinkDepth
}

// followSymlink resolves the link at p and returns its real target if that
// target lies inside one of the scan roots. Anything else is skipped and
// counted.
func (c *ScanContext) followSymlink(p string) (string, os.FileInfo, bool) {
	target, err := resolveSymlink(p)
	if err != nil {
		c.Stats.SymlinksSkipped.Add(1)
		log.Debugf("skipping symlink %s: %v", p, err)
		return "", nil, false
	}
	real, err := filepath.EvalSymlinks(target)
	if err != nil {
		c.Stats.SymlinksSkipped.Add(1)
		log.Debugf("skipping symlink %s: %v", p, err)
		return "", nil, false
	}
	if !c.withinRoots(real) {
		c.Stats.SymlinksSkipped.Add(1)
		log.Debugf("skipping symlink %s -> %s outside scan roots", p, real)
		return "", nil, false
	}
	info, err := os.Stat(real)
	if err != nil {
		c.Stats.SymlinksSkipped.Add(1)
		return "", nil, false
	}
	return real, info, true
}

func (c *ScanContext) withinRoots(p string) bool {
	for _, root := range c.roots {
		if within(p, root) {
			return true
		}
	}
	return false
}
