package feed

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// DefaultTTL is how long a cached feed payload is trusted.
const DefaultTTL = 30 * time.Minute

const hashSuffix = ".sha256"

// Cache stores raw feed payloads on disk next to a SHA-256 file used to
// detect corrupted or partially written entries.
type Cache struct {
	Dir string
	TTL time.Duration

	now func() time.Time
}

// NewCache returns a cache rooted at dir. A non-positive ttl selects DefaultTTL.
func NewCache(dir string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{Dir: dir, TTL: ttl, now: time.Now}
}

// DefaultCacheDir returns the per-user cache directory for feed payloads.
func DefaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "npm-ioc-scanner")
	}
	return filepath.Join(os.TempDir(), "npm-ioc-scanner")
}

func (c *Cache) path(name string) string {
	return filepath.Join(c.Dir, filepath.Base(name))
}

// Load returns the cached payload for name if it is younger than the TTL and
// its hash file matches. Any failure is reported as a miss.
func (c *Cache) Load(name string) ([]byte, bool) {
	p := c.path(name)
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return nil, false
	}
	if c.now().Sub(info.ModTime()) >= c.TTL {
		return nil, false
	}
	if info.Size() > MaxDownloadBytes {
		return nil, false
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return nil, false
	}
	want, err := os.ReadFile(p + hashSuffix)
	if err != nil {
		return nil, false
	}
	if !bytes.Equal(bytes.TrimSpace(want), []byte(digest(data))) {
		return nil, false
	}
	return data, true
}

// Store writes data and its hash atomically: each file is written to a temp
// file in the cache directory and renamed into place. The payload is renamed
// last so a crash between the two leaves a hash mismatch, not a trusted entry.
func (c *Cache) Store(name string, data []byte) error {
	if err := os.MkdirAll(c.Dir, 0o700); err != nil {
		return errors.Wrapf(err, "failed to create cache dir %s", c.Dir)
	}
	p := c.path(name)
	if err := writeAtomic(p+hashSuffix, []byte(digest(data)+"\n")); err != nil {
		return err
	}
	return writeAtomic(p, data)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp cache file")
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "failed to write %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "failed to sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrapf(err, "failed to move cache file into place at %s", path)
	}
	return nil
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
