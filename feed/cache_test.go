package feed

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheRoundTrip(t *testing.T) {
	c := NewCache(t.TempDir(), time.Minute)
	payload := []byte("Package,Version\nleft-pad,= 1.2.3\n")

	require.NoError(t, c.Store("feed.csv", payload))

	got, ok := c.Load("feed.csv")
	require.True(t, ok)
	assert.Equal(t, payload, got)
}

func TestCacheRejectsCorruptedPayload(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir, time.Minute)
	require.NoError(t, c.Store("feed.csv", []byte("left-pad,= 1.2.3\n")))

	p := filepath.Join(dir, "feed.csv")
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	data[0] ^= 0xff
	require.NoError(t, os.WriteFile(p, data, 0o600))

	_, ok := c.Load("feed.csv")
	assert.False(t, ok)
}

func TestCacheExpires(t *testing.T) {
	c := NewCache(t.TempDir(), time.Minute)
	require.NoError(t, c.Store("feed.csv", []byte("x")))

	c.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, ok := c.Load("feed.csv")
	assert.False(t, ok)
}

func TestCacheMissingHashFile(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir, time.Minute)
	require.NoError(t, c.Store("feed.csv", []byte("x")))
	require.NoError(t, os.Remove(filepath.Join(dir, "feed.csv"+hashSuffix)))

	_, ok := c.Load("feed.csv")
	assert.False(t, ok)
}

func TestCacheStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir, time.Minute)
	require.NoError(t, c.Store("feed.csv", []byte("x")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"feed.csv", "feed.csv.sha256"}, names)
}
