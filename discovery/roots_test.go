package discovery

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func mkdirs(t *testing.T, base string, dirs ...string) {
	t.Helper()
	for _, d := range dirs {
		require.NoError(t, os.MkdirAll(filepath.Join(base, d), 0o755))
	}
}

func TestCandidateRootsLinux(t *testing.T) {
	home := t.TempDir()
	mkdirs(t, home,
		".npm-global/lib/node_modules",
		".nvm/versions/node/v18.20.0/lib/node_modules",
		".nvm/versions/node/v20.11.0/lib/node_modules",
		".config/yarn/global/node_modules",
		".bun/install/global/node_modules",
	)

	got := CandidateRoots("linux", home, env(map[string]string{
		// same directory as the ~/.npm-global default
		"NPM_CONFIG_PREFIX": filepath.Join(home, ".npm-global"),
	}))

	var rel []string
	for _, p := range got {
		if strings.HasPrefix(p, home+string(filepath.Separator)) {
			rel = append(rel, filepath.ToSlash(strings.TrimPrefix(p, home+string(filepath.Separator))))
		}
	}
	assert.Equal(t, []string{
		".npm-global/lib/node_modules",
		".nvm/versions/node/v18.20.0/lib/node_modules",
		".nvm/versions/node/v20.11.0/lib/node_modules",
		".config/yarn/global/node_modules",
		".bun/install/global/node_modules",
	}, rel)
}

func TestCandidateRootsHonorsEnvironment(t *testing.T) {
	home := t.TempDir()
	nvm := t.TempDir()
	mkdirs(t, nvm, "versions/node/v22.0.0/lib/node_modules")
	mkdirs(t, home, ".nvm/versions/node/v16.0.0/lib/node_modules")

	got := CandidateRoots("linux", home, env(map[string]string{"NVM_DIR": nvm}))
	assert.Contains(t, got, filepath.Join(nvm, "versions/node/v22.0.0/lib/node_modules"))
	assert.NotContains(t, got, filepath.Join(home, ".nvm/versions/node/v16.0.0/lib/node_modules"))
}

func TestCandidateRootsWindows(t *testing.T) {
	appData := t.TempDir()
	mkdirs(t, appData, "npm/node_modules")

	got := CandidateRoots("windows", "", env(map[string]string{"APPDATA": appData}))
	assert.Equal(t, []string{filepath.Join(appData, "npm", "node_modules")}, got)
}

func TestCandidateRootsEmptyHome(t *testing.T) {
	for _, p := range CandidateRoots("linux", "", env(nil)) {
		assert.True(t, filepath.IsAbs(p))
	}
}
