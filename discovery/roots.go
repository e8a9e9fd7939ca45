// Package discovery lists the package-manager install and cache directories
// worth scanning on a machine.
package discovery

import (
	"os"
	"path/filepath"
	"runtime"

	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

// Default returns the candidate roots for the running system.
func Default() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		log.Debugf("no home directory: %v", err)
	}
	return CandidateRoots(runtime.GOOS, home, os.Getenv)
}

// CandidateRoots returns the global install roots of npm, yarn, pnpm, bun and
// the common node version managers for goos. The result keeps the order
// below, drops duplicates and only contains directories that exist.
func CandidateRoots(goos, home string, getenv func(string) string) []string {
	var out []string
	for _, pattern := range candidates(goos, home, getenv) {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		for _, m := range matches {
			m = filepath.Clean(m)
			if slices.Contains(out, m) || !isDir(m) {
				continue
			}
			out = append(out, m)
		}
	}
	return out
}

func candidates(goos, home string, getenv func(string) string) []string {
	var c []string
	add := func(base string, elem ...string) {
		if base != "" {
			c = append(c, filepath.Join(append([]string{base}, elem...)...))
		}
	}
	orDefault := func(env, fallback string) string {
		if v := getenv(env); v != "" {
			return v
		}
		return fallback
	}
	under := func(base string, elem ...string) string {
		if base == "" {
			return ""
		}
		return filepath.Join(append([]string{base}, elem...)...)
	}
	homeDir := func(elem ...string) string { return under(home, elem...) }

	if goos == "windows" {
		appData := getenv("APPDATA")
		localAppData := getenv("LOCALAPPDATA")
		add(getenv("NPM_CONFIG_PREFIX"), "node_modules")
		add(appData, "npm", "node_modules")
		add(getenv("NVM_HOME"), "v*", "node_modules")
		add(orDefault("VOLTA_HOME", under(localAppData, "Volta")), "tools", "image", "node", "*", "node_modules")
		add(localAppData, "Yarn", "Data", "global", "node_modules")
		add(getenv("PNPM_HOME"), "global")
		add(localAppData, "pnpm", "global")
		add(homeDir(".bun"), "install", "global", "node_modules")
		return c
	}

	add(getenv("NPM_CONFIG_PREFIX"), "lib", "node_modules")
	add(homeDir(".npm-global"), "lib", "node_modules")
	add("/usr/local/lib/node_modules")
	add("/usr/lib/node_modules")
	if goos == "darwin" {
		add("/opt/homebrew/lib/node_modules")
	}
	add(orDefault("NVM_DIR", homeDir(".nvm")), "versions", "node", "*", "lib", "node_modules")
	add(orDefault("VOLTA_HOME", homeDir(".volta")), "tools", "image", "node", "*", "lib", "node_modules")
	add(orDefault("FNM_DIR", homeDir(".local", "share", "fnm")), "node-versions", "*", "installation", "lib", "node_modules")
	if goos == "darwin" {
		add(homeDir("Library", "Application Support", "fnm"), "node-versions", "*", "installation", "lib", "node_modules")
	}
	add(homeDir(".config", "yarn"), "global", "node_modules")
	add(homeDir(".yarn"), "berry")
	add(getenv("PNPM_HOME"), "global")
	add(homeDir(".local", "share", "pnpm"), "global")
	if goos == "darwin" {
		add(homeDir("Library", "pnpm"), "global")
	}
	add(homeDir(".bun"), "install", "global", "node_modules")
	return c
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
