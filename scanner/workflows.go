package scanner

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

// checkWorkflows verifies the files directly inside githubDir/workflows.
// Nothing else under .github is visited.
func (c *ScanContext) checkWorkflows(ctx context.Context, githubDir string) {
	dir := filepath.Join(githubDir, "workflows")
	info, err := os.Lstat(dir)
	if err != nil || !info.IsDir() {
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
		if e.isDir {
			continue
		}
		c.Stats.Files.Add(1)
		if _, ok := c.verifier.Lookup(e.name); !ok && !isWorkflowFile(e.name) {
			continue
		}
		c.recordVerdict(c.verifier.VerifyWorkflow(e.path, e.name), e.path, "", "")
	}
}

func isWorkflowFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yml" || ext == ".yaml"
}
