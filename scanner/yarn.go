package scanner

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"

	"npm-ioc-scanner/feed"
)

const maxYarnLine = 1 << 20

// MatchYarnLockfile checks a yarn.lock in a single pass. An unindented
// header line such as `"left-pad@^1.0.0", left-pad@^1.1.0:` opens an entry;
// the entry's version line, classic `version "1.2.3"` or berry
// `version: 1.2.3`, is checked immediately and closes it.
func MatchYarnLockfile(r io.Reader, deny feed.Denylist, location string) ([]Issue, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxYarnLine)

	var issues []Issue
	current := ""
	for sc.Scan() {
		line := sc.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line[0] != ' ' && line[0] != '\t' {
			current = ""
			if strings.HasSuffix(line, ":") && strings.Contains(line, "@") {
				current = yarnEntryName(strings.TrimSuffix(line, ":"))
			}
			continue
		}
		if current == "" {
			continue
		}
		version, ok := yarnVersion(strings.TrimSpace(line))
		if !ok {
			continue
		}
		if issue, hit := lockfileIssue(deny, current, version, location); hit {
			issues = append(issues, issue)
		}
		current = ""
	}
	if err := sc.Err(); err != nil {
		return issues, errors.Wrap(err, "failed to read yarn lockfile")
	}
	return issues, nil
}

// yarnEntryName extracts the package name from the first specifier of an
// entry header.
func yarnEntryName(header string) string {
	first := header
	if i := strings.IndexByte(first, ','); i >= 0 {
		first = first[:i]
	}
	first = strings.Trim(strings.TrimSpace(first), `"'`)
	at := strings.LastIndex(first, "@")
	if at <= 0 {
		return ""
	}
	name := first[:at]
	// aliases: alias@npm:left-pad@^1.0.0 installs left-pad
	if i := strings.Index(name, "@npm:"); i > 0 {
		name = name[i+len("@npm:"):]
	}
	return name
}

func yarnVersion(line string) (string, bool) {
	rest, ok := strings.CutPrefix(line, "version")
	if !ok || rest == "" || (rest[0] != ' ' && rest[0] != ':') {
		return "", false
	}
	rest = strings.TrimPrefix(rest, ":")
	v := strings.Trim(strings.TrimSpace(rest), `"'`)
	return v, v != ""
}
