package feed

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// MaxStructuredEntries bounds how many packages a structured feed may contribute.
const MaxStructuredEntries = 100000

const maxPackageNameLen = 214

// Capitals are accepted for legacy packages such as JSONStream that predate
// the lowercase rule and are still installable.
var validPackageNamePattern = regexp.MustCompile(`^(@[a-zA-Z0-9-~][a-zA-Z0-9-._~]*/)?[a-zA-Z0-9-~][a-zA-Z0-9-._~]*$`)

// ValidPackageName reports whether name is a syntactically valid npm package
// name, optionally scoped as @scope/name.
func ValidPackageName(name string) bool {
	if name == "" || len(name) > maxPackageNameLen {
		return false
	}
	return validPackageNamePattern.MatchString(name)
}

// ParseDelimited parses a "Package,Version" feed where the version column is a
// "||"-joined list such as "= 1.2.3 || = 1.2.4". Rows with an invalid package
// name are skipped. A row with no usable version, or a literal "*", is
// recorded as a wildcard.
func ParseDelimited(r io.Reader) (Denylist, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	deny := make(Denylist)
	skipped := 0
	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if _, ok := err.(*csv.ParseError); ok {
				skipped++
				continue
			}
			return nil, errors.Wrap(err, "failed to read delimited feed")
		}
		if len(record) == 0 {
			continue
		}

		name := strings.TrimSpace(record[0])
		if first {
			first = false
			if strings.EqualFold(name, "package") || strings.EqualFold(name, "name") {
				continue
			}
		}
		if strings.HasPrefix(name, "#") || name == "" {
			continue
		}
		if !ValidPackageName(name) {
			skipped++
			continue
		}

		var versions []string
		if len(record) >= 2 {
			versions = splitVersionList(record[1])
		}
		if len(versions) == 0 {
			deny.Add(name, Wildcard)
			continue
		}
		for _, v := range versions {
			deny.Add(name, v)
		}
	}

	if skipped > 0 {
		log.Debugf("delimited feed: skipped %d malformed rows", skipped)
	}
	return deny, nil
}

// splitVersionList splits "= 1.0.0 || =1.0.1" into ["1.0.0", "1.0.1"].
func splitVersionList(field string) []string {
	var out []string
	for _, part := range strings.Split(field, "||") {
		v := strings.Trim(strings.TrimSpace(part), "=<>^~\"' \t")
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

type structuredEntry struct {
	Versions []string `json:"versions"`
}

// ParseStructured parses a JSON object feed mapping package names to either a
// version array or an object with a "versions" array. Packages without an
// explicit version list are wildcard-compromised. At most
// MaxStructuredEntries entries are read, in document order.
func ParseStructured(data []byte) (Denylist, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read structured feed")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("structured feed must be a JSON object, got %v", tok)
	}

	deny := make(Denylist)
	entries := 0
	skipped := 0
	for dec.More() {
		if entries >= MaxStructuredEntries {
			log.Warnf("structured feed: entry cap %d reached, ignoring the rest", MaxStructuredEntries)
			break
		}
		keyTok, err := dec.Token()
		if err != nil {
			return nil, errors.Wrap(err, "failed to read structured feed key")
		}
		name, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, errors.Wrapf(err, "failed to read structured feed entry %q", name)
		}
		entries++

		if !ValidPackageName(name) {
			skipped++
			continue
		}

		versions := structuredVersions(raw)
		if len(versions) == 0 {
			deny.Add(name, Wildcard)
			continue
		}
		for _, v := range versions {
			deny.Add(name, v)
		}
	}

	if skipped > 0 {
		log.Debugf("structured feed: skipped %d malformed entries", skipped)
	}
	return deny, nil
}

func structuredVersions(raw json.RawMessage) []string {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return cleanVersions(list)
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return cleanVersions(strings.Split(single, "||"))
	}
	var entry structuredEntry
	if err := json.Unmarshal(raw, &entry); err == nil {
		return cleanVersions(entry.Versions)
	}
	return nil
}

func cleanVersions(in []string) []string {
	var out []string
	for _, v := range in {
		v = strings.Trim(strings.TrimSpace(v), "=<>^~\"' \t")
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
