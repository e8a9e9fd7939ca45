package scanner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

const (
	// MaxForensicRead caps how much of a suspicious file is read.
	MaxForensicRead = 5 << 20
	// MaxRegexInput caps content handed to any pattern.
	MaxRegexInput = 10 << 20
	maxJSONKeys   = 1000
	// JSON documents up to this size are also searched for suspicious keys
	// at any nesting level.
	maxSerializedScan = 64 << 10
)

// Severity is a forensic rule's confidence tier.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
)

// Rule describes how to confirm a suspicious file. The concrete rule types
// are NameOnlyRule, TextRule and JSONRule.
type Rule interface {
	Severity() Severity
	Describe() string
}

// NameOnlyRule confirms on the file name alone.
type NameOnlyRule struct {
	Description string
}

func (r NameOnlyRule) Severity() Severity { return SeverityCritical }
func (r NameOnlyRule) Describe() string   { return r.Description }

// Pattern is a named content pattern.
type Pattern struct {
	Name string
	Re   *regexp.Regexp
}

// TextRule confirms a script file when an indicator matches and no safe
// pattern does.
type TextRule struct {
	Description  string
	Indicators   []Pattern
	SafePatterns []Pattern
}

func (r TextRule) Severity() Severity { return SeverityHigh }
func (r TextRule) Describe() string   { return r.Description }

// JSONRule confirms a JSON file carrying a suspicious key, unless a safe key
// marks it as a known tool's file.
type JSONRule struct {
	Description  string
	RequiredKeys []string
	SafeKeys     []string
}

func (r JSONRule) Severity() Severity { return SeverityHigh }
func (r JSONRule) Describe() string   { return r.Description }

// Verdict is the outcome of verifying one file.
type Verdict struct {
	Confirmed bool
	Reason    string
	Severity  Severity
}

// Verifier maps file names to forensic rules. Lookup is case-insensitive.
type Verifier struct {
	rules map[string]Rule
}

// NewVerifier returns a verifier for rules keyed by file name.
func NewVerifier(rules map[string]Rule) *Verifier {
	v := &Verifier{rules: make(map[string]Rule, len(rules))}
	for name, rule := range rules {
		v.rules[strings.ToLower(name)] = rule
	}
	return v
}

// DefaultVerifier returns a verifier loaded with the built-in rules.
func DefaultVerifier() *Verifier {
	return NewVerifier(defaultRules)
}

// Lookup returns the rule for filename.
func (v *Verifier) Lookup(filename string) (Rule, bool) {
	r, ok := v.rules[strings.ToLower(filename)]
	return r, ok
}

// Verify decides whether the file at path, named filename, is a confirmed
// artifact. Read and parse failures yield an unconfirmed verdict.
func (v *Verifier) Verify(path, filename string) Verdict {
	rule, ok := v.Lookup(filename)
	if !ok {
		return Verdict{Reason: "no forensic rule"}
	}
	if _, err := ValidatePath(path, ""); err != nil {
		return Verdict{Reason: fmt.Sprintf("invalid path: %v", err), Severity: rule.Severity()}
	}

	switch r := rule.(type) {
	case NameOnlyRule:
		return Verdict{Confirmed: true, Reason: r.Description, Severity: SeverityCritical}
	case TextRule:
		return verifyText(path, r)
	case JSONRule:
		return verifyJSON(path, r)
	default:
		return Verdict{Reason: fmt.Sprintf("unsupported rule type %T", rule), Severity: rule.Severity()}
	}
}

// VerifyWorkflow verifies a file inside .github/workflows. Files without a
// rule of their own are checked against the workflow indicators.
func (v *Verifier) VerifyWorkflow(path, filename string) Verdict {
	if _, ok := v.Lookup(filename); ok {
		return v.Verify(path, filename)
	}
	if _, err := ValidatePath(path, ""); err != nil {
		return Verdict{Reason: fmt.Sprintf("invalid path: %v", err), Severity: SeverityHigh}
	}
	return verifyText(path, workflowRule)
}

func readCapped(path string, limit int64) ([]byte, bool, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, false, err
	}
	if !info.Mode().IsRegular() {
		return nil, false, fmt.Errorf("not a regular file")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, limit))
	if err != nil {
		return nil, false, err
	}
	return data, info.Size() > limit, nil
}

func verifyText(path string, r TextRule) Verdict {
	data, _, err := readCapped(path, MaxForensicRead)
	if err != nil {
		return Verdict{Reason: fmt.Sprintf("unreadable: %v", err), Severity: SeverityHigh}
	}
	if len(data) > MaxRegexInput {
		data = data[:MaxRegexInput]
	}

	for _, p := range r.SafePatterns {
		if p.Re.Match(data) {
			return Verdict{Reason: "looks legitimate: " + p.Name, Severity: SeverityHigh}
		}
	}
	for _, p := range r.Indicators {
		if p.Re.Match(data) {
			return Verdict{Confirmed: true, Reason: fmt.Sprintf("%s (%s)", r.Description, p.Name), Severity: SeverityHigh}
		}
	}
	return Verdict{Reason: "no malicious indicators", Severity: SeverityHigh}
}

func verifyJSON(path string, r JSONRule) Verdict {
	data, truncated, err := readCapped(path, MaxForensicRead)
	if err != nil {
		return Verdict{Reason: fmt.Sprintf("unreadable: %v", err), Severity: SeverityHigh}
	}
	if truncated {
		return Verdict{Reason: "too large to inspect", Severity: SeverityHigh}
	}

	keys, err := topLevelKeys(data, maxJSONKeys)
	if err != nil {
		return Verdict{Reason: fmt.Sprintf("not a JSON object: %v", err), Severity: SeverityHigh}
	}

	for _, k := range r.SafeKeys {
		if _, ok := keys[strings.ToLower(k)]; ok {
			return Verdict{Reason: "legitimate tool signature: " + k, Severity: SeverityHigh}
		}
	}
	for _, k := range r.RequiredKeys {
		if _, ok := keys[strings.ToLower(k)]; ok {
			return Verdict{Confirmed: true, Reason: fmt.Sprintf("%s (key %q)", r.Description, k), Severity: SeverityHigh}
		}
	}
	if len(data) <= maxSerializedScan {
		lower := bytes.ToLower(data)
		for _, k := range r.RequiredKeys {
			if bytes.Contains(lower, []byte(`"`+strings.ToLower(k)+`"`)) {
				return Verdict{Confirmed: true, Reason: fmt.Sprintf("%s (nested key %q)", r.Description, k), Severity: SeverityHigh}
			}
		}
	}
	return Verdict{Reason: "benign JSON shape", Severity: SeverityHigh}
}

// topLevelKeys returns the lower-cased keys of a JSON object, reading at most
// limit of them.
func topLevelKeys(data []byte, limit int) (map[string]struct{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("top-level value is not an object")
	}

	keys := make(map[string]struct{})
	for dec.More() && len(keys) < limit {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
		keys[strings.ToLower(key)] = struct{}{}
	}
	return keys, nil
}
