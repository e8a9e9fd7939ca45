package report

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"

	"npm-ioc-scanner/scanner"
)

// Exit codes.
const (
	ExitClean       = 0
	ExitFindings    = 1
	ExitFatal       = 2
	ExitInterrupted = 130
)

// Threshold selects which issue kinds fail a CI run.
type Threshold string

const (
	ThresholdOff      Threshold = "off"
	ThresholdCritical Threshold = "critical"
	ThresholdWarning  Threshold = "warning"
)

// ParseThreshold validates a --fail-on value.
func ParseThreshold(s string) (Threshold, error) {
	switch t := Threshold(strings.ToLower(strings.TrimSpace(s))); t {
	case ThresholdOff, ThresholdCritical, ThresholdWarning:
		return t, nil
	}
	return "", fmt.Errorf("invalid threshold %q: must be off, critical or warning", s)
}

// Kinds returns the issue kinds that exceed t.
func (t Threshold) Kinds() []scanner.Kind {
	switch t {
	case ThresholdCritical:
		return CriticalKinds
	case ThresholdWarning:
		return WarningKinds
	}
	return nil
}

// Exceeded reports whether any issue falls in t's kind set.
func (t Threshold) Exceeded(issues []scanner.Issue) bool {
	kinds := t.Kinds()
	for _, issue := range issues {
		if slices.Contains(kinds, issue.Kind) {
			return true
		}
	}
	return false
}

// ExitCode decides the process status. An interrupted run always exits
// ExitInterrupted. A threshold only applies when it was explicitly requested.
func ExitCode(issues []scanner.Issue, t Threshold, explicit, interrupted bool) int {
	if interrupted {
		return ExitInterrupted
	}
	if explicit && t.Exceeded(issues) {
		return ExitFindings
	}
	return ExitClean
}
