package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"npm-ioc-scanner/scanner"
)

type palette struct {
	reset, red, green, yellow, blue, purple, cyan, bold string
}

var ansi = palette{
	reset:  "\033[0m",
	red:    "\033[31m",
	green:  "\033[32m",
	yellow: "\033[33m",
	blue:   "\033[34m",
	purple: "\033[35m",
	cyan:   "\033[36m",
	bold:   "\033[1m",
}

// RenderOptions controls terminal output.
type RenderOptions struct {
	Color bool
	// Quiet omits SAFE_MATCH audit records.
	Quiet bool
}

// Display order: critical kinds, then warnings, then audit records.
var kindOrder = append(append([]scanner.Kind{}, WarningKinds...), scanner.KindSafeMatch)

// Render writes a human readable report to w.
func Render(w io.Writer, r *Report, opts RenderOptions) {
	c := palette{}
	if opts.Color {
		c = ansi
	}
	rule := strings.Repeat("═", 70)

	fmt.Fprintf(w, "\n%s%s%s%s\n", c.bold, c.cyan, rule, c.reset)
	fmt.Fprintf(w, "%s%s  NPM IOC SCAN  %s%s\n", c.bold, c.cyan, r.ScanID, c.reset)
	fmt.Fprintf(w, "%s%s%s%s\n\n", c.bold, c.cyan, rule, c.reset)

	if len(r.Feeds) > 0 {
		fmt.Fprintf(w, "%s[INFO]%s Threat feeds (%d packages denylisted):\n", c.blue, c.reset, r.Denylisted)
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, f := range r.Feeds {
			fmt.Fprintf(tw, "  %s\t%s\t%d packages\n", f.Name, f.Origin, f.Entries)
		}
		_ = tw.Flush()
	}
	for _, root := range r.Roots {
		fmt.Fprintf(w, "%s[INFO]%s Scanned root: %s\n", c.blue, c.reset, root)
	}
	fmt.Fprintf(w, "%s[INFO]%s %d directories, %d packages, %d files, %d lockfiles in %s (%d errors, %d symlinks skipped)\n",
		c.blue, c.reset,
		r.Stats.Directories, r.Stats.Packages, r.Stats.Files, r.Stats.Lockfiles,
		r.Duration.Round(time.Millisecond), r.Stats.Errors, r.Stats.SymlinksSkipped)

	if r.Interrupted {
		fmt.Fprintf(w, "\n%s%s[WARN] Scan interrupted, results are partial%s\n", c.bold, c.yellow, c.reset)
	}

	byKind := make(map[scanner.Kind][]scanner.Issue)
	for _, issue := range r.Issues {
		byKind[issue.Kind] = append(byKind[issue.Kind], issue)
	}

	for _, kind := range kindOrder {
		issues := byKind[kind]
		if len(issues) == 0 || (opts.Quiet && kind == scanner.KindSafeMatch) {
			continue
		}
		fmt.Fprintf(w, "\n%s%s[%s] (%d)%s\n", c.bold, c.purple, kind, len(issues), c.reset)
		fmt.Fprintln(w, strings.Repeat("─", 70))
		for _, issue := range issues {
			severity, color := severityOf(kind, c)
			fmt.Fprintf(w, "%s[%s]%s %s\n", color, severity, c.reset, packageLabel(issue))
			fmt.Fprintf(w, "  %sLocation:%s %s\n", c.cyan, c.reset, issue.Location)
			if issue.Detail != "" {
				fmt.Fprintf(w, "  %sDetail:%s %s\n", c.cyan, c.reset, issue.Detail)
			}
		}
	}

	fmt.Fprintln(w)
	if r.Summary.Critical+r.Summary.Warnings == 0 {
		fmt.Fprintf(w, "%s%s  NO INDICATORS OF COMPROMISE FOUND%s\n", c.bold, c.green, c.reset)
	} else {
		color := c.yellow
		if r.Summary.Critical > 0 {
			color = c.red
		}
		fmt.Fprintf(w, "%s%s  %d CRITICAL, %d WARNING FINDINGS%s\n", c.bold, color, r.Summary.Critical, r.Summary.Warnings, c.reset)
	}
	fmt.Fprintf(w, "%s%s%s%s\n", c.bold, c.cyan, rule, c.reset)
}

func severityOf(kind scanner.Kind, c palette) (string, string) {
	switch {
	case IsCritical(kind):
		return "CRITICAL", c.red
	case kind == scanner.KindSafeMatch:
		return "OK", c.green
	default:
		return "WARNING", c.yellow
	}
}

func packageLabel(issue scanner.Issue) string {
	if issue.Package == "" {
		return "artifact"
	}
	return issue.Package + "@" + issue.Version
}
