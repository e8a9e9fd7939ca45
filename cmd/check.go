package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/cobra"

	"npm-ioc-scanner/feed"
	"npm-ioc-scanner/report"
)

var checkNoCache bool

var checkCmd = &cobra.Command{
	Use:   "check <package[@version|@range]>",
	Short: "Check if a specific npm package is in the threat feeds",
	Long: `Check if a specific npm package and version is known to be compromised.

A semver range lists every compromised version it covers. Without a version
all known compromised versions are listed. Exits 1 when the given version or
range matches.

Examples:
  npm-ioc-scanner check posthog-node@4.3.2
  npm-ioc-scanner check @asyncapi/specs@6.8.2
  npm-ioc-scanner check 'posthog-node@^4.0.0'
  npm-ioc-scanner check kill-port`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().BoolVar(&checkNoCache, "no-cache", false, "Bypass the threat feed cache")
}

func runCheck(cmd *cobra.Command, args []string) error {
	name, version := parsePackageArg(args[0])
	if !feed.ValidPackageName(name) {
		return fmt.Errorf("invalid package name %q", name)
	}

	deny, _ := loadDenylist(cmd.Context(), checkNoCache)
	fmt.Fprintf(cmd.OutOrStdout(), "%s[INFO]%s Loaded %d packages from threat feeds\n\n", color.Green, color.Reset, len(deny))

	hit, err := checkPackage(cmd.OutOrStdout(), deny, name, version)
	if err != nil {
		return err
	}
	if hit {
		exitCode = report.ExitFindings
	}
	return nil
}

// parsePackageArg splits name@version, keeping the scope of @scope/name.
func parsePackageArg(arg string) (string, string) {
	arg = strings.TrimSpace(arg)
	if idx := strings.LastIndex(arg, "@"); idx > 0 {
		return arg[:idx], arg[idx+1:]
	}
	return arg, ""
}

// checkPackage prints the verdict for name at version, which may be empty, an
// exact version or a semver range. It reports whether a compromised version
// matched.
func checkPackage(w io.Writer, deny feed.Denylist, name, version string) (bool, error) {
	vs, ok := deny.Lookup(name)
	if !ok {
		fmt.Fprintf(w, "%s✅ SAFE: %s is NOT in the threat feeds%s\n", color.Green, name, color.Reset)
		return false, nil
	}

	if vs.IsWildcard() {
		fmt.Fprintf(w, "%s%s⚠️  COMPROMISED: every version of %s is in the threat feeds!%s\n", color.Bold, color.Red, name, color.Reset)
		fmt.Fprintln(w, "\nDO NOT install or use any version of this package.")
		return version != "", nil
	}

	versions := vs.Sorted()
	if version == "" {
		fmt.Fprintf(w, "%s%s⚠️  WARNING: %s has compromised versions!%s\n", color.Bold, color.Yellow, name, color.Reset)
		fmt.Fprintf(w, "\nCompromised versions:\n")
		for _, v := range versions {
			fmt.Fprintf(w, "  • %s@%s\n", name, v)
		}
		return false, nil
	}

	if vs.Has(version) {
		fmt.Fprintf(w, "%s%s⚠️  INFECTED: %s@%s is in the threat feeds!%s\n", color.Bold, color.Red, name, version, color.Reset)
		fmt.Fprintln(w, "\nDO NOT install or use this version.")
		return true, nil
	}
	if _, err := semver.StrictNewVersion(version); err == nil {
		fmt.Fprintf(w, "%s✅ SAFE: %s@%s is NOT in the threat feeds%s\n", color.Green, name, version, color.Reset)
		fmt.Fprintf(w, "\nHowever, note that %s has compromised versions: %s\n", name, strings.Join(versions, ", "))
		return false, nil
	}

	matched, err := deny.MatchConstraint(name, version)
	if err != nil {
		return false, fmt.Errorf("invalid version or range %q: %w", version, err)
	}
	if len(matched) == 0 {
		fmt.Fprintf(w, "%s✅ SAFE: no compromised version of %s satisfies %s%s\n", color.Green, name, version, color.Reset)
		return false, nil
	}
	fmt.Fprintf(w, "%s%s⚠️  INFECTED: %s@%s covers compromised versions!%s\n", color.Bold, color.Red, name, version, color.Reset)
	for _, v := range matched {
		fmt.Fprintf(w, "  • %s@%s\n", name, v)
	}
	return true, nil
}
