package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"npm-ioc-scanner/discovery"
	"npm-ioc-scanner/report"
	"npm-ioc-scanner/scanner"
)

var (
	scanPath   string
	scanDepth  int
	systemScan bool
	noCache    bool
	failOn     string
	outputJSON string
	outputCSV  string
	upload     bool
	quiet      bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for compromised npm packages and attack artifacts",
	Long: `Scan the filesystem for indicators of npm supply chain compromise.

Installed packages are matched against the threat feed denylist, lockfiles
are checked for compromised pins, lifecycle scripts are analyzed and known
payload files are verified by content before being reported.

Examples:
  npm-ioc-scanner scan                      # Scan current directory
  npm-ioc-scanner scan -p /path/to/project  # Scan specific path
  npm-ioc-scanner scan --system             # Include global install roots
  npm-ioc-scanner scan --depth 8            # Descend deeper (max 10)
  npm-ioc-scanner scan --fail-on critical   # Exit 1 on critical findings
  npm-ioc-scanner scan --json report.json   # Export results to JSON
  npm-ioc-scanner scan --csv report.csv     # Export results to CSV
  npm-ioc-scanner scan --upload             # Upload the report to a bucket`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	flags := scanCmd.Flags()
	flags.StringVarP(&scanPath, "path", "p", "", "Path to scan (default: current directory)")
	flags.IntVar(&scanDepth, "depth", scanner.DefaultMaxDepth, fmt.Sprintf("Maximum traversal depth (0-%d)", scanner.HardMaxDepth))
	flags.BoolVar(&systemScan, "system", false, "Also scan global package manager roots")
	flags.BoolVar(&noCache, "no-cache", false, "Bypass the threat feed cache")
	flags.StringVar(&failOn, "fail-on", string(report.ThresholdCritical), "Exit non-zero on findings: off, critical or warning")
	flags.StringVar(&outputJSON, "json", "", "Export the report to a JSON file")
	flags.StringVar(&outputCSV, "csv", "", "Export issues to a CSV file")
	flags.BoolVar(&upload, "upload", false, "Upload the JSON report to the configured bucket")
	flags.BoolVar(&quiet, "quiet", false, "Omit SAFE_MATCH audit records from the output")
}

// scanRoots returns the explicit path, or the working directory, followed by
// any discovered system roots.
func scanRoots() ([]string, error) {
	root := scanPath
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		root = wd
	}
	roots := []string{root}
	if systemScan {
		roots = append(roots, discovery.Default()...)
	}
	return roots, nil
}

func runScan(cmd *cobra.Command, _ []string) error {
	threshold, err := report.ParseThreshold(failOn)
	if err != nil {
		return err
	}
	if scanDepth < 0 || scanDepth > scanner.HardMaxDepth {
		return fmt.Errorf("depth must be between 0 and %d, got %d", scanner.HardMaxDepth, scanDepth)
	}
	roots, err := scanRoots()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	started := time.Now()
	deny, feeds := loadDenylist(ctx, noCache)

	opts := scanner.DefaultOptions()
	opts.MaxDepth = scanDepth
	sc := scanner.New(deny, opts)

	interrupted := false
	if err := sc.Scan(ctx, roots...); err != nil {
		if !errors.Is(err, context.Canceled) {
			return err
		}
		interrupted = true
	}
	stop()

	r := report.New(sc, feeds, started, interrupted)
	report.Render(cmd.OutOrStdout(), r, report.RenderOptions{Color: color.Reset != "", Quiet: quiet})

	if outputJSON != "" {
		if err := report.ExportJSON(outputJSON, r); err != nil {
			log.Errorf("Failed to export JSON: %v", err)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "\n%s[INFO]%s Report exported to: %s\n", color.Blue, color.Reset, outputJSON)
		}
	}
	if outputCSV != "" {
		if err := report.ExportCSV(outputCSV, r); err != nil {
			log.Errorf("Failed to export CSV: %v", err)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s[INFO]%s Issues exported to: %s\n", color.Blue, color.Reset, outputCSV)
		}
	}
	if upload {
		uploadReport(cmd.Context(), r)
	}

	exitCode = report.ExitCode(r.Issues, threshold, cmd.Flags().Changed("fail-on"), interrupted)
	return nil
}

// uploadReport sends r to the configured bucket. Failures are logged only.
func uploadReport(ctx context.Context, r *report.Report) {
	u, err := report.NewMinioUploader(
		viper.GetString("upload.endpoint"),
		viper.GetString("upload.access-key"),
		viper.GetString("upload.secret-key"),
		viper.GetString("upload.bucket"),
		!viper.GetBool("upload.insecure"),
	)
	if err != nil {
		log.Errorf("Upload skipped: %v", err)
		return
	}
	p, err := report.NewPayload(r)
	if err != nil {
		log.Errorf("Upload skipped: %v", err)
		return
	}
	key := report.ObjectKey(r)
	if err := u.Upload(ctx, key, p); err != nil {
		log.Errorf("Upload failed: %v", err)
		return
	}
	log.Infof("report uploaded as %s (sha256 %s)", key, p.ContentHash)
}
