package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"npm-ioc-scanner/feed"
	"npm-ioc-scanner/report"
)

var (
	// Global flags
	debug   bool
	noColor bool
	cfgFile string

	// Version info
	Version   = "1.0.0"
	BuildDate = "2026-10-17"

	// exitCode is set by commands that decide the process status themselves.
	exitCode = report.ExitClean
)

// ANSI colors
type colors struct {
	Reset, Red, Green, Yellow, Blue, Cyan, Bold string
}

var ansi = colors{
	Reset:  "\033[0m",
	Red:    "\033[31m",
	Green:  "\033[32m",
	Yellow: "\033[33m",
	Blue:   "\033[34m",
	Cyan:   "\033[36m",
	Bold:   "\033[1m",
}

// color is empty when output is not a terminal or --no-color was given.
var color colors

var rootCmd = &cobra.Command{
	Use:   "npm-ioc-scanner",
	Short: "Forensic scanner for compromised npm packages",
	Long: `Detects indicators of compromise left by npm supply chain attacks:
  • Installed packages and lockfile pins matching public threat feeds
  • Wildcard feed entries that mark every version of a package as compromised
  • Payload and exfiltration artifacts: bun_environment.js, setup_bun.js,
    cloud.json, contents.json, truffleSecrets.json, .truffler-cache
  • Malicious lifecycle scripts: remote code execution, obfuscation, backdoors
  • Ghost and corrupt package directories

Threat feeds are cached locally and fall back to a bundled snapshot when
the network is unavailable, so a scan always completes.

Example usage:
  npm-ioc-scanner scan                      # Scan current directory
  npm-ioc-scanner scan --system             # Also scan global package manager roots
  npm-ioc-scanner scan -p /path/to/project  # Scan specific path
  npm-ioc-scanner scan --fail-on warning    # CI gate
  npm-ioc-scanner check posthog-node@4.3.2  # Look up one package
`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if debug {
			log.SetLevel(log.DebugLevel)
		}
		if !noColor && term.IsTerminal(int(os.Stdout.Fd())) {
			color = ansi
		}
		return initConfig()
	},
}

// Execute runs the command line and exits with the resulting status.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Errorf("Error: %v", err)
		os.Exit(report.ExitFatal)
	}
	os.Exit(exitCode)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&debug, "debug", false, "enable debug level logging")
	flags.BoolVar(&noColor, "no-color", false, "disable colored output")
	flags.StringVar(&cfgFile, "config", "", "config file (default $XDG_CONFIG_HOME/npm-ioc-scanner/config.yaml)")
	flags.String("cache-dir", "", "threat feed cache directory")
	_ = viper.BindPFlag("cache-dir", flags.Lookup("cache-dir"))
}

func initConfig() error {
	viper.SetEnvPrefix("iocscan")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("cache-dir", feed.DefaultCacheDir())
	viper.SetDefault("cache-ttl", feed.DefaultTTL)
	viper.SetDefault("fetch-timeout", feed.DefaultFetchTimeout)
	viper.SetDefault("feeds.delimited.url", feed.DefaultDelimitedURL)
	viper.SetDefault("feeds.delimited.fallback", "")
	viper.SetDefault("feeds.structured.url", feed.DefaultStructuredURL)
	viper.SetDefault("feeds.structured.fallback", "")
	viper.SetDefault("upload.endpoint", "")
	viper.SetDefault("upload.bucket", "")
	viper.SetDefault("upload.access-key", "")
	viper.SetDefault("upload.secret-key", "")
	viper.SetDefault("upload.insecure", false)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config %s: %w", cfgFile, err)
		}
		return nil
	}

	dir, err := os.UserConfigDir()
	if err != nil {
		return nil
	}
	viper.AddConfigPath(filepath.Join(dir, "npm-ioc-scanner"))
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config: %w", err)
		}
		return nil
	}
	log.Debugf("using config file %s", viper.ConfigFileUsed())
	return nil
}

func durationSetting(key string, fallback time.Duration) time.Duration {
	if d := viper.GetDuration(key); d > 0 {
		return d
	}
	return fallback
}
