// flarekeep keeps a home lab reachable behind a dynamic IP. It renews
// Let's Encrypt certificates through Cloudflare DNS-01 challenges before
// they expire and points Cloudflare DNS records at the host's current
// public address on a fixed cadence.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version and BuildDate are set via ldflags during build.
// Example: -ldflags="-X main.Version=v1.0.0 -X main.BuildDate=2026-08-01"
var (
	Version   = "dev"
	BuildDate = "unknown"
)

// cfgFile is the --config flag value; empty falls back to the
// FLAREKEEP_CONFIG environment variable.
var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "flarekeep",
	Short: "Keep TLS certificates renewed and DNS records pointed home",
	Long: `Flarekeep is a daemon for self-hosted services behind a dynamic IP.

It renews Let's Encrypt certificates through Cloudflare DNS-01 challenges
before they expire, copies them to remote hosts over SFTP, and keeps
Cloudflare DNS records in sync with the host's current public address.`,
	Version: Version,
}

func init() {
	cobra.OnInitialize(loadEnvFile)

	rootCmd.SetVersionTemplate(fmt.Sprintf(`flarekeep {{.Version}}
Built: %s
`, BuildDate))

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $FLAREKEEP_CONFIG)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("fatal error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// loadEnvFile loads the nearest .env file before any command runs.
// Variables already present in the environment win over file values.
func loadEnvFile() {
	if path := findEnvFile(); path != "" {
		_ = godotenv.Load(path)
	}
}

// findEnvFile searches the working directory and its parents for a .env
// file.
func findEnvFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for i := 0; i < 10; i++ {
		path := filepath.Join(dir, ".env")
		if _, err := os.Stat(path); err == nil {
			return path
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func setupLogger(level, format string) *slog.Logger {
	logLevel := parseLogLevel(level)

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}

	return slog.New(handler)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
