package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/charmbracelet/fang"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/cyp0633/smartdate/internal/config"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"

	verbose bool
	cfgFile string

	// cfg is loaded once in PersistentPreRunE and shared by every subcommand.
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "smartdated",
		Short: "Recurring dates with per-instance overrides",
		Long: TitleStyle.Render("smartdated") + SubtitleStyle.Render(" - recurring dates with per-instance overrides") + `

smartdated expands RFC 5545 recurrence rules into concrete instances,
lets operators cancel, reschedule or substitute single instances,
and keeps the owning entities' date values in sync.

` + SubtitleStyle.Render("Examples:") + `
  smartdated serve                 Run the HTTP API and the apply job
  smartdated preview weekly-sync   Show the window around now for a rule
  smartdated apply                 Write effective instances once
  smartdated config show           Print the effective configuration`,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/smartdated/config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(configCmd)
}

func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}

// defaultConfigPath returns the config location used when --config is not given.
func defaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config directory: %w", err)
	}
	return filepath.Join(dir, "smartdated", "config.yaml"), nil
}

// loadConfig reads .env (if present), then the config file, writing defaults on first run.
func loadConfig(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(cmd.ErrOrStderr(), WarningStyle.Render("Warning: ")+err.Error())
	}

	path := cfgFile
	if path == "" {
		p, err := defaultConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	loaded, err := config.Load(path)
	if err != nil {
		if loaded == nil {
			return err
		}
		// Defaults are usable even when they could not be written back.
		fmt.Fprintln(cmd.ErrOrStderr(), WarningStyle.Render("Warning: ")+err.Error())
	}
	if verbose {
		loaded.Log.Level = "debug"
	}
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	cfg = loaded
	return nil
}
