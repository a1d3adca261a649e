// Package main provides the CLI entrypoint for campusbell.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/campusbell/internal/config"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

var (
	globalOpts struct {
		verbose    bool
		configPath string
		statePath  string
		envFiles   []string
	}
	logger *slog.Logger
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "campusbell",
	Short: "Control the campus notification daemon",
	Long: `campusbell controls campusbelld, the real-time notification daemon.

It mutes and unmutes notification sounds and toasts, previews tones,
publishes test events and inspects the daemon configuration.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime),
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogger()
		if err := config.LoadEnvFiles(globalOpts.envFiles...); err != nil {
			return fmt.Errorf("failed to load env files: %w", err)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&globalOpts.verbose, "verbose", "v", false,
		"Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&globalOpts.configPath, "config", "",
		"Path to config file (default: ~/.config/campusbell/campusbelld.toml)")
	rootCmd.PersistentFlags().StringVar(&globalOpts.statePath, "state-file", "",
		"Path to shared state file (default: ~/.local/share/campusbell/state.json)")
	rootCmd.PersistentFlags().StringSliceVar(&globalOpts.envFiles, "env-file", nil,
		"Load environment variables from a .env file (repeatable)")
}

// setupLogger configures the global slog logger.
func setupLogger() {
	level := slog.LevelWarn
	if globalOpts.verbose {
		level = slog.LevelDebug
	}

	// Log to stderr so stdout is clean for output
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// configPath returns the config file in use.
func configPath() (string, error) {
	if globalOpts.configPath != "" {
		return config.ExpandPath(globalOpts.configPath), nil
	}
	return config.DaemonConfigPath()
}

// loadConfig loads and validates the daemon configuration.
func loadConfig() (*config.DaemonConfig, error) {
	path, err := configPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}
	cfg, err := config.LoadDaemonConfigFrom(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// loadConfigOrDefault is loadConfig for commands that only need sound settings.
func loadConfigOrDefault() *config.DaemonConfig {
	cfg, err := loadConfig()
	if err != nil {
		logger.Warn("using default config", "error", err)
		return config.DefaultDaemonConfig()
	}
	return cfg
}
