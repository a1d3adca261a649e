// Package main is the entry point for the campusbelld notification daemon.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/campusbell/internal/config"
	"github.com/jmylchreest/campusbell/internal/daemon"
)

var (
	// Build-time variables
	version = "dev"
)

var opts struct {
	configPath string
	statePath  string
	envFiles   []string
	verbose    bool
	noReload   bool
}

var rootCmd = &cobra.Command{
	Use:   "campusbelld",
	Short: "Real-time campus notification daemon",
	Long: `campusbelld subscribes to the signed-in user's notification channel and,
for every new notification, invalidates the notification cache, plays a
category tone and shows a desktop toast.

Sound and toasts can be muted at runtime with 'campusbell mute'.`,
	Version:      version,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&opts.configPath, "config", "",
		"Path to config file (default: ~/.config/campusbell/campusbelld.toml)")
	rootCmd.Flags().StringVar(&opts.statePath, "state-file", "",
		"Path to shared state file (default: ~/.local/share/campusbell/state.json)")
	rootCmd.Flags().StringSliceVar(&opts.envFiles, "env-file", nil,
		"Load environment variables from a .env file (repeatable)")
	rootCmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false,
		"Enable debug logging")
	rootCmd.Flags().BoolVar(&opts.noReload, "no-reload", false,
		"Disable config hot reload")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if err := config.LoadEnvFiles(opts.envFiles...); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}

	path := config.ExpandPath(opts.configPath)
	if path == "" {
		var err error
		if path, err = config.DaemonConfigPath(); err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
	}

	cfg, err := config.LoadDaemonConfigFrom(path)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	daemonOpts := daemon.Options{
		ConfigPath: path,
		StatePath:  opts.statePath,
		Version:    version,
	}
	if opts.noReload {
		daemonOpts.ConfigPath = ""
	}

	d, err := daemon.New(cfg, daemonOpts, logger)
	if err != nil {
		return err
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return d.Run(ctx)
}

// newLogger builds the structured logger from the log settings.
func newLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if opts.verbose {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, handlerOpts))
}
