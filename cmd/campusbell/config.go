package main

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/campusbell/internal/config"
)

var configOpts struct {
	format string
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the campusbelld configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration (defaults, file and environment)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		var out []byte
		switch configOpts.format {
		case "toml":
			out, err = toml.Marshal(cfg)
		case "yaml":
			out, err = yaml.Marshal(cfg)
		default:
			return fmt.Errorf("unknown format %q (valid: toml, yaml)", configOpts.format)
		}
		if err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}

		_, err = os.Stdout.Write(out)
		return err
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to the config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		if err := config.DefaultDaemonConfig().Save(path); err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

func init() {
	configShowCmd.Flags().StringVarP(&configOpts.format, "format", "f", "toml", "Output format (toml, yaml)")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
