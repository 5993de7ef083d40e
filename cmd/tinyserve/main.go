// Command tinyserve runs a pool of model-serving worker processes on one
// shared port and talks to it as a client.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"tinyserve/internal/common/fsutil"
	"tinyserve/internal/config"

	_ "tinyserve/internal/models"
)

var version = "dev"

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "tinyserve",
		Short:         "Serve pluggable inference models from a pool of worker processes",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (.yaml, .yml, .json or .toml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug|info|warn|error|off")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newWorkerCmd(opts))
	cmd.AddCommand(newClientCmd(opts))
	return cmd
}

// loadConfig layers defaults, the config file, TINYSERVE_* variables and
// then every flag set explicitly on cmd. Flags are applied through set,
// keyed by flag name. Explicit values, zero or negative ones included, reach
// the caller as given so Validate can reject them.
func loadConfig(cmd *cobra.Command, opts *rootOptions, set map[string]func(*config.Config)) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		if err := config.LoadInto(opts.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config %s: %w", opts.configPath, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	for name, apply := range set {
		if cmd.Flags().Changed(name) {
			apply(&cfg)
		}
	}
	dir, err := fsutil.ExpandHome(cfg.PluginsDir)
	if err != nil {
		return cfg, err
	}
	cfg.PluginsDir = dir
	return cfg, nil
}

// splitCSV splits a comma-separated list, trimming blanks and dropping empty items.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tinyserve:", err)
		os.Exit(1)
	}
}
