package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kamusis/curricula/internal/config"
	"github.com/kamusis/curricula/internal/logging"
	"github.com/kamusis/curricula/internal/observability"
)

var (
	flagConfig          string
	flagLogLevel        string
	flagLogFormat       string
	flagMetricsTextfile string
)

var rootCmd = &cobra.Command{
	Use:          "curricula",
	Short:        "Course and vacancy recommendations by text similarity",
	SilenceUsage: true, // don't print usage on operational errors
	Long: `curricula ranks academic subjects or job vacancies against a free-text
description of a job or interest, and extracts the key skills of a profession
from a vacancy corpus. Configuration lives in ~/.curricula/curricula.yaml.`,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return logging.Init(os.Stderr, flagLogFormat, flagLogLevel, "")
	},
	PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
		if flagMetricsTextfile == "" {
			return nil
		}
		if err := observability.WriteTextfile(flagMetricsTextfile); err != nil {
			return fmt.Errorf("cannot write metrics: %w", err)
		}
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "Config file (default ~/.curricula/curricula.yaml; .toml also accepted)")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error (default from config)")
	pf.StringVar(&flagLogFormat, "log-format", "", "Log format: text or json (default from config)")
	pf.StringVar(&flagMetricsTextfile, "metrics-textfile", "", "Write Prometheus metrics to this file on exit")
}

// loadConfig loads the config and re-initializes logging with its settings
// unless flags override them.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("cannot load config: %w\nRun 'curricula init' first.", err)
	}
	level, format := cfg.App.LogLevel, cfg.App.LogFormat
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	if flagLogFormat != "" {
		format = flagLogFormat
	}
	if err := logging.Init(os.Stderr, format, level, cfg.App.Env); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Execute is called by main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
