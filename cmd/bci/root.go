package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/bci/internal/config"
	"github.com/okian/bci/pkg/logger"
)

const configEnv = "BCI_CONFIG"

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "bci",
		Short: "Oddball selection and motor imagery confirmation service",
		Long: `bci - select menu options with P300 responses and confirm them with
motor imagery.

Configuration is layered: built-in defaults, then the YAML file given by
--config or BCI_CONFIG, then BCI_* environment variables where a double
underscore separates levels (BCI_P300__THRESHOLD=6).

Examples:
  # Synthetic source, HTTP API on :9080
  bci serve

  # Replay a recording
  BCI_SOURCE__KIND=edf BCI_SOURCE__EDF_PATH=session.edf bci serve

  # Only listen for the speller
  bci speller --addr 127.0.0.1:1000`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file (overrides "+configEnv+")")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newSpellerCmd(opts))
	return cmd
}

// setup loads the configuration and initializes the global logger from it.
func setup(ctx context.Context, opts *rootOptions) (*config.Config, error) {
	if opts.configPath != "" {
		if err := os.Setenv(configEnv, opts.configPath); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}

	if err := logger.InitWithWriter(os.Stdout, cfg.LogFormat); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return cfg, nil
}
