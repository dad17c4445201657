package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"trading-enginev1/internal/config"
	"trading-enginev1/internal/logger"
)

const serviceName = "tradebot"

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          serviceName,
		Short:        "Consensus trading engine",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML or JSON config file (environment overrides apply)")

	cmd.AddCommand(
		newRunCmd(opts),
		newServeCmd(opts),
		newPositionsCmd(opts),
		newHistoryCmd(opts),
		newEvaluateCmd(opts),
	)
	return cmd
}

// load reads the configuration and installs the process logger.
func (o *rootOptions) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	log := logger.Init(serviceName, logger.ParseLevel(cfg.Log.Level))
	return cfg, log, nil
}
