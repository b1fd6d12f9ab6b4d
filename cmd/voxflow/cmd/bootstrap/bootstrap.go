// Package bootstrap loads configuration and logging for subcommands.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"voxflow/internal/app"
	"voxflow/internal/app/logging"
	"voxflow/internal/config"
)

// Config reads --config and --verbose from cmd's inherited flags.
func Config(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	logger, err := logging.NewLogger(cfg.Log.Development, level)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger, nil
}

// App loads configuration and wires the pipeline. The returned cleanup
// releases connections and flushes the logger.
func App(ctx context.Context, cmd *cobra.Command) (*app.App, func(), error) {
	cfg, logger, err := Config(cmd)
	if err != nil {
		return nil, nil, err
	}
	a, cleanup, err := app.InitializeApp(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	return a, func() {
		cleanup()
		_ = logger.Sync()
	}, nil
}
