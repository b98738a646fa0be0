package main

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Execute builds the compositefeed root command and runs it to
// completion or cancellation.
func Execute(ctx context.Context) error {
	var configPath string

	root := &cobra.Command{
		Use:   "compositefeed",
		Short: "One-minute composite OHLCV candle engine across spot/perp crypto venues",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config YAML")

	root.AddCommand(runCmd(&configPath))
	root.AddCommand(backfillCmd(&configPath))

	log.Info().Msg("compositefeed starting")
	return root.ExecuteContext(ctx)
}
