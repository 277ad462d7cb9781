// Command fxtickd runs the forex tick-to-candle pipeline: broker
// ingestion, historical backfill, candle materialization, and coverage
// analysis, all behind one Cobra CLI.
package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const appName = "fxtickd"

func main() {
	zerolog.TimeFieldFormat = time.RFC3339

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Forex tick ingestion and candle materialization pipeline",
		Version: "0.1.0",
	}
	rootCmd.PersistentFlags().String("config", "", "path to YAML config file")

	rootCmd.AddCommand(
		newImportCmd(),
		newMaterializeCmd(),
		newBackfillCmd(),
		newAnalyzeCmd(),
		newServeCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
