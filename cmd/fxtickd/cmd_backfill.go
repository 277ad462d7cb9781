package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fxcore/tickpipe/internal/historical"
	"github.com/fxcore/tickpipe/internal/materializer"
	"github.com/fxcore/tickpipe/internal/netutil"
	"github.com/fxcore/tickpipe/internal/symbol"
)

func newBackfillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill SYMBOL START END",
		Short: "Re-import and re-materialize every day in range missing candle coverage",
		Args:  cobra.ExactArgs(3),
		RunE:  runBackfill,
	}
	cmd.Flags().Bool("dry-run", false, "report missing days without importing or writing")
	return cmd
}

// runBackfill finds the gaps in an existing coverage report and re-runs
// the importer + materializer over exactly those days. A symbol with
// full coverage does nothing.
func runBackfill(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	sym := symbol.Canonicalize(args[0])
	start, err := parseUTCDate(args[1])
	if err != nil {
		return err
	}
	end, err := parseUTCDate(args[2])
	if err != nil {
		return err
	}

	ctx := context.Background()
	lakeStore, err := buildLakeStore(ctx, cfg.Lake)
	if err != nil {
		return err
	}
	repo, _, closeFn, err := buildCandleStore(cfg.Postgres)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}
	if repo == nil {
		return fmt.Errorf("fxtickd: backfill requires PG_DSN")
	}

	reg := newMetricsRegistry()
	m := materializer.New(lakeStore, repo).WithMetrics(reg)

	report, err := m.Coverage(ctx, sym, start, end)
	if err != nil {
		return err
	}
	if report.Covered {
		fmt.Printf("backfill: %s already fully covered over %s..%s\n", sym, args[1], args[2])
		return nil
	}

	fmt.Printf("backfill: %s missing %d of %d days\n", sym, report.TotalDays-report.CoveredDays, report.TotalDays)
	if dryRun {
		for _, gap := range report.MissingRanges {
			fmt.Printf("  missing: %s..%s\n", gap.Start.Format(dateLayout), gap.End.Format(dateLayout))
		}
		return nil
	}

	providerClient := netutil.NewProviderClient(netutil.ProviderClientConfig{
		Provider:       "historical",
		Host:           cfg.Importer.ProviderBaseURL,
		RequestTimeout: 30 * time.Second,
		RPS:            cfg.Importer.ProviderRPS,
		Burst:          cfg.Importer.ProviderBurst,
		DailyLimit:     cfg.Importer.DailyRequestLimit,
	})
	fetcher := historical.NewHTTPProvider(providerClient, cfg.Importer.ProviderBaseURL)
	im := historical.New(historical.Config{
		DefaultChunkHours: cfg.Importer.DefaultChunkHours,
		BetweenChunkDelay: cfg.Importer.BetweenChunkDelay,
	}, fetcher, lakeStore, symbol.DefaultAllowlist()).WithMetrics(reg)

	for _, gap := range report.MissingRanges {
		log.Info().Str("symbol", sym).Time("from", gap.Start).Time("to", gap.End).Msg("backfilling gap")
		if err := im.Import(ctx, sym, gap.Start, gap.End.AddDate(0, 0, 1)); err != nil {
			return err
		}
		for day := gap.Start; !day.After(gap.End); day = day.AddDate(0, 0, 1) {
			if _, err := m.MaterializeDay(ctx, sym, day); err != nil {
				log.Warn().Err(err).Str("symbol", sym).Time("day", day).Msg("backfill materialize failed, continuing")
			}
		}
	}

	fmt.Printf("backfill complete: symbol=%s\n", sym)
	return nil
}
