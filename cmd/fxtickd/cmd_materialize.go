package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fxcore/tickpipe/internal/materializer"
	"github.com/fxcore/tickpipe/internal/symbol"
)

func newMaterializeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "materialize SYMBOL YYYY-MM-DD[:YYYY-MM-DD]",
		Short: "Build candles from tick blobs and upsert them into the relational store",
		Args:  cobra.ExactArgs(2),
		RunE:  runMaterialize,
	}
	cmd.Flags().Bool("dry-run", false, "build candles but skip the upsert")
	return cmd
}

func runMaterialize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	sym := symbol.Canonicalize(args[0])
	start, end, err := parseDateOrRange(args[1])
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
	if repo == nil && !dryRun {
		return fmt.Errorf("fxtickd: materialize requires PG_DSN unless --dry-run")
	}
	if dryRun {
		repo = noopCandleRepo{}
	}

	m := materializer.New(lakeStore, repo).WithMetrics(newMetricsRegistry())

	jobStart := time.Now()
	var totalTicks, totalCandles int
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		result, err := m.MaterializeDay(ctx, sym, day)
		if err != nil {
			log.Warn().Err(err).Str("symbol", sym).Time("day", day).Msg("materialize day failed, continuing")
			continue
		}
		totalTicks += result.TicksRead
		totalCandles += result.CandlesWritten
		fmt.Printf("materialized %s %s: ticks=%d candles=%d dropped=%d\n",
			sym, day.Format(dateLayout), result.TicksRead, result.CandlesWritten, result.Stats.Dropped)
	}

	fmt.Printf("materialize complete: symbol=%s ticks=%d candles=%d dry_run=%v elapsed=%s\n",
		sym, totalTicks, totalCandles, dryRun, time.Since(jobStart).Round(time.Second))
	return nil
}

// parseDateOrRange parses "YYYY-MM-DD" or "YYYY-MM-DD:YYYY-MM-DD".
func parseDateOrRange(s string) (start, end time.Time, err error) {
	parts := strings.SplitN(s, ":", 2)
	start, err = parseUTCDate(parts[0])
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if len(parts) == 1 {
		return start, start, nil
	}
	end, err = parseUTCDate(parts[1])
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}
