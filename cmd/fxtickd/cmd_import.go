package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fxcore/tickpipe/internal/historical"
	"github.com/fxcore/tickpipe/internal/netutil"
	"github.com/fxcore/tickpipe/internal/symbol"
)

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import SYMBOL START END [chunk_hours] [delay_sec]",
		Short: "Backfill historical ticks from the provider into the data lake",
		Args:  cobra.RangeArgs(3, 5),
		RunE:  runImport,
	}
	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	sym := args[0]
	start, err := parseUTCDate(args[1])
	if err != nil {
		return err
	}
	end, err := parseUTCDate(args[2])
	if err != nil {
		return err
	}

	chunkHours := cfg.Importer.DefaultChunkHours
	if len(args) > 3 {
		n, err := strconv.Atoi(args[3])
		if err != nil {
			return fmt.Errorf("fxtickd: invalid chunk_hours %q: %w", args[3], err)
		}
		chunkHours = n
	}
	delaySec := int(cfg.Importer.BetweenChunkDelay.Seconds())
	if len(args) > 4 {
		n, err := strconv.Atoi(args[4])
		if err != nil {
			return fmt.Errorf("fxtickd: invalid delay_sec %q: %w", args[4], err)
		}
		delaySec = n
	}

	ctx := context.Background()
	lakeStore, err := buildLakeStore(ctx, cfg.Lake)
	if err != nil {
		return err
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
		DefaultChunkHours: chunkHours,
		BetweenChunkDelay: time.Duration(delaySec) * time.Second,
	}, fetcher, lakeStore, symbol.DefaultAllowlist()).WithMetrics(newMetricsRegistry())

	log.Info().Str("symbol", sym).Time("start", start).Time("end", end).
		Int("chunk_hours", chunkHours).Int("delay_sec", delaySec).Msg("import starting")

	jobStart := time.Now()
	if err := im.Import(ctx, sym, start, end); err != nil {
		return err
	}

	fmt.Printf("import complete: symbol=%s range=%s..%s elapsed=%s\n",
		symbol.Canonicalize(sym), args[1], args[2], time.Since(jobStart).Round(time.Second))
	return nil
}
