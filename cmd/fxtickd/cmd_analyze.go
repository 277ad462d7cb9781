package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/fxcore/tickpipe/internal/lake"
)

const analyzeSampleSize = 20

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Walk the data lake and print per-symbol tick coverage statistics",
		Args:  cobra.NoArgs,
		RunE:  runAnalyze,
	}
	cmd.Flags().Bool("sample", false, "read only a sample of blobs per symbol instead of every blob")
	cmd.Flags().String("output", "", "also write the report to this file")
	return cmd
}

type symbolStats struct {
	symbol     string
	days       map[time.Time]struct{}
	blobs      int
	ticksRead  int
	sampled    bool
	earliest   time.Time
	latest     time.Time
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	sample, _ := cmd.Flags().GetBool("sample")
	output, _ := cmd.Flags().GetString("output")

	ctx := context.Background()
	lakeStore, err := buildLakeStore(ctx, cfg.Lake)
	if err != nil {
		return err
	}

	keys, err := lakeStore.WalkAll(ctx)
	if err != nil {
		return err
	}

	stats := map[string]*symbolStats{}
	for _, key := range keys {
		sym, date, ok := lake.ParseKey(key)
		if !ok {
			continue
		}
		st, found := stats[sym]
		if !found {
			st = &symbolStats{symbol: sym, days: map[time.Time]struct{}{}}
			stats[sym] = st
		}
		st.days[date] = struct{}{}
		st.blobs++
		if st.earliest.IsZero() || date.Before(st.earliest) {
			st.earliest = date
		}
		if date.After(st.latest) {
			st.latest = date
		}

		if sample && st.blobs > analyzeSampleSize {
			st.sampled = true
			continue
		}
		blob, err := lakeStore.Get(ctx, key)
		if err != nil {
			continue
		}
		st.ticksRead += len(blob.Ticks)
	}

	symbols := make([]string, 0, len(stats))
	for sym := range stats {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	var out string
	for _, sym := range symbols {
		st := stats[sym]
		suffix := ""
		if st.sampled {
			suffix = fmt.Sprintf(" (ticks sampled from first %d blobs)", analyzeSampleSize)
		}
		out += fmt.Sprintf("%-10s days=%-4d blobs=%-5d ticks=%-8d range=%s..%s%s\n",
			sym, len(st.days), st.blobs, st.ticksRead,
			st.earliest.Format(dateLayout), st.latest.Format(dateLayout), suffix)
	}
	if out == "" {
		out = "no tick data found\n"
	}

	fmt.Print(out)
	if output != "" {
		if err := os.WriteFile(output, []byte(out), 0o644); err != nil {
			return fmt.Errorf("fxtickd: write output file: %w", err)
		}
	}
	return nil
}
