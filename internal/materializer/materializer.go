// Package materializer transforms tick blobs in the data lake into
// candles in the relational store, and answers coverage/gap queries
// (spec.md §4.E).
package materializer

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fxcore/tickpipe/internal/candle"
	"github.com/fxcore/tickpipe/internal/lake"
	"github.com/fxcore/tickpipe/internal/metrics"
	"github.com/fxcore/tickpipe/internal/store"
	"github.com/fxcore/tickpipe/internal/tick"
)

// Materializer reads tick blobs for one symbol/day, builds candles,
// and upserts them into the relational store.
type Materializer struct {
	lakeStore lake.Store
	repo      store.CandleRepo
	metrics   *metrics.Registry
}

// New builds a Materializer.
func New(lakeStore lake.Store, repo store.CandleRepo) *Materializer {
	return &Materializer{lakeStore: lakeStore, repo: repo}
}

// WithMetrics attaches a metrics registry. Optional.
func (m *Materializer) WithMetrics(reg *metrics.Registry) *Materializer {
	m.metrics = reg
	return m
}

// Result summarizes one day's materialization for CLI reporting.
type Result struct {
	Symbol       string
	Date         time.Time
	TicksRead    int
	CandlesWritten int
	Stats        candle.Stats
}

// MaterializeDay reads every blob under symbol's UTC date prefix,
// builds the candle sequence, and upserts it. A QualityError aborts
// this day only; the caller decides whether to continue to the next.
func (m *Materializer) MaterializeDay(ctx context.Context, symbol string, date time.Time) (Result, error) {
	keys, err := m.lakeStore.List(ctx, symbol, date)
	if err != nil {
		return Result{}, fmt.Errorf("materializer: list blobs for %s %s: %w", symbol, date.Format("2006-01-02"), err)
	}

	var ticks []tick.Tick
	for _, key := range keys {
		blob, err := m.lakeStore.Get(ctx, key)
		if err != nil {
			return Result{}, fmt.Errorf("materializer: get blob %s: %w", key, err)
		}
		ticks = append(ticks, blob.Ticks...)
	}

	candles, stats, err := candle.Build(symbol, ticks)
	if err != nil {
		if m.metrics != nil {
			m.metrics.QualityGateTrips.WithLabelValues(symbol).Inc()
		}
		return Result{Symbol: symbol, Date: date, TicksRead: len(ticks), Stats: stats}, err
	}

	rows := make([]store.CandleRow, 0, len(candles))
	for _, c := range candles {
		if !validForUpsert(c) {
			log.Warn().Str("symbol", symbol).Int64("bucket", c.BucketStart).Msg("dropping invalid candle before upsert")
			continue
		}
		rows = append(rows, store.CandleRow{
			Time:   time.Unix(c.BucketStart, 0).UTC(),
			Symbol: c.Symbol,
			Open:   c.Open,
			High:   c.High,
			Low:    c.Low,
			Close:  c.Close,
			Volume: c.Volume,
			Trades: c.Trades,
		})
	}

	if err := m.repo.UpsertBatch(ctx, rows); err != nil {
		if m.metrics != nil {
			m.metrics.MaterializeErrors.WithLabelValues(symbol, "upsert").Inc()
		}
		return Result{}, fmt.Errorf("materializer: upsert: %w", err)
	}
	if m.metrics != nil {
		m.metrics.CandlesWritten.WithLabelValues(symbol).Add(float64(len(rows)))
	}

	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	if err := m.repo.RefreshContinuousAggregates(ctx, store.TimeRange{From: dayStart, To: dayStart.Add(24 * time.Hour)}); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("continuous aggregate refresh failed")
	}

	return Result{
		Symbol:         symbol,
		Date:           date,
		TicksRead:      len(ticks),
		CandlesWritten: len(rows),
		Stats:          stats,
	}, nil
}

func validForUpsert(c candle.Candle) bool {
	if c.Symbol == "" {
		return false
	}
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
		if !finite(v) {
			return false
		}
	}
	return true
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// CoverageReport answers spec.md §4.E.3's coverage query: how many of
// the UTC days in [start, end] have candle data, and which don't.
type CoverageReport struct {
	Symbol        string
	TotalDays     int
	CoveredDays   int
	MissingRanges []DateRange
	Covered       bool
}

// DateRange is an inclusive UTC-day range of missing candle coverage.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Coverage scans every UTC day in [start, end] and reports which ones
// have at least one stored candle.
func (m *Materializer) Coverage(ctx context.Context, symbol string, start, end time.Time) (CoverageReport, error) {
	tr := store.TimeRange{From: truncateDay(start), To: truncateDay(end).Add(24*time.Hour - time.Nanosecond)}
	present, err := m.repo.DaysWithData(ctx, symbol, tr)
	if err != nil {
		return CoverageReport{}, fmt.Errorf("materializer: days with data: %w", err)
	}

	haveDay := make(map[time.Time]bool, len(present))
	for _, d := range present {
		haveDay[truncateDay(d)] = true
	}

	total := 0
	covered := 0
	var missing []DateRange
	var gapStart time.Time
	inGap := false

	for d := truncateDay(start); !d.After(truncateDay(end)); d = d.AddDate(0, 0, 1) {
		total++
		if haveDay[d] {
			covered++
			if inGap {
				missing = append(missing, DateRange{Start: gapStart, End: d.AddDate(0, 0, -1)})
				inGap = false
			}
			continue
		}
		if !inGap {
			gapStart = d
			inGap = true
		}
	}
	if inGap {
		missing = append(missing, DateRange{Start: gapStart, End: truncateDay(end)})
	}

	return CoverageReport{
		Symbol:        symbol,
		TotalDays:     total,
		CoveredDays:   covered,
		MissingRanges: missing,
		Covered:       len(missing) == 0,
	}, nil
}

func truncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
