// Package store defines the persistence interfaces the materializer and
// CLI depend on, independent of the concrete Postgres implementation in
// internal/store/postgres.
package store

import (
	"context"
	"time"
)

// TimeRange bounds a query window, inclusive on both ends.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// CandleRow is a persisted 5-minute candle, matching the candles_5m
// schema from spec.md §4.E.2.
type CandleRow struct {
	Time   time.Time `db:"time"`
	Symbol string    `db:"symbol"`
	Open   float64   `db:"open"`
	High   float64   `db:"high"`
	Low    float64   `db:"low"`
	Close  float64   `db:"close"`
	Volume float64   `db:"volume"`
	Trades int       `db:"trades"`
}

// Coverage summarizes how much of a symbol's candle history is present.
// The CLI's analyze command does not use it; it walks the data lake.
type Coverage struct {
	Symbol     string
	EarliestAt time.Time
	LatestAt   time.Time
	Count      int64
}

// CandleRepo persists 5-minute candles and reports on their coverage.
// Upsert is idempotent: re-materializing an already-stored bucket
// overwrites it rather than erroring, so the materializer can safely
// re-run over an overlapping window.
type CandleRepo interface {
	// UpsertBatch writes candles in batches, one transaction per batch
	// of at most 500 rows, conflicting on (symbol, time).
	UpsertBatch(ctx context.Context, candles []CandleRow) error

	// CoverageBySymbol reports the stored time range and row count for
	// symbol within tr.
	CoverageBySymbol(ctx context.Context, symbol string, tr TimeRange) (Coverage, error)

	// DaysWithData returns the distinct UTC calendar days within tr
	// that have at least one row for symbol, ascending.
	DaysWithData(ctx context.Context, symbol string, tr TimeRange) ([]time.Time, error)

	// RefreshContinuousAggregates requests a refresh of the
	// candles_15m/1h/4h/12h continuous aggregates covering tr.
	RefreshContinuousAggregates(ctx context.Context, tr TimeRange) error
}

// HealthCheck reports the health of the persistence layer.
type HealthCheck struct {
	Healthy        bool
	Errors         []string
	ConnectionPool map[string]int
	LastCheck      time.Time
	ResponseTimeMS int64
}

// Health exposes connectivity and pool diagnostics for the serve
// command's readiness endpoint.
type Health interface {
	Health(ctx context.Context) HealthCheck
	Ping(ctx context.Context) error
}
