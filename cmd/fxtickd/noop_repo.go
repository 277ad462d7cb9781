package main

import (
	"context"
	"time"

	"github.com/fxcore/tickpipe/internal/store"
)

// noopCandleRepo backs --dry-run invocations: candles are built but
// never persisted.
type noopCandleRepo struct{}

func (noopCandleRepo) UpsertBatch(context.Context, []store.CandleRow) error { return nil }

func (noopCandleRepo) CoverageBySymbol(_ context.Context, symbol string, _ store.TimeRange) (store.Coverage, error) {
	return store.Coverage{Symbol: symbol}, nil
}

func (noopCandleRepo) DaysWithData(context.Context, string, store.TimeRange) ([]time.Time, error) {
	return nil, nil
}

func (noopCandleRepo) RefreshContinuousAggregates(context.Context, store.TimeRange) error { return nil }
