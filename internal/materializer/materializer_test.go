package materializer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fxcore/tickpipe/internal/lake"
	"github.com/fxcore/tickpipe/internal/store"
	"github.com/fxcore/tickpipe/internal/tick"
)

type fakeCandleRepo struct {
	rows          []store.CandleRow
	days          map[string][]time.Time
	upsertErr     error
	refreshErr    error
	refreshCalled int
}

func newFakeCandleRepo() *fakeCandleRepo {
	return &fakeCandleRepo{days: map[string][]time.Time{}}
}

func (f *fakeCandleRepo) UpsertBatch(_ context.Context, candles []store.CandleRow) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.rows = append(f.rows, candles...)
	return nil
}

func (f *fakeCandleRepo) CoverageBySymbol(_ context.Context, symbol string, tr store.TimeRange) (store.Coverage, error) {
	return store.Coverage{Symbol: symbol, Count: int64(len(f.rows))}, nil
}

func (f *fakeCandleRepo) DaysWithData(_ context.Context, symbol string, tr store.TimeRange) ([]time.Time, error) {
	return f.days[symbol], nil
}

func (f *fakeCandleRepo) RefreshContinuousAggregates(_ context.Context, tr store.TimeRange) error {
	f.refreshCalled++
	return f.refreshErr
}

func seedTicks(lakeStore *lake.MemoryStore, symbol string, day time.Time, ticks []tick.Tick) {
	_, _ = lakeStore.Upload(context.Background(), symbol, day, 1, lake.Blob{Symbol: symbol, Ticks: ticks})
}

func TestMaterializeDay_HappyPath(t *testing.T) {
	lakeStore := lake.NewMemoryStore()
	day := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	base := float64(day.Unix())
	seedTicks(lakeStore, "EURUSD", day, []tick.Tick{
		{T: base, Bid: 1.10000, Ask: 1.10020},
		{T: base + 60, Bid: 1.10010, Ask: 1.10030},
	})

	repo := newFakeCandleRepo()
	m := New(lakeStore, repo)

	result, err := m.MaterializeDay(context.Background(), "EURUSD", day)
	require.NoError(t, err)
	assert.Equal(t, 2, result.TicksRead)
	assert.Equal(t, 1, result.CandlesWritten)
	require.Len(t, repo.rows, 1)
	assert.Equal(t, "EURUSD", repo.rows[0].Symbol)
	assert.Equal(t, 1, repo.refreshCalled)
}

func TestMaterializeDay_QualityGateAbort(t *testing.T) {
	lakeStore := lake.NewMemoryStore()
	day := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	base := float64(day.Unix())

	ticks := []tick.Tick{{T: base, Bid: 1.1, Ask: 1.1002}}
	for i := 0; i < 40; i++ {
		ticks = append(ticks, tick.Tick{T: base + float64(i), Bid: -1, Ask: 1.1}) // invalid, >5% drop rate
	}
	seedTicks(lakeStore, "EURUSD", day, ticks)

	repo := newFakeCandleRepo()
	m := New(lakeStore, repo)

	_, err := m.MaterializeDay(context.Background(), "EURUSD", day)
	require.Error(t, err)
	assert.Empty(t, repo.rows)
}

func TestMaterializeDay_UpsertError(t *testing.T) {
	lakeStore := lake.NewMemoryStore()
	day := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	base := float64(day.Unix())
	seedTicks(lakeStore, "EURUSD", day, []tick.Tick{{T: base, Bid: 1.1, Ask: 1.1002}})

	repo := newFakeCandleRepo()
	repo.upsertErr = errors.New("boom")
	m := New(lakeStore, repo)

	_, err := m.MaterializeDay(context.Background(), "EURUSD", day)
	assert.Error(t, err)
}

func TestCoverage_FullyCovered(t *testing.T) {
	repo := newFakeCandleRepo()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)
	repo.days["EURUSD"] = []time.Time{start, start.AddDate(0, 0, 1), end}

	m := New(lake.NewMemoryStore(), repo)
	report, err := m.Coverage(context.Background(), "EURUSD", start, end)
	require.NoError(t, err)
	assert.Equal(t, 3, report.TotalDays)
	assert.Equal(t, 3, report.CoveredDays)
	assert.True(t, report.Covered)
	assert.Empty(t, report.MissingRanges)
}

func TestCoverage_ZeroCoverage(t *testing.T) {
	repo := newFakeCandleRepo()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)

	m := New(lake.NewMemoryStore(), repo)
	report, err := m.Coverage(context.Background(), "EURUSD", start, end)
	require.NoError(t, err)
	assert.Equal(t, 3, report.TotalDays)
	assert.Equal(t, 0, report.CoveredDays)
	assert.False(t, report.Covered)
	require.Len(t, report.MissingRanges, 1)
	assert.True(t, report.MissingRanges[0].Start.Equal(start))
	assert.True(t, report.MissingRanges[0].End.Equal(end))
}

func TestCoverage_PartialCoverageWithGap(t *testing.T) {
	repo := newFakeCandleRepo()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	// present: Jan 1, Jan 2, Jan 5; missing: Jan 3-4
	repo.days["EURUSD"] = []time.Time{start, start.AddDate(0, 0, 1), end}

	m := New(lake.NewMemoryStore(), repo)
	report, err := m.Coverage(context.Background(), "EURUSD", start, end)
	require.NoError(t, err)
	assert.Equal(t, 5, report.TotalDays)
	assert.Equal(t, 3, report.CoveredDays)
	assert.False(t, report.Covered)
	require.Len(t, report.MissingRanges, 1)
	assert.True(t, report.MissingRanges[0].Start.Equal(start.AddDate(0, 0, 2)))
	assert.True(t, report.MissingRanges[0].End.Equal(start.AddDate(0, 0, 3)))
}
