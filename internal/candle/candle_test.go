package candle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fxcore/tickpipe/internal/fxerr"
	"github.com/fxcore/tickpipe/internal/tick"
)

func TestBuild_SingleBucket(t *testing.T) {
	ticks := []tick.Tick{
		{T: 1704067200, Bid: 1.1000, Ask: 1.1002},
		{T: 1704067260, Bid: 1.1004, Ask: 1.1006},
		{T: 1704067499, Bid: 1.1001, Ask: 1.1003},
	}
	candles, stats, err := Build("EURUSD", ticks)
	require.NoError(t, err)
	require.Len(t, candles, 1)

	c := candles[0]
	assert.Equal(t, int64(1704067200), c.BucketStart)
	assert.InDelta(t, 1.1001, c.Open, 1e-9)
	assert.InDelta(t, 1.1005, c.High, 1e-9)
	assert.InDelta(t, 1.1001, c.Low, 1e-9)
	assert.InDelta(t, 1.1002, c.Close, 1e-9)
	assert.Equal(t, 3, c.Trades)
	assert.Equal(t, float64(0), c.Volume)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 0, stats.Dropped)
}

func TestBuild_DedupeByTimestamp_LastWins(t *testing.T) {
	ticks := []tick.Tick{
		{T: 1704067200, Bid: 1, Ask: 2},
		{T: 1704067200, Bid: 3, Ask: 4},
	}
	candles, _, err := Build("EURUSD", ticks)
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.InDelta(t, 3.5, candles[0].Close, 1e-9)
	assert.Equal(t, 1, candles[0].Trades)
}

func TestBuild_QualityGate(t *testing.T) {
	ticks := make([]tick.Tick, 0, 1000)
	for i := 0; i < 940; i++ {
		ticks = append(ticks, tick.Tick{T: float64(1704067200 + i), Bid: 1.1, Ask: 1.1002})
	}
	for i := 0; i < 60; i++ {
		ticks = append(ticks, tick.Tick{T: float64(1704067200 + 940 + i), Bid: 1.2, Ask: 1.1})
	}
	_, _, err := Build("EURUSD", ticks)
	require.Error(t, err)
	var qe *fxerr.QualityError
	require.True(t, errors.As(err, &qe))
	assert.InDelta(t, 0.06, qe.DropRate, 1e-9)
}

func TestBuild_EmptyInput(t *testing.T) {
	candles, stats, err := Build("EURUSD", nil)
	require.NoError(t, err)
	assert.Empty(t, candles)
	assert.Equal(t, 0, stats.Total)
}

func TestBuild_SingleTickBucket(t *testing.T) {
	candles, _, err := Build("EURUSD", []tick.Tick{{T: 1704067200, Bid: 1.1, Ask: 1.1002}})
	require.NoError(t, err)
	require.Len(t, candles, 1)
	c := candles[0]
	assert.Equal(t, c.Open, c.High)
	assert.Equal(t, c.Open, c.Low)
	assert.Equal(t, c.Open, c.Close)
	assert.Equal(t, 1, c.Trades)
}

func TestBucketStart(t *testing.T) {
	assert.Equal(t, int64(1704067200), BucketStart(1704067200))
	assert.Equal(t, int64(1704067200), BucketStart(1704067499))
	assert.Equal(t, int64(1704067500), BucketStart(1704067500))
}

func TestBuild_Invariants(t *testing.T) {
	ticks := []tick.Tick{
		{T: 1704067200, Bid: 1.10, Ask: 1.1002},
		{T: 1704067210, Bid: 1.09, Ask: 1.0902},
		{T: 1704067220, Bid: 1.11, Ask: 1.1102},
	}
	candles, _, err := Build("EURUSD", ticks)
	require.NoError(t, err)
	for _, c := range candles {
		assert.LessOrEqual(t, c.Low, c.Open)
		assert.LessOrEqual(t, c.Low, c.Close)
		assert.GreaterOrEqual(t, c.High, c.Open)
		assert.GreaterOrEqual(t, c.High, c.Close)
		assert.GreaterOrEqual(t, c.Trades, 1)
	}
}
