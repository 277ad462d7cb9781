package batcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fxcore/tickpipe/internal/lake"
	"github.com/fxcore/tickpipe/internal/tick"
)

func validTick(t float64) tick.Tick {
	return tick.Tick{T: t, Bid: 1.1000, Ask: 1.1002}
}

func TestBatcher_FlushesOnMaxBatchSize(t *testing.T) {
	store := lake.NewMemoryStore()
	cfg := DefaultConfig()
	cfg.MaxBatchSize = 3
	b := New(cfg, store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b.Accept(ctx, "EURUSD", validTick(1700000000+float64(i)))
	}

	keys, err := store.List(ctx, "EURUSD", time.Now())
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	blob, err := store.Get(ctx, keys[0])
	require.NoError(t, err)
	assert.Len(t, blob.Ticks, 3)
}

func TestBatcher_DropsInvalidTicks(t *testing.T) {
	store := lake.NewMemoryStore()
	b := New(DefaultConfig(), store)
	ctx := context.Background()

	b.Accept(ctx, "EURUSD", tick.Tick{T: -1, Bid: 1.1, Ask: 1.1001})
	b.Accept(ctx, "EURUSD", tick.Tick{T: 1700000000, Bid: -1, Ask: 1.1001})
	b.Accept(ctx, "EURUSD", tick.Tick{T: 1700000000, Bid: 1.2, Ask: 1.1}) // crossed

	b.Stop(ctx)
	keys, err := store.List(ctx, "EURUSD", time.Now())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestBatcher_Stop_FlushesSynchronously(t *testing.T) {
	store := lake.NewMemoryStore()
	b := New(DefaultConfig(), store)
	ctx := context.Background()

	b.Accept(ctx, "EURUSD", validTick(1700000000))
	b.Stop(ctx)

	keys, err := store.List(ctx, "EURUSD", time.Now())
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestBatcher_Stop_RejectsSubsequentTicks(t *testing.T) {
	store := lake.NewMemoryStore()
	b := New(DefaultConfig(), store)
	ctx := context.Background()

	b.Stop(ctx)
	b.Accept(ctx, "EURUSD", validTick(1700000000))

	keys, err := store.List(ctx, "EURUSD", time.Now())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

type failingUploader struct{ calls int }

func (f *failingUploader) Upload(ctx context.Context, symbol string, asOf time.Time, seq int64, blob lake.Blob) (string, error) {
	f.calls++
	return "", errors.New("boom")
}

func TestBatcher_RetainsBatchOnFlushFailure(t *testing.T) {
	store := &failingUploader{}
	cfg := DefaultConfig()
	cfg.MaxBatchSize = 1
	b := New(cfg, store)
	ctx := context.Background()

	b.Accept(ctx, "EURUSD", validTick(1700000000))
	assert.Equal(t, 1, store.calls)

	b.mu.Lock()
	batch, ok := b.batches["EURUSD"]
	b.mu.Unlock()
	require.True(t, ok)
	assert.Len(t, batch.ticks, 1)
}

func TestBatcher_SweepFlushesAgedBatch(t *testing.T) {
	store := lake.NewMemoryStore()
	cfg := DefaultConfig()
	cfg.MaxBatchAge = 10 * time.Millisecond
	b := New(cfg, store)
	ctx := context.Background()

	b.Accept(ctx, "EURUSD", validTick(1700000000))
	time.Sleep(20 * time.Millisecond)
	b.sweep(ctx)

	keys, err := store.List(ctx, "EURUSD", time.Now())
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}
