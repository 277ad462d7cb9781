package historical

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fxcore/tickpipe/internal/fxerr"
	"github.com/fxcore/tickpipe/internal/lake"
	"github.com/fxcore/tickpipe/internal/symbol"
)

type fakeFetcher struct {
	calls     []chunkCall
	responses func(from, to time.Time) ([]RawTick, error)
}

type chunkCall struct{ from, to time.Time }

func (f *fakeFetcher) Fetch(_ context.Context, _ string, from, to time.Time) ([]RawTick, error) {
	f.calls = append(f.calls, chunkCall{from, to})
	return f.responses(from, to)
}

func noSleep(time.Duration) {}

func TestImport_RejectsUnknownSymbol(t *testing.T) {
	store := lake.NewMemoryStore()
	fetcher := &fakeFetcher{responses: func(from, to time.Time) ([]RawTick, error) { return nil, nil }}
	im := New(DefaultConfig(), fetcher, store, symbol.DefaultAllowlist())

	err := im.Import(context.Background(), "ZZZZZZ", time.Now(), time.Now().Add(time.Hour))
	require.Error(t, err)
	assert.ErrorIs(t, err, fxerr.ErrInvalidInput)
}

func TestImport_SkipsWeekendClosedChunk(t *testing.T) {
	store := lake.NewMemoryStore()
	fetcher := &fakeFetcher{responses: func(from, to time.Time) ([]RawTick, error) {
		return []RawTick{{TimestampMS: from.UnixMilli(), Bid: 1.1, Ask: 1.1001}}, nil
	}}
	cfg := Config{DefaultChunkHours: 24, BetweenChunkDelay: 0}
	im := New(cfg, fetcher, store, symbol.DefaultAllowlist())
	im.sleep = noSleep

	// Saturday 2026-01-03 is fully closed.
	start := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	require.NoError(t, im.Import(context.Background(), "EURUSD", start, end))
	assert.Empty(t, fetcher.calls)
}

func TestImport_UploadsSanitizedTicks(t *testing.T) {
	store := lake.NewMemoryStore()
	fetcher := &fakeFetcher{responses: func(from, to time.Time) ([]RawTick, error) {
		return []RawTick{
			{TimestampMS: from.UnixMilli(), Bid: 1.1, Ask: 1.1001},
			{TimestampMS: from.UnixMilli() + 1000, Bid: -1, Ask: 1.1001}, // dropped
		}, nil
	}}
	cfg := Config{DefaultChunkHours: 24, BetweenChunkDelay: 0}
	im := New(cfg, fetcher, store, symbol.DefaultAllowlist())
	im.sleep = noSleep

	// Monday, open all day.
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	require.NoError(t, im.Import(context.Background(), "EURUSD", start, end))

	keys, err := store.List(context.Background(), "EURUSD", start)
	require.NoError(t, err)
	require.Len(t, keys, 1)

	blob, err := store.Get(context.Background(), keys[0])
	require.NoError(t, err)
	assert.Len(t, blob.Ticks, 1)
}

func TestImportChunk_SubChunksOnProviderBuffer(t *testing.T) {
	store := lake.NewMemoryStore()
	var seenDurations []time.Duration
	fetcher := &fakeFetcher{responses: func(from, to time.Time) ([]RawTick, error) {
		seenDurations = append(seenDurations, to.Sub(from))
		if to.Sub(from) == 24*time.Hour {
			return nil, &fxerr.ProviderBufferError{Symbol: "EURUSD", Err: assertErr}
		}
		return []RawTick{{TimestampMS: from.UnixMilli(), Bid: 1.1, Ask: 1.1001}}, nil
	}}
	cfg := Config{DefaultChunkHours: 24, BetweenChunkDelay: 0}
	im := New(cfg, fetcher, store, symbol.DefaultAllowlist())
	im.sleep = noSleep

	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC) // Monday
	im.importChunk(context.Background(), "EURUSD", start, start.Add(24*time.Hour))

	assert.Contains(t, seenDurations, 24*time.Hour)
	assert.Contains(t, seenDurations, 6*time.Hour)

	keys, err := store.List(context.Background(), "EURUSD", start)
	require.NoError(t, err)
	assert.Len(t, keys, 4) // four 6h sub-chunks each upload one blob
}

func TestImportChunk_TransientErrorRetriesOnceThenSkips(t *testing.T) {
	store := lake.NewMemoryStore()
	attempts := 0
	fetcher := &fakeFetcher{responses: func(from, to time.Time) ([]RawTick, error) {
		attempts++
		return nil, errTransient
	}}
	im := New(DefaultConfig(), fetcher, store, symbol.DefaultAllowlist())
	var sleptFor time.Duration
	im.sleep = func(d time.Duration) { sleptFor = d }

	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	im.importChunk(context.Background(), "EURUSD", start, start.Add(time.Hour))

	assert.Equal(t, 2, attempts)
	assert.Equal(t, 30*time.Second, sleptFor)
}

var assertErr = &stubErr{"boom"}
var errTransient = &stubErr{"connection reset by peer"}

type stubErr struct{ msg string }

func (e *stubErr) Error() string { return e.msg }
