// Package historical fetches tick data for a (symbol, [start, end])
// request from a historical provider and writes it into the data lake
// in the same layout as the tick batcher (spec.md §4.D). The adaptive
// sub-chunking descent is this package's central correctness property:
// it lets a year-long import finish despite per-day provider flakiness.
package historical

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fxcore/tickpipe/internal/fxerr"
	"github.com/fxcore/tickpipe/internal/lake"
	"github.com/fxcore/tickpipe/internal/metrics"
	"github.com/fxcore/tickpipe/internal/netutil"
	"github.com/fxcore/tickpipe/internal/symbol"
	"github.com/fxcore/tickpipe/internal/tick"
)

// RawTick is one record as returned by the historical provider SDK,
// before sanitization.
type RawTick struct {
	TimestampMS int64
	Bid         float64
	Ask         float64
}

// Fetcher is the historical provider's black-box SDK contract
// (spec.md §6): fetch(instrument, from, to) -> ticks | Error, where
// Error may be a transient network error, ErrProviderBuffer, or other.
// Implementations MUST carry a finite retry budget internally — never
// infinite retry.
type Fetcher interface {
	Fetch(ctx context.Context, instrument string, from, to time.Time) ([]RawTick, error)
}

// Config enumerates the importer's tunables (spec.md §4.D).
type Config struct {
	DefaultChunkHours int
	BetweenChunkDelay time.Duration
}

// DefaultConfig matches spec.md's stated defaults: 1-day chunks, 10s
// pacing between them.
func DefaultConfig() Config {
	return Config{DefaultChunkHours: 24, BetweenChunkDelay: 10 * time.Second}
}

// Importer walks a date range in UTC-day-aligned chunks, fetching each
// from provider and uploading sanitized ticks to store.
type Importer struct {
	cfg       Config
	provider  Fetcher
	store     lake.Uploader
	allowlist symbol.Allowlist
	sleep     func(time.Duration)
	seq       func() int64
	metrics   *metrics.Registry
}

// WithMetrics attaches a metrics registry. Optional.
func (im *Importer) WithMetrics(m *metrics.Registry) *Importer {
	im.metrics = m
	return im
}

// New builds an Importer. allowlist gates which symbols may be
// imported (spec.md §4.D "Symbol validation").
func New(cfg Config, provider Fetcher, store lake.Uploader, allowlist symbol.Allowlist) *Importer {
	// seq is Unix millis, bumped past the last value so two uploads in the
	// same millisecond never share a blob key.
	var last int64
	return &Importer{
		cfg:       cfg,
		provider:  provider,
		store:     store,
		allowlist: allowlist,
		sleep:     time.Sleep,
		seq: func() int64 {
			n := time.Now().UnixMilli()
			if n <= last {
				n = last + 1
			}
			last = n
			return n
		},
	}
}

// Import fetches sym's ticks over [start, end) and uploads them,
// chunk by chunk. It never returns an error for provider-side failures
// on individual chunks: those are logged and skipped, per the hard
// "no infinite retry, never crash the job" contract.
func (im *Importer) Import(ctx context.Context, sym string, start, end time.Time) error {
	canon := symbol.Canonicalize(sym)
	if err := im.allowlist.Check(canon); err != nil {
		return err
	}

	chunkSize := time.Duration(im.cfg.DefaultChunkHours) * time.Hour
	for cur := start.UTC(); cur.Before(end.UTC()); cur = cur.Add(chunkSize) {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		chunkEnd := cur.Add(chunkSize)
		if chunkEnd.After(end) {
			chunkEnd = end
		}

		im.importChunk(ctx, canon, cur, chunkEnd)

		if im.cfg.BetweenChunkDelay > 0 {
			im.sleep(im.cfg.BetweenChunkDelay)
		}
	}
	return nil
}

// importChunk fetches and uploads one chunk, recursing into smaller
// sub-chunks on a ProviderBuffer failure. It never propagates an
// error: every failure path logs and returns.
func (im *Importer) importChunk(ctx context.Context, sym string, from, to time.Time) {
	if !from.Before(to) {
		return
	}
	if chunkFullyClosed(from, to) {
		log.Debug().Str("symbol", sym).Time("from", from).Time("to", to).Msg("skipping weekend-closed chunk")
		im.countSkipped(sym, "weekend_closed")
		return
	}

	raw, err := im.fetchWithTransientRetry(ctx, sym, from, to)
	if err != nil {
		var bufErr *fxerr.ProviderBufferError
		if errors.As(err, &bufErr) {
			if im.metrics != nil {
				im.metrics.ImportSubChunked.WithLabelValues(sym).Inc()
			}
			im.subChunk(ctx, sym, from, to)
			return
		}
		log.Warn().Err(err).Str("symbol", sym).Time("from", from).Time("to", to).Msg("chunk fetch failed, skipping")
		im.countSkipped(sym, "fetch_error")
		return
	}

	ticks := sanitize(raw)
	if len(ticks) == 0 {
		return
	}

	seq := im.seq()
	if _, err := im.store.Upload(ctx, sym, from, seq, lake.Blob{Symbol: sym, Ticks: ticks}); err != nil {
		log.Warn().Err(err).Str("symbol", sym).Time("from", from).Msg("upload failed, chunk dropped")
		im.countSkipped(sym, "upload_error")
		return
	}
	if im.metrics != nil {
		im.metrics.ImportChunksOK.WithLabelValues(sym).Inc()
	}
}

func (im *Importer) countSkipped(sym, reason string) {
	if im.metrics != nil {
		im.metrics.ImportChunksSkipped.WithLabelValues(sym, reason).Inc()
	}
}

// subChunk implements the adaptive descent: > 1h retries as 6h then
// 1h pieces; a 1-hour chunk that still fails is logged as no data
// available and the job advances past it.
func (im *Importer) subChunk(ctx context.Context, sym string, from, to time.Time) {
	dur := to.Sub(from)
	if dur <= time.Hour {
		log.Warn().Str("symbol", sym).Time("from", from).Time("to", to).Msg("no data available for chunk after sub-chunking, skipping")
		im.countSkipped(sym, "no_data_after_subchunk")
		return
	}

	step := 6 * time.Hour
	if dur <= 6*time.Hour {
		step = time.Hour
	}

	for cur := from; cur.Before(to); cur = cur.Add(step) {
		end := cur.Add(step)
		if end.After(to) {
			end = to
		}
		im.importChunk(ctx, sym, cur, end)
	}
}

// fetchWithTransientRetry retries once after a 30s sleep on a
// transient network error; a second failure is returned to the caller
// to skip. Other errors (including ProviderBuffer) pass straight
// through.
func (im *Importer) fetchWithTransientRetry(ctx context.Context, sym string, from, to time.Time) ([]RawTick, error) {
	raw, err := im.provider.Fetch(ctx, sym, from, to)
	if err == nil {
		return raw, nil
	}
	if !netutil.IsTransientNetworkError(err) {
		return nil, err
	}

	log.Warn().Err(err).Str("symbol", sym).Msg("transient network error, retrying once after delay")
	im.sleep(30 * time.Second)

	raw, err = im.provider.Fetch(ctx, sym, from, to)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// sanitize drops provider ticks with non-finite fields or non-positive
// prices before upload, per spec.md §4.D.
func sanitize(raw []RawTick) []tick.Tick {
	out := make([]tick.Tick, 0, len(raw))
	for _, r := range raw {
		t := tick.Tick{T: float64(r.TimestampMS) / 1000.0, Bid: r.Bid, Ask: r.Ask}
		if !finite(t.T) || !finite(t.Bid) || !finite(t.Ask) {
			continue
		}
		if t.Bid <= 0 || t.Ask <= 0 {
			continue
		}
		out = append(out, t)
	}
	return out
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// isClosed reports whether t falls in the weekend market-closed
// window: Saturday 00:00 UTC through Sunday 22:00 UTC.
func isClosed(t time.Time) bool {
	u := t.UTC()
	switch u.Weekday() {
	case time.Saturday:
		return true
	case time.Sunday:
		return u.Hour() < 22
	default:
		return false
	}
}

// chunkFullyClosed reports whether every hour boundary in [from, to)
// falls in the closed window, so the whole chunk can be skipped
// without calling the provider.
func chunkFullyClosed(from, to time.Time) bool {
	for cur := from; cur.Before(to); cur = cur.Add(time.Hour) {
		if !isClosed(cur) {
			return false
		}
	}
	return true
}
