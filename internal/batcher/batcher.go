// Package batcher accumulates live ticks per symbol and flushes them
// to the data lake on a size or age trigger, per spec.md §4.C. The
// state-machine shape (single owning worker, periodic sweep,
// synchronous flush-on-stop) follows the teacher's single-worker
// batcher style used throughout its streaming components.
package batcher

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fxcore/tickpipe/internal/lake"
	"github.com/fxcore/tickpipe/internal/metrics"
	"github.com/fxcore/tickpipe/internal/tick"
)

// Config enumerates the batcher's tunables (spec.md §4.C).
type Config struct {
	MaxBatchSize  int
	MaxBatchAge   time.Duration
	SweepInterval time.Duration
}

// DefaultConfig matches spec.md's stated defaults.
func DefaultConfig() Config {
	return Config{
		MaxBatchSize:  1000,
		MaxBatchAge:   5 * time.Minute,
		SweepInterval: time.Minute,
	}
}

type symbolBatch struct {
	ticks         []tick.Tick
	firstTickTime time.Time
	lastUpdated   time.Time
}

// Batcher owns the symbol -> batch mapping. All mutation happens on
// the calling goroutine or the sweeper goroutine, serialized by mu;
// there is exactly one logical owner of the state per spec.md §5.
type Batcher struct {
	cfg    Config
	store  lake.Uploader
	clock  func() time.Time

	mu      sync.Mutex
	batches map[string]*symbolBatch
	stopped bool

	stopCh  chan struct{}
	doneCh  chan struct{}
	metrics *metrics.Registry
}

// New builds a Batcher writing to store.
func New(cfg Config, store lake.Uploader) *Batcher {
	return &Batcher{
		cfg:     cfg,
		store:   store,
		clock:   time.Now,
		batches: make(map[string]*symbolBatch),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// WithMetrics attaches a metrics registry. Optional: a Batcher with no
// registry attached simply skips instrumentation.
func (b *Batcher) WithMetrics(m *metrics.Registry) *Batcher {
	b.metrics = m
	return b
}

// Run starts the periodic sweeper. It blocks until ctx is done or
// Stop is called.
func (b *Batcher) Run(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.SweepInterval)
	defer ticker.Stop()
	defer close(b.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.sweep(ctx)
		}
	}
}

// Accept validates and appends t to symbol's batch, flushing
// immediately if the batch has reached max_batch_size. Invalid ticks
// are dropped with a warning; Accept never returns an error to the
// caller, matching spec.md §4.C's "no exception propagates" contract.
func (b *Batcher) Accept(ctx context.Context, symbol string, t tick.Tick) {
	if err := t.Validate(); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("dropping invalid tick")
		if b.metrics != nil {
			b.metrics.TicksDropped.WithLabelValues(symbol).Inc()
		}
		return
	}
	if b.metrics != nil {
		b.metrics.TicksAccepted.WithLabelValues(symbol).Inc()
	}

	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		log.Warn().Str("symbol", symbol).Msg("dropping tick received after stop")
		return
	}

	batch, ok := b.batches[symbol]
	if !ok {
		batch = &symbolBatch{firstTickTime: b.clock()}
		b.batches[symbol] = batch
	}
	batch.ticks = append(batch.ticks, t)
	batch.lastUpdated = b.clock()
	flush := len(batch.ticks) >= b.cfg.MaxBatchSize
	b.mu.Unlock()

	if flush {
		b.flush(ctx, symbol)
	}
}

// sweep flushes every batch whose oldest tick exceeds max_batch_age.
func (b *Batcher) sweep(ctx context.Context) {
	b.mu.Lock()
	var due []string
	now := b.clock()
	for sym, batch := range b.batches {
		if len(batch.ticks) > 0 && now.Sub(batch.firstTickTime) >= b.cfg.MaxBatchAge {
			due = append(due, sym)
		}
	}
	b.mu.Unlock()

	for _, sym := range due {
		b.flush(ctx, sym)
	}
}

// flush swaps out symbol's pending ticks and writes them to the data
// lake. Ticks accepted while the upload is in flight land in a fresh
// batch and are unaffected. On failure the swapped-out ticks are
// merged back in front of whatever accumulated since, so they are
// retried on the next trigger.
func (b *Batcher) flush(ctx context.Context, symbol string) {
	b.mu.Lock()
	batch, ok := b.batches[symbol]
	if !ok || len(batch.ticks) == 0 {
		b.mu.Unlock()
		return
	}
	ticks := batch.ticks
	firstTickTime := batch.firstTickTime
	delete(b.batches, symbol)
	b.mu.Unlock()

	seq := b.clock().UnixMilli()
	_, err := b.store.Upload(ctx, symbol, firstTickTime, seq, lake.Blob{Symbol: symbol, Ticks: ticks})
	if err == nil {
		if b.metrics != nil {
			b.metrics.BatchesFlushed.WithLabelValues(symbol, flushTrigger(len(ticks), b.cfg.MaxBatchSize)).Inc()
			b.metrics.BatchSize.WithLabelValues(symbol).Observe(float64(len(ticks)))
		}
		return
	}

	log.Warn().Err(err).Str("symbol", symbol).Msg("flush failed, batch retained")
	if b.metrics != nil {
		b.metrics.FlushFailures.WithLabelValues(symbol).Inc()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.batches[symbol]; ok {
		cur.ticks = append(append([]tick.Tick{}, ticks...), cur.ticks...)
		cur.firstTickTime = firstTickTime
	} else {
		b.batches[symbol] = &symbolBatch{ticks: ticks, firstTickTime: firstTickTime, lastUpdated: b.clock()}
	}
}

// Stop cancels the sweeper and flushes every non-empty batch
// synchronously before returning. No tick accepted after Stop begins
// is included in these flushes.
func (b *Batcher) Stop(ctx context.Context) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	symbols := make([]string, 0, len(b.batches))
	for sym := range b.batches {
		symbols = append(symbols, sym)
	}
	b.mu.Unlock()

	close(b.stopCh)

	for _, sym := range symbols {
		b.flush(ctx, sym)
	}
}

// flushTrigger labels a flush by what caused it, for the
// batches_flushed_total metric's "trigger" label.
func flushTrigger(ticks, maxBatchSize int) string {
	if ticks >= maxBatchSize {
		return "size"
	}
	return "age_or_stop"
}
