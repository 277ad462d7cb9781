// Package candle implements the deterministic, streaming tick-to-candle
// construction algorithm: clean, deduplicate, quality-gate, sort, bucket.
//
// The merge-by-bucket shape is grounded on the per-exchange candle
// aggregation in the wider pack's candle aggregator (clean separation of
// "merge the inputs for one bucket" from "decide when a bucket is done"),
// adapted here to a single-source tick stream instead of multiple
// exchange feeds.
package candle

import (
	"math"
	"sort"

	"github.com/fxcore/tickpipe/internal/fxerr"
	"github.com/fxcore/tickpipe/internal/tick"
)

// BucketSeconds is the fixed candle width. The spec's relational schema
// and continuous aggregates assume the base grain is 5 minutes.
const BucketSeconds = 300

// QualityDropRateThreshold is the maximum tolerated ratio of invalid
// ticks to total ticks before construction aborts with a QualityError.
const QualityDropRateThreshold = 0.05

// Candle is a 5-minute OHLC bar. Volume is always zero: the tick source
// carries no traded volume.
type Candle struct {
	Symbol      string
	BucketStart int64
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	Trades      int
}

// Stats summarizes the clean step, useful for CLI progress reporting.
type Stats struct {
	Total    int
	Dropped  int
	DupesOut int
}

// DropRate returns Dropped / Total, or 0 if Total is 0.
func (s Stats) DropRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Dropped) / float64(s.Total)
}

// Build runs the full construction pipeline over an unordered set of
// ticks for one symbol: clean, dedupe by timestamp (last wins), gate on
// drop rate, sort, bucket. Returns the ordered candle sequence.
//
// An empty input produces an empty output, not an error.
func Build(symbol string, ticks []tick.Tick) ([]Candle, Stats, error) {
	stats := Stats{Total: len(ticks)}
	if len(ticks) == 0 {
		return nil, stats, nil
	}

	cleaned := make([]tick.Tick, 0, len(ticks))
	for _, t := range ticks {
		if err := t.ValidateForClean(); err != nil {
			stats.Dropped++
			continue
		}
		cleaned = append(cleaned, t)
	}

	if stats.DropRate() > QualityDropRateThreshold {
		return nil, stats, &fxerr.QualityError{
			Symbol:    symbol,
			DropRate:  stats.DropRate(),
			Threshold: QualityDropRateThreshold,
			Total:     stats.Total,
			Dropped:   stats.Dropped,
		}
	}

	deduped := dedupeByTimestamp(cleaned)
	stats.DupesOut = len(cleaned) - len(deduped)

	sort.Slice(deduped, func(i, j int) bool { return deduped[i].T < deduped[j].T })

	candles := bucket(symbol, deduped)
	return candles, stats, nil
}

// dedupeByTimestamp keeps the last occurrence of each timestamp,
// preserving input order among surviving entries (order is irrelevant
// here since Build sorts immediately after, but this keeps the function
// independently testable and correct in isolation).
func dedupeByTimestamp(ticks []tick.Tick) []tick.Tick {
	lastIdx := make(map[float64]int, len(ticks))
	for i, t := range ticks {
		lastIdx[t.T] = i
	}
	out := make([]tick.Tick, 0, len(lastIdx))
	seen := make(map[float64]struct{}, len(lastIdx))
	for i, t := range ticks {
		if lastIdx[t.T] != i {
			continue
		}
		if _, ok := seen[t.T]; ok {
			continue
		}
		seen[t.T] = struct{}{}
		out = append(out, t)
	}
	return out
}

// BucketStart returns floor(t/300)*300.
func BucketStart(t float64) int64 {
	return int64(math.Floor(t/BucketSeconds)) * BucketSeconds
}

// bucket assumes ticks is sorted ascending by T and free of duplicate
// timestamps.
func bucket(symbol string, ticks []tick.Tick) []Candle {
	var candles []Candle
	var cur *Candle
	var curBucket int64 = -1

	flush := func() {
		if cur != nil {
			candles = append(candles, *cur)
		}
	}

	for _, t := range ticks {
		b := BucketStart(t.T)
		mid := round5(t.Mid())

		if cur == nil || b != curBucket {
			flush()
			cur = &Candle{
				Symbol:      symbol,
				BucketStart: b,
				Open:        mid,
				High:        mid,
				Low:         mid,
				Close:       mid,
				Trades:      1,
			}
			curBucket = b
			continue
		}

		cur.Close = mid
		if mid > cur.High {
			cur.High = mid
		}
		if mid < cur.Low {
			cur.Low = mid
		}
		cur.Trades++
	}
	flush()

	return candles
}

// round5 rounds to 5 decimal places, the precision the spec requires for
// mid prices.
func round5(v float64) float64 {
	const f = 1e5
	return math.Round(v*f) / f
}
