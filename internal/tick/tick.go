// Package tick defines the Tick type and the validation rules shared by
// the batcher, the historical importer, and the materializer's cleaning
// step.
package tick

import (
	"math"

	"github.com/fxcore/tickpipe/internal/fxerr"
)

// minValidUnix and maxValidUnix bound the "sane clock range" the spec
// requires for live tick timestamps.
const (
	minValidUnix = 1577836800 // 2020-01-01T00:00:00Z
	maxValidUnix = 1893456000 // 2030-01-01T00:00:00Z
)

// Tick is the immutable triplet (t, bid, ask). t is Unix seconds,
// fractional seconds allowed.
type Tick struct {
	T   float64 `json:"timestamp"`
	Bid float64 `json:"bid"`
	Ask float64 `json:"ask"`
}

// Mid returns (bid+ask)/2.
func (t Tick) Mid() float64 {
	return (t.Bid + t.Ask) / 2
}

// Validate reports whether t satisfies the batcher's sane-range input
// validation: finite, positive, bid < ask, t within [2020, 2030).
func (t Tick) Validate() error {
	if math.IsNaN(t.T) || math.IsInf(t.T, 0) || t.T < minValidUnix || t.T >= maxValidUnix {
		return fxerr.ErrInvalidTick
	}
	if math.IsNaN(t.Bid) || math.IsInf(t.Bid, 0) || t.Bid <= 0 {
		return fxerr.ErrInvalidTick
	}
	if math.IsNaN(t.Ask) || math.IsInf(t.Ask, 0) || t.Ask <= 0 {
		return fxerr.ErrInvalidTick
	}
	if t.Bid >= t.Ask {
		return fxerr.ErrInvalidTick
	}
	return nil
}

// ValidateForClean applies the materializer cleaning rules, which are
// looser on the clock-range check (historical ticks are not bounded to
// 2020-2030 in the same way) but identical on price/spread sanity.
func (t Tick) ValidateForClean() error {
	if math.IsNaN(t.T) || math.IsInf(t.T, 0) || t.T <= 0 {
		return fxerr.ErrInvalidTick
	}
	if math.IsNaN(t.Bid) || math.IsInf(t.Bid, 0) || t.Bid <= 0 {
		return fxerr.ErrInvalidTick
	}
	if math.IsNaN(t.Ask) || math.IsInf(t.Ask, 0) || t.Ask <= 0 {
		return fxerr.ErrInvalidTick
	}
	if t.Bid >= t.Ask {
		return fxerr.ErrInvalidTick
	}
	return nil
}
