// Package lake stores raw tick blobs in an S3-compatible object store,
// keyed by symbol and UTC date per spec.md §6. No example in the
// retrieval pack exercises aws-sdk-go-v2's S3 client, so this package
// is grounded on the ecosystem's documented manager.Uploader pattern
// rather than a teacher file (see DESIGN.md).
package lake

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fxcore/tickpipe/internal/tick"
)

// Key builds the object key for a batch of ticks for symbol whose
// UTC date is derived from asOf: ticks/{SYMBOL}/{YYYY}/{MM}/{DD}/part-{seq}.json
func Key(symbol string, asOf time.Time, seq int64) string {
	u := asOf.UTC()
	return fmt.Sprintf("ticks/%s/%04d/%02d/%02d/part-%d.json",
		symbol, u.Year(), u.Month(), u.Day(), seq)
}

// Blob is one uploaded batch of ticks. Symbol is carried for callers'
// convenience but is never part of the wire body: per spec.md §3/§6
// the persisted object is a bare JSON array of tick records, with the
// symbol recovered from the object key instead.
type Blob struct {
	Symbol string
	Ticks  []tick.Tick
}

// MarshalJSON writes Ticks as a bare JSON array, matching the
// documented object-store wire format.
func (b Blob) MarshalJSON() ([]byte, error) {
	if b.Ticks == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(b.Ticks)
}

// UnmarshalJSON reads a bare JSON array of tick records into Ticks.
// Symbol is left unset; callers derive it from the object key.
func (b *Blob) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &b.Ticks)
}

// Uploader writes a tick blob to the data lake and returns its key.
type Uploader interface {
	Upload(ctx context.Context, symbol string, asOf time.Time, seq int64, blob Blob) (string, error)
}

// Lister enumerates blob keys under a symbol/date prefix, for the
// materializer's per-day blob reads.
type Lister interface {
	List(ctx context.Context, symbol string, date time.Time) ([]string, error)
}

// Getter fetches a previously uploaded blob by key.
type Getter interface {
	Get(ctx context.Context, key string) (Blob, error)
}

// Walker enumerates every key under the ticks/ root, for the analyze
// CLI command's bucket-wide scan (spec.md §6).
type Walker interface {
	WalkAll(ctx context.Context) ([]string, error)
}

// Store composes the data-lake operations the pipeline needs.
type Store interface {
	Uploader
	Lister
	Getter
	Walker
}

// ParseKey parses a "ticks/{SYMBOL}/{YYYY}/{MM}/{DD}/part-N.json" key
// back into its symbol and UTC date, for analyze's aggregation.
func ParseKey(key string) (symbol string, date time.Time, ok bool) {
	parts := splitKey(key)
	if len(parts) < 5 || parts[0] != "ticks" {
		return "", time.Time{}, false
	}
	d, ok := keyDate(key)
	if !ok {
		return "", time.Time{}, false
	}
	return parts[1], d, true
}

func keyDate(key string) (time.Time, bool) {
	parts := splitKey(key)
	if len(parts) < 5 || parts[0] != "ticks" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006/01/02", parts[2]+"/"+parts[3]+"/"+parts[4])
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func splitKey(key string) []string {
	var parts []string
	start := 0
	for i, r := range key {
		if r == '/' {
			parts = append(parts, key[start:i])
			start = i + 1
		}
	}
	parts = append(parts, key[start:])
	return parts
}
