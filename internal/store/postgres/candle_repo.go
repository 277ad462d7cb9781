package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/fxcore/tickpipe/internal/store"
)

const upsertBatchSize = 500

type candleRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewCandleRepo builds a store.CandleRepo backed by db.
func NewCandleRepo(db *sqlx.DB, timeout time.Duration) store.CandleRepo {
	return &candleRepo{db: db, timeout: timeout}
}

// UpsertBatch writes candles in chunks of at most upsertBatchSize rows,
// one transaction per chunk, conflicting on (symbol, time) per
// spec.md §4.E.2.
func (r *candleRepo) UpsertBatch(ctx context.Context, candles []store.CandleRow) error {
	for start := 0; start < len(candles); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(candles) {
			end = len(candles)
		}
		if err := r.upsertChunk(ctx, candles[start:end]); err != nil {
			return &upsertChunkError{start: start, end: end, err: err}
		}
	}
	return nil
}

func (r *candleRepo) upsertChunk(ctx context.Context, chunk []store.CandleRow) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles_5m (time, symbol, open, high, low, close, volume, trades)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, time) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			trades = EXCLUDED.trades`)
	if err != nil {
		return fmt.Errorf("postgres: prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunk {
		if _, err := stmt.ExecContext(ctx, c.Time, c.Symbol, c.Open, c.High, c.Low, c.Close, c.Volume, c.Trades); err != nil {
			if pqErr, ok := err.(*pq.Error); ok {
				return fmt.Errorf("postgres: upsert candle %s@%s (code %s): %w", c.Symbol, c.Time, pqErr.Code, err)
			}
			return fmt.Errorf("postgres: upsert candle %s@%s: %w", c.Symbol, c.Time, err)
		}
	}

	return tx.Commit()
}

// CoverageBySymbol reports the stored range and count for symbol within tr.
func (r *candleRepo) CoverageBySymbol(ctx context.Context, symbol string, tr store.TimeRange) (store.Coverage, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT MIN(time), MAX(time), COUNT(*)
		FROM candles_5m
		WHERE symbol = $1 AND time >= $2 AND time <= $3`

	var earliest, latest *time.Time
	var count int64
	if err := r.db.QueryRowxContext(ctx, query, symbol, tr.From, tr.To).Scan(&earliest, &latest, &count); err != nil {
		return store.Coverage{}, fmt.Errorf("postgres: coverage query: %w", err)
	}

	cov := store.Coverage{Symbol: symbol, Count: count}
	if earliest != nil {
		cov.EarliestAt = *earliest
	}
	if latest != nil {
		cov.LatestAt = *latest
	}
	return cov, nil
}

// DaysWithData returns the distinct UTC calendar days within tr that
// have at least one row for symbol, ascending.
func (r *candleRepo) DaysWithData(ctx context.Context, symbol string, tr store.TimeRange) ([]time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT DISTINCT date_trunc('day', time AT TIME ZONE 'UTC') AS day
		FROM candles_5m
		WHERE symbol = $1 AND time >= $2 AND time <= $3
		ORDER BY day ASC`

	rows, err := r.db.QueryxContext(ctx, query, symbol, tr.From, tr.To)
	if err != nil {
		return nil, fmt.Errorf("postgres: days with data query: %w", err)
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("postgres: scan day: %w", err)
		}
		days = append(days, d.UTC())
	}
	return days, rows.Err()
}

// RefreshContinuousAggregates requests TimescaleDB refresh the
// candles_15m/1h/4h/12h aggregates covering tr, per spec.md §4.E.4.
func (r *candleRepo) RefreshContinuousAggregates(ctx context.Context, tr store.TimeRange) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	views := []string{"candles_15m", "candles_1h", "candles_4h", "candles_12h"}
	for _, view := range views {
		_, err := r.db.ExecContext(ctx, `CALL refresh_continuous_aggregate($1, $2, $3)`, view, tr.From, tr.To)
		if err != nil {
			return fmt.Errorf("postgres: refresh %s: %w", view, err)
		}
	}
	return nil
}

type upsertChunkError struct {
	start, end int
	err        error
}

func (e *upsertChunkError) Error() string {
	return fmt.Sprintf("postgres: upsert rows [%d:%d]: %v", e.start, e.end, e.err)
}

func (e *upsertChunkError) Unwrap() error { return e.err }
