// Package postgres is the Candle store's PostgreSQL implementation,
// adapted from the teacher's internal/infrastructure/db connection
// manager and internal/persistence/postgres trades repository.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/fxcore/tickpipe/internal/store"
)

// Config holds Postgres connection pool settings, mirroring
// internal/config.PostgresConfig.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
}

// Manager owns the pooled connection and the candle repository built
// on top of it.
type Manager struct {
	db      *sqlx.DB
	cfg     Config
	repo    store.CandleRepo
	health  *healthChecker
}

// NewManager opens a pooled connection to cfg.DSN and verifies it with
// a ping before returning.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres: DSN is required")
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return &Manager{
		db:     db,
		cfg:    cfg,
		repo:   NewCandleRepo(db, cfg.QueryTimeout),
		health: &healthChecker{db: db, timeout: cfg.QueryTimeout},
	}, nil
}

// Candles returns the candle repository.
func (m *Manager) Candles() store.CandleRepo { return m.repo }

// Health returns the health checker.
func (m *Manager) Health() store.Health { return m.health }

// DB returns the underlying pool, for migrations.
func (m *Manager) DB() *sqlx.DB { return m.db }

// Close closes the pool.
func (m *Manager) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

type healthChecker struct {
	db      *sqlx.DB
	timeout time.Duration
}

func (h *healthChecker) Health(ctx context.Context) store.HealthCheck {
	start := time.Now()
	pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var errs []string
	healthy := true
	if err := h.db.PingContext(pingCtx); err != nil {
		errs = append(errs, fmt.Sprintf("ping failed: %v", err))
		healthy = false
	}

	stats := h.db.Stats()
	return store.HealthCheck{
		Healthy: healthy,
		Errors:  errs,
		ConnectionPool: map[string]int{
			"max_open": stats.MaxOpenConnections,
			"open":     stats.OpenConnections,
			"in_use":   stats.InUse,
			"idle":     stats.Idle,
		},
		LastCheck:      time.Now(),
		ResponseTimeMS: time.Since(start).Milliseconds(),
	}
}

func (h *healthChecker) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return h.db.PingContext(pingCtx)
}
