// Package netutil wires rate limiting, a retry budget, and circuit
// breaking around the historical provider's HTTP client.
//
// The rate limiter and budget tracker are adapted from the teacher's
// internal/net/ratelimit and internal/net/budget packages; the circuit
// breaker uses the real github.com/sony/gobreaker instead of the
// teacher's hand-rolled internal/net/circuit, since a maintained
// breaker implementation needs no reimplementation once it is a real
// dependency (see DESIGN.md).
package netutil

import (
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/fxcore/tickpipe/internal/net/budget"
	"github.com/fxcore/tickpipe/internal/net/ratelimit"
)

// ProviderClientConfig configures one historical-provider HTTP client.
type ProviderClientConfig struct {
	Provider       string
	Host           string
	RequestTimeout time.Duration
	RPS            float64
	Burst          int
	DailyLimit     int64
}

// ProviderClient wraps an *http.Client with pacing, a finite daily
// request budget, and a circuit breaker. It is the Hard contract of
// spec.md §4.D: the provider SDK must be configured with a finite
// retry budget, never infinite retry.
type ProviderClient struct {
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	budget     *budget.Tracker
	breaker    *gobreaker.CircuitBreaker
	provider   string
	host       string
}

// NewProviderClient builds a ProviderClient from cfg.
func NewProviderClient(cfg ProviderClientConfig) *ProviderClient {
	st := gobreaker.Settings{
		Name:        cfg.Provider,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	return &ProviderClient{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		limiter:    ratelimit.NewLimiter(cfg.RPS, cfg.Burst),
		budget:     budget.NewTracker(cfg.DailyLimit, 0, 0.9),
		breaker:    gobreaker.NewCircuitBreaker(st),
		provider:   cfg.Provider,
		host:       cfg.Host,
	}
}

// Do executes req through pacing, the daily budget, and the circuit
// breaker, in that order — a hung or misbehaving provider can exhaust
// the breaker's failure count but never hang the caller past the
// context deadline. A 5xx response counts as a breaker failure but is
// still returned, unclosed, so the caller can map its status code.
func (c *ProviderClient) Do(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context(), c.host); err != nil {
		return nil, fmt.Errorf("netutil: rate limit wait: %w", err)
	}

	if err := c.budget.Consume(); err != nil {
		if _, exhausted := err.(*budget.BudgetExhaustedError); exhausted {
			return nil, fmt.Errorf("netutil: %w", err)
		}
		// warning-only: continue, the caller logs it upstream.
	}

	var failed *http.Response
	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			failed = resp
			return nil, fmt.Errorf("netutil: provider %s returned HTTP %d", c.provider, resp.StatusCode)
		}
		return resp, nil
	})
	if err != nil {
		if failed != nil {
			return failed, nil
		}
		return nil, err
	}
	return result.(*http.Response), nil
}

// BudgetStats exposes the tracker's current usage for CLI reporting.
func (c *ProviderClient) BudgetStats() budget.Stats {
	return c.budget.Stats()
}

// BreakerState exposes the current circuit state for health reporting.
func (c *ProviderClient) BreakerState() gobreaker.State {
	return c.breaker.State()
}
