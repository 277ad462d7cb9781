// Package health aggregates readiness checks from the store, the
// historical provider's circuit breaker, and the broker/batcher workers
// into the single readiness response the serve command exposes.
// Grounded on the teacher's Postgres connection healthChecker pattern
// (internal/store/postgres/manager.go), generalized to more than one
// dependency.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fxcore/tickpipe/internal/store"
)

// CheckResult is one dependency's outcome.
type CheckResult struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Checker reports one dependency's health.
type Checker interface {
	Check(ctx context.Context) CheckResult
}

// Report is the readiness endpoint's full response body.
type Report struct {
	Healthy   bool          `json:"healthy"`
	Checks    []CheckResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

// Reporter runs every registered Checker and combines the results.
type Reporter struct {
	checkers []Checker
}

// NewReporter builds a Reporter over checkers.
func NewReporter(checkers ...Checker) *Reporter {
	return &Reporter{checkers: checkers}
}

// Report runs all checks. One unhealthy dependency fails the whole
// report: the serve command's readiness probe should not pass traffic
// to a process that can't reach its store or broker.
func (r *Reporter) Report(ctx context.Context) Report {
	results := make([]CheckResult, 0, len(r.checkers))
	healthy := true
	for _, c := range r.checkers {
		res := c.Check(ctx)
		results = append(results, res)
		if !res.Healthy {
			healthy = false
		}
	}
	return Report{Healthy: healthy, Checks: results, CheckedAt: time.Now()}
}

// Handler serves the readiness report as JSON, 200 when healthy and
// 503 otherwise.
func (r *Reporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		report := r.Report(req.Context())
		w.Header().Set("Content-Type", "application/json")
		if !report.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(report)
	})
}

// StoreChecker adapts store.Health to Checker.
type StoreChecker struct {
	Name   string
	Health store.Health
}

func (c StoreChecker) Check(ctx context.Context) CheckResult {
	hc := c.Health.Health(ctx)
	detail := ""
	if len(hc.Errors) > 0 {
		detail = hc.Errors[0]
	}
	return CheckResult{Name: c.Name, Healthy: hc.Healthy, Detail: detail}
}

// BreakerState mirrors gobreaker.State's three values without importing
// gobreaker here, so this package stays independent of netutil.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerHalfOpen
	BreakerOpen
)

// BreakerChecker reports a named circuit breaker's state. Open counts
// as unhealthy; half-open is reported healthy (it is actively probing
// recovery) but noted in Detail.
type BreakerChecker struct {
	Name  string
	State func() BreakerState
}

func (c BreakerChecker) Check(_ context.Context) CheckResult {
	switch c.State() {
	case BreakerOpen:
		return CheckResult{Name: c.Name, Healthy: false, Detail: "circuit open"}
	case BreakerHalfOpen:
		return CheckResult{Name: c.Name, Healthy: true, Detail: "circuit half-open"}
	default:
		return CheckResult{Name: c.Name, Healthy: true}
	}
}

// LivenessChecker reports a boolean liveness probe for a background
// worker (the tick batcher sweeper, a broker router's sessions).
type LivenessChecker struct {
	Name  string
	Alive func() bool
}

func (c LivenessChecker) Check(_ context.Context) CheckResult {
	if !c.Alive() {
		return CheckResult{Name: c.Name, Healthy: false, Detail: "not running"}
	}
	return CheckResult{Name: c.Name, Healthy: true}
}
