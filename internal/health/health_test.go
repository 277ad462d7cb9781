package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fxcore/tickpipe/internal/store"
)

type fakeHealth struct {
	hc store.HealthCheck
}

func (f fakeHealth) Health(context.Context) store.HealthCheck { return f.hc }
func (f fakeHealth) Ping(context.Context) error               { return nil }

func TestReporter_AllHealthy(t *testing.T) {
	r := NewReporter(
		StoreChecker{Name: "postgres", Health: fakeHealth{hc: store.HealthCheck{Healthy: true}}},
		BreakerChecker{Name: "historical-provider", State: func() BreakerState { return BreakerClosed }},
		LivenessChecker{Name: "batcher", Alive: func() bool { return true }},
	)

	report := r.Report(context.Background())
	assert.True(t, report.Healthy)
	assert.Len(t, report.Checks, 3)
}

func TestReporter_OneUnhealthyFailsReport(t *testing.T) {
	r := NewReporter(
		StoreChecker{Name: "postgres", Health: fakeHealth{hc: store.HealthCheck{Healthy: false, Errors: []string{"ping failed"}}}},
		BreakerChecker{Name: "historical-provider", State: func() BreakerState { return BreakerOpen }},
	)

	report := r.Report(context.Background())
	assert.False(t, report.Healthy)
	assert.False(t, report.Checks[0].Healthy)
	assert.Equal(t, "ping failed", report.Checks[0].Detail)
	assert.False(t, report.Checks[1].Healthy)
}

func TestReporter_Handler(t *testing.T) {
	r := NewReporter(LivenessChecker{Name: "router", Alive: func() bool { return false }})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"router"`)
}
