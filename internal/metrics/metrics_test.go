package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegistry_CountersIncrement(t *testing.T) {
	r := New()

	r.TicksAccepted.WithLabelValues("EURUSD").Inc()
	r.TicksAccepted.WithLabelValues("EURUSD").Inc()
	r.TicksDropped.WithLabelValues("EURUSD").Inc()

	assert.Equal(t, float64(2), testutil.ToFloat64(r.TicksAccepted.WithLabelValues("EURUSD")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.TicksDropped.WithLabelValues("EURUSD")))
}

func TestRegistry_GathererExposesMetrics(t *testing.T) {
	r := New()
	r.CandlesWritten.WithLabelValues("GBPUSD").Add(5)

	families, err := r.Gatherer().Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}
