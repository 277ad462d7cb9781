// Package metrics exposes the pipeline's Prometheus instrumentation: one
// registry shared by every component so a single /metrics handler serves
// ticks, batches, imports, and materializations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles the counters and the histogram each pipeline component
// updates. Components take a *Registry by injection rather than reaching
// for prometheus' default global registry, so tests can build a private
// one per case.
type Registry struct {
	reg *prometheus.Registry

	TicksAccepted  *prometheus.CounterVec
	TicksDropped   *prometheus.CounterVec
	BatchesFlushed *prometheus.CounterVec
	FlushFailures  *prometheus.CounterVec
	BatchSize      *prometheus.HistogramVec

	ImportChunksOK       *prometheus.CounterVec
	ImportChunksSkipped  *prometheus.CounterVec
	ImportSubChunked     *prometheus.CounterVec

	CandlesWritten    *prometheus.CounterVec
	QualityGateTrips  *prometheus.CounterVec
	MaterializeErrors *prometheus.CounterVec
}

// New builds a Registry and registers every metric against a fresh
// prometheus.Registry.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		TicksAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fxtickd",
			Subsystem: "batcher",
			Name:      "ticks_accepted_total",
			Help:      "Ticks accepted into a symbol batch.",
		}, []string{"symbol"}),
		TicksDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fxtickd",
			Subsystem: "batcher",
			Name:      "ticks_dropped_total",
			Help:      "Ticks dropped for failing validation before batching.",
		}, []string{"symbol"}),
		BatchesFlushed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fxtickd",
			Subsystem: "batcher",
			Name:      "batches_flushed_total",
			Help:      "Batches successfully uploaded to the data lake.",
		}, []string{"symbol", "trigger"}),
		FlushFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fxtickd",
			Subsystem: "batcher",
			Name:      "flush_failures_total",
			Help:      "Batch uploads that failed and were retained for retry.",
		}, []string{"symbol"}),
		BatchSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fxtickd",
			Subsystem: "batcher",
			Name:      "batch_size_ticks",
			Help:      "Tick count per flushed batch.",
			Buckets:   prometheus.ExponentialBuckets(8, 2, 10),
		}, []string{"symbol"}),
		ImportChunksOK: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fxtickd",
			Subsystem: "historical",
			Name:      "chunks_ok_total",
			Help:      "Historical import chunks fetched and uploaded successfully.",
		}, []string{"symbol"}),
		ImportChunksSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fxtickd",
			Subsystem: "historical",
			Name:      "chunks_skipped_total",
			Help:      "Historical import chunks skipped: weekend-closed or exhausted retries.",
		}, []string{"symbol", "reason"}),
		ImportSubChunked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fxtickd",
			Subsystem: "historical",
			Name:      "sub_chunked_total",
			Help:      "Chunks that triggered adaptive sub-chunking after a provider buffer error.",
		}, []string{"symbol"}),
		CandlesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fxtickd",
			Subsystem: "materializer",
			Name:      "candles_written_total",
			Help:      "Candles upserted into the relational store.",
		}, []string{"symbol"}),
		QualityGateTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fxtickd",
			Subsystem: "materializer",
			Name:      "quality_gate_trips_total",
			Help:      "Materialization days aborted by the tick drop-rate quality gate.",
		}, []string{"symbol"}),
		MaterializeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fxtickd",
			Subsystem: "materializer",
			Name:      "errors_total",
			Help:      "Materialization days that failed for a reason other than the quality gate.",
		}, []string{"symbol", "reason"}),
	}

	reg.MustRegister(
		r.TicksAccepted, r.TicksDropped, r.BatchesFlushed, r.FlushFailures, r.BatchSize,
		r.ImportChunksOK, r.ImportChunksSkipped, r.ImportSubChunked,
		r.CandlesWritten, r.QualityGateTrips, r.MaterializeErrors,
	)
	return r
}

// Gatherer exposes the underlying registry for the /metrics HTTP handler.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }
