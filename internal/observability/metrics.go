// Package observability provides Prometheus metrics for the motion daemon.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the daemon's Prometheus collectors. Created once by the
// application and injected where needed; nil receivers are safe so tests
// and library callers can skip metrics entirely.
type Metrics struct {
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	ComputeDuration *prometheus.HistogramVec
	ComputeErrors   *prometheus.CounterVec
}

// New registers the daemon's collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "gomotion_cache_hits_total",
			Help: "Number of motion requests served from the result cache.",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "gomotion_cache_misses_total",
			Help: "Number of motion requests that required provider computation.",
		}),
		ComputeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gomotion_compute_duration_seconds",
			Help:    "Latency of provider motion computations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		ComputeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gomotion_compute_errors_total",
			Help: "Number of failed provider motion computations.",
		}, []string{"provider"}),
	}
}

// ObserveHit records a cache hit.
func (m *Metrics) ObserveHit() {
	if m != nil {
		m.CacheHits.Inc()
	}
}

// ObserveMiss records a cache miss.
func (m *Metrics) ObserveMiss() {
	if m != nil {
		m.CacheMisses.Inc()
	}
}

// ObserveCompute records one provider computation.
func (m *Metrics) ObserveCompute(provider string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.ComputeDuration.WithLabelValues(provider).Observe(seconds)
	if err != nil {
		m.ComputeErrors.WithLabelValues(provider).Inc()
	}
}
