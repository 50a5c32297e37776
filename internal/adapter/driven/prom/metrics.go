// Package prom exports cache observability through Prometheus.
package prom

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bvquoc/scalable-api/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.MetricsRecorder = (*Metrics)(nil)

// Metrics is the Prometheus implementation of the MetricsRecorder port.
// It additionally keeps plain hit/miss tallies so HitRate can be read
// in-process without scraping.
type Metrics struct {
	hits    prometheus.Counter
	misses  prometheus.Counter
	latency prometheus.Histogram

	hitCount  atomic.Int64
	missCount atomic.Int64
}

// NewMetrics registers the cache metric family with reg. Pass
// prometheus.DefaultRegisterer outside tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		hits: factory.NewCounter(prometheus.CounterOpts{
			Name:        "cache_hits_total",
			Help:        "Number of API key cache hits.",
			ConstLabels: prometheus.Labels{"cache": "apikey"},
		}),
		misses: factory.NewCounter(prometheus.CounterOpts{
			Name:        "cache_misses_total",
			Help:        "Number of API key cache misses.",
			ConstLabels: prometheus.Labels{"cache": "apikey"},
		}),
		latency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "cache_op_duration_seconds",
			Help:        "Latency of API key cache operations.",
			ConstLabels: prometheus.Labels{"cache": "apikey"},
			Buckets:     prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
	}
}

// RecordHit counts a cache hit.
func (m *Metrics) RecordHit() {
	m.hits.Inc()
	m.hitCount.Add(1)
}

// RecordMiss counts a cache miss.
func (m *Metrics) RecordMiss() {
	m.misses.Inc()
	m.missCount.Add(1)
}

// RecordLatency records one cache operation's duration.
func (m *Metrics) RecordLatency(d time.Duration) {
	m.latency.Observe(d.Seconds())
}

// HitRate returns hits/(hits+misses) in [0,1], or 0 before any lookup.
func (m *Metrics) HitRate() float64 {
	hits := float64(m.hitCount.Load())
	total := hits + float64(m.missCount.Load())
	if total == 0 {
		return 0
	}
	return hits / total
}
