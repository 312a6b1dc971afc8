// Package metrics holds the prometheus collectors exported by fnindex.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry in tests.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fnindex"

// Metrics is the set of collectors shared by the embedding service, the
// retrieval engine and the registry.
type Metrics struct {
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	providerCalls  *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec
	viewFailures   *prometheus.CounterVec
	functions      prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_hits_total",
			Help:      "Embedding lookups served from the cache.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_misses_total",
			Help:      "Embedding lookups that required a provider call.",
		}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_provider_calls_total",
			Help:      "Requests sent to the embedding provider, by outcome.",
		}, []string{"outcome"}),
		searchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Latency of retrieval operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		viewFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_view_failures_total",
			Help:      "Vector queries that failed for one view during a search.",
		}, []string{"view"}),
		functions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "functions_registered",
			Help:      "Functions currently held by the registry.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.cacheHits, m.cacheMisses, m.providerCalls,
		m.searchDuration, m.viewFailures, m.functions,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}

	return m, nil
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.cacheHits.Inc()
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.cacheMisses.Inc()
	}
}

func (m *Metrics) ProviderCall(outcome string) {
	if m != nil {
		m.providerCalls.WithLabelValues(outcome).Inc()
	}
}

// ObserveSearch records the duration of a retrieval of the given kind
// (search, similar, category) started at start.
func (m *Metrics) ObserveSearch(kind string, start time.Time) {
	if m != nil {
		m.searchDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) ViewFailure(view string) {
	if m != nil {
		m.viewFailures.WithLabelValues(view).Inc()
	}
}

// SetFunctions sets the registered-function gauge.
func (m *Metrics) SetFunctions(n int) {
	if m != nil {
		m.functions.Set(float64(n))
	}
}
