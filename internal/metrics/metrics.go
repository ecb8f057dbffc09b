// Package metrics exports per-attempt and per-run counters to Prometheus.
// Everything here is a side channel; the pipeline works identically with a
// nil *Metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	AttemptsTotal  *prometheus.CounterVec
	CacheHitsTotal prometheus.Counter
	CacheMissTotal prometheus.Counter
	VerdictsTotal  *prometheus.CounterVec
	CostUSDTotal   *prometheus.CounterVec
	ExtractLatency *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		AttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extraction_attempts_total",
				Help: "Provider attempts by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		),
		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "extraction_cache_hits_total",
			Help: "Documents resolved from the extraction cache.",
		}),
		CacheMissTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "extraction_cache_misses_total",
			Help: "Documents that required a provider call.",
		}),
		VerdictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extraction_verdicts_total",
				Help: "Validation verdicts by class.",
			},
			[]string{"verdict"},
		),
		CostUSDTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extraction_cost_usd_total",
				Help: "Accumulated provider cost in USD.",
			},
			[]string{"provider"},
		),
		ExtractLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "extraction_latency_seconds",
				Help:    "Provider call latency.",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
			},
			[]string{"provider"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.AttemptsTotal, m.CacheHitsTotal, m.CacheMissTotal,
		m.VerdictsTotal, m.CostUSDTotal, m.ExtractLatency,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveAttempt records one provider attempt. Nil-safe.
func (m *Metrics) ObserveAttempt(provider, outcome string, cost, latencySeconds float64) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(provider, outcome).Inc()
	m.CostUSDTotal.WithLabelValues(provider).Add(cost)
	m.ExtractLatency.WithLabelValues(provider).Observe(latencySeconds)
}

// ObserveCache records a cache lookup. Nil-safe.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.Inc()
	} else {
		m.CacheMissTotal.Inc()
	}
}

// ObserveVerdict records a validation verdict. Nil-safe.
func (m *Metrics) ObserveVerdict(verdict string) {
	if m == nil {
		return
	}
	m.VerdictsTotal.WithLabelValues(verdict).Inc()
}
