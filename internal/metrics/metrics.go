package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus collectors
type Metrics struct {
	submissions prometheus.Counter
	dailyTotals prometheus.Histogram
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
	fallbacks   *prometheus.CounterVec
	analyses    *prometheus.CounterVec
}

// New registers the collectors with reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		submissions: f.NewCounter(prometheus.CounterOpts{
			Namespace: "carbon",
			Name:      "submissions_total",
			Help:      "Footprint submissions processed.",
		}),
		dailyTotals: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "carbon",
			Name:      "daily_emissions_kg",
			Help:      "Daily total emissions per submission in kg CO2.",
			Buckets:   []float64{1, 2.5, 5, 10, 15, 20, 30, 50, 100},
		}),
		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: "carbon",
			Name:      "cache_hits_total",
			Help:      "External data cache hits.",
		}),
		cacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: "carbon",
			Name:      "cache_misses_total",
			Help:      "External data cache misses.",
		}),
		fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carbon",
			Name:      "provider_fallbacks_total",
			Help:      "External provider calls that fell back to a default value.",
		}, []string{"provider"}),
		analyses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carbon",
			Name:      "analyses_total",
			Help:      "History analyses by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) ObserveSubmission(total float64) {
	m.submissions.Inc()
	m.dailyTotals.Observe(total)
}

func (m *Metrics) ProviderFallback(provider string) {
	m.fallbacks.WithLabelValues(provider).Inc()
}

func (m *Metrics) ObserveAnalysis(outcome string) {
	m.analyses.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CacheHit() {
	m.cacheHits.Inc()
}

func (m *Metrics) CacheMiss() {
	m.cacheMisses.Inc()
}
