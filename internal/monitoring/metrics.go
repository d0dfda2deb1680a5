// Package monitoring exposes Prometheus metrics for provider calls, the
// response cache, the enrichment waterfall, and validation, plus a periodic
// run-health checker that posts webhook alerts.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric namespace shared by every collector.
const namespace = "contact"

// Metrics holds the pipeline's Prometheus collectors. A nil *Metrics is
// valid and records nothing, so components can take one unconditionally.
type Metrics struct {
	providerCalls     *prometheus.CounterVec
	providerLatency   *prometheus.HistogramVec
	providerCostUSD   *prometheus.CounterVec
	cacheLookups      *prometheus.CounterVec
	waterfallStates   *prometheus.CounterVec
	validations       *prometheus.CounterVec
	validatorFallback prometheus.Counter
	companies         *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "calls_total",
			Help:      "Provider calls by outcome (ok, no_match, error, rate_limited, cooldown, cached).",
		}, []string{"provider", "outcome"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "call_duration_seconds",
			Help:      "Duration of provider network fetches in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		providerCostUSD: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "cost_usd_total",
			Help:      "Spend on provider calls in USD.",
		}, []string{"provider"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by result (hit, miss, coalesced).",
		}, []string{"provider", "result"}),
		waterfallStates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "waterfall",
			Name:      "terminal_states_total",
			Help:      "Candidates leaving the enrichment waterfall, by terminal state.",
		}, []string{"state"}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validator",
			Name:      "results_total",
			Help:      "Validation results by strategy and acceptance.",
		}, []string{"strategy", "valid"}),
		validatorFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validator",
			Name:      "fallbacks_total",
			Help:      "Judge validations that fell back to rule scoring.",
		}),
		companies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "companies_total",
			Help:      "Companies processed, by whether any contact was found.",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.providerCalls,
			m.providerLatency,
			m.providerCostUSD,
			m.cacheLookups,
			m.waterfallStates,
			m.validations,
			m.validatorFallback,
			m.companies,
		)
	}
	return m
}

// ProviderCall records one provider call outcome. A zero duration is not
// observed (cache hits and cooldown short-circuits never touch the network).
func (m *Metrics) ProviderCall(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(provider, outcome).Inc()
	if d > 0 {
		m.providerLatency.WithLabelValues(provider).Observe(d.Seconds())
	}
}

// ProviderCost adds spend for provider.
func (m *Metrics) ProviderCost(provider string, usd float64) {
	if m == nil || usd <= 0 {
		return
	}
	m.providerCostUSD.WithLabelValues(provider).Add(usd)
}

// CacheLookup records a cache hit, miss, or coalesced wait.
func (m *Metrics) CacheLookup(provider, result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(provider, result).Inc()
}

// WaterfallState records a candidate's terminal waterfall state.
func (m *Metrics) WaterfallState(state string) {
	if m == nil {
		return
	}
	m.waterfallStates.WithLabelValues(state).Inc()
}

// Validation records a validation result.
func (m *Metrics) Validation(strategy string, valid, fallback bool) {
	if m == nil {
		return
	}
	v := "false"
	if valid {
		v = "true"
	}
	m.validations.WithLabelValues(strategy, v).Inc()
	if fallback {
		m.validatorFallback.Inc()
	}
}

// Company records one processed company.
func (m *Metrics) Company(found bool) {
	if m == nil {
		return
	}
	result := "empty"
	if found {
		result = "found"
	}
	m.companies.WithLabelValues(result).Inc()
}
