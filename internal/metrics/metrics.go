// internal/metrics/metrics.go
// Package metrics provides Prometheus instrumentation for the risk engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "risk_engine"

type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	AnalysesTotal        *prometheus.CounterVec
	AnalysisDuration     prometheus.Histogram
	AnalyzerDegradations *prometheus.CounterVec
	FailSafeTotal        prometheus.Counter
	ActionsTotal         *prometheus.CounterVec
	ReviewDecisions      *prometheus.CounterVec
	ReviewEscalations    *prometheus.CounterVec
	PersistenceFailures  *prometheus.CounterVec
	ReputationLookups    *prometheus.CounterVec
	AlertsTotal          *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. Tests pass a
// fresh prometheus.NewRegistry() so repeated construction never collides.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests by method, path pattern, and status code.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		AnalysesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "analyses_total",
				Help:      "Completed transaction analyses by risk level.",
			},
			[]string{"risk_level"},
		),
		AnalysisDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "analysis_duration_seconds",
				Help:      "End-to-end analysis latency.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		),
		AnalyzerDegradations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "analyzer_degradations_total",
				Help:      "Analyzer runs that fell back to the unavailable score, by factor and reason.",
			},
			[]string{"factor", "reason"},
		),
		FailSafeTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fail_safe_total",
				Help:      "Analyses that returned the fail-safe result.",
			},
		),
		ActionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_total",
				Help:      "Security actions executed by action and outcome.",
			},
			[]string{"action", "outcome"},
		),
		ReviewDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "review_decisions_total",
				Help:      "Manual review decisions by decision.",
			},
			[]string{"decision"},
		),
		ReviewEscalations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "review_escalations_total",
				Help:      "Pending reviews escalated past their SLA, by new priority.",
			},
			[]string{"priority"},
		),
		PersistenceFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "persistence_failures_total",
				Help:      "Writes that failed after retries, by operation.",
			},
			[]string{"operation"},
		),
		ReputationLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reputation_lookups_total",
				Help:      "Reputation lookups by kind and source (memory, redis, upstream, fallback, error).",
			},
			[]string{"kind", "source"},
		),
		AlertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operator_alerts_total",
				Help:      "Operator alerts by type and result.",
			},
			[]string{"type", "result"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AnalysesTotal,
		m.AnalysisDuration,
		m.AnalyzerDegradations,
		m.FailSafeTotal,
		m.ActionsTotal,
		m.ReviewDecisions,
		m.ReviewEscalations,
		m.PersistenceFailures,
		m.ReputationLookups,
		m.AlertsTotal,
	)
	return m
}

// NewNop returns collectors registered nowhere.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
