// Package metrics exposes Prometheus collectors for the viewer and companion.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "leaflet"

// Companion operations.
const (
	OpAnalyze   = "analyze"
	OpChat      = "chat"
	OpSummarize = "summarize"
)

// Request outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeEmpty = "empty"
	OutcomeError = "error"
)

// Metrics owns a private registry so tests and multiple servers never collide
// on the global default.
type Metrics struct {
	registry *prometheus.Registry

	companionRequests *prometheus.CounterVec
	companionLatency  *prometheus.HistogramVec
	staleResponses    *prometheus.CounterVec
	navigationSteps   *prometheus.CounterVec
	currentSheet      prometheus.Gauge
	totalSheets       prometheus.Gauge
	pagesUploaded     prometheus.Counter
}

// New creates and registers all collectors. Go runtime and process
// collectors are included when withRuntime is set.
func New(withRuntime bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		companionRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "companion",
			Name:      "requests_total",
			Help:      "Companion model calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		companionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "companion",
			Name:      "request_duration_seconds",
			Help:      "Companion model call latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"op"}),
		staleResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "companion",
			Name:      "stale_responses_total",
			Help:      "Responses discarded because a newer request superseded them.",
		}, []string{"op"}),
		navigationSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "viewer",
			Name:      "navigation_steps_total",
			Help:      "Sheet transitions by input source and direction.",
		}, []string{"source", "direction"}),
		currentSheet: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "viewer",
			Name:      "current_sheet",
			Help:      "Index of the first unflipped sheet.",
		}),
		totalSheets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "viewer",
			Name:      "total_sheets",
			Help:      "Number of sheets in the book.",
		}),
		pagesUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "library",
			Name:      "pages_appended_total",
			Help:      "Pages appended to the library.",
		}),
	}

	m.registry.MustRegister(
		m.companionRequests,
		m.companionLatency,
		m.staleResponses,
		m.navigationSteps,
		m.currentSheet,
		m.totalSheets,
		m.pagesUploaded,
	)
	if withRuntime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveCompanion records one companion call. A nil receiver is a no-op so
// callers may run without metrics.
func (m *Metrics) ObserveCompanion(op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.companionRequests.WithLabelValues(op, outcome).Inc()
	m.companionLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// StaleDiscarded counts a response dropped by the ordering guard.
func (m *Metrics) StaleDiscarded(op string) {
	if m == nil {
		return
	}
	m.staleResponses.WithLabelValues(op).Inc()
}

// Navigated records a sheet transition and the new cursor.
func (m *Metrics) Navigated(source, direction string, current, total int) {
	if m == nil {
		return
	}
	m.navigationSteps.WithLabelValues(source, direction).Inc()
	m.currentSheet.Set(float64(current))
	m.totalSheets.Set(float64(total))
}

// PagesAppended records newly appended pages and the resulting sheet count.
func (m *Metrics) PagesAppended(n, totalSheets int) {
	if m == nil {
		return
	}
	m.pagesUploaded.Add(float64(n))
	m.totalSheets.Set(float64(totalSheets))
}
