// Package metrics exports Prometheus metrics for the filter daemon.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mikey/llm-phish-detector/internal/core"
)

const namespace = "phish_detector"

// Metrics holds the daemon's collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	// Analysis metrics
	Verdicts         *prometheus.CounterVec
	AnalysisFailures prometheus.Counter
	AnalysisDuration *prometheus.HistogramVec
	Scores           prometheus.Histogram

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)
	m := &Metrics{registry: reg}

	m.Verdicts = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "verdicts_total",
		Help:      "Analysis results by source and classification (unstructured for unparsed model output)",
	}, []string{"source", "classification"})

	m.AnalysisFailures = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "analysis_failures_total",
		Help:      "Risk assessments that returned an error",
	})

	m.AnalysisDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "analysis_duration_seconds",
		Help:      "Time spent producing a verdict",
		Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"source"})

	m.Scores = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "phishing_score",
		Help:      "Distribution of structured phishing scores",
		Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
	})

	m.HTTPRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP API requests by method, route and status",
	}, []string{"method", "route", "status"})

	m.HTTPDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP API request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	return m
}

// Registry returns the registry backing the collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveResult records a completed analysis
func (m *Metrics) ObserveResult(result *core.AnalysisResult, elapsed time.Duration) {
	source := string(result.Source)
	m.AnalysisDuration.WithLabelValues(source).Observe(elapsed.Seconds())

	if !result.IsStructured() {
		m.Verdicts.WithLabelValues(source, "unstructured").Inc()
		return
	}
	m.Verdicts.WithLabelValues(source, string(result.Verdict.Classification)).Inc()
	m.Scores.Observe(float64(result.Verdict.Score))
}

// ObserveFailure records a failed analysis
func (m *Metrics) ObserveFailure(elapsed time.Duration) {
	m.AnalysisFailures.Inc()
	m.AnalysisDuration.WithLabelValues("error").Observe(elapsed.Seconds())
}

// ObserveHTTPRequest records a served HTTP request
func (m *Metrics) ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
