package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the validator. With metrics
// disabled every recorder is a no-op, so call sites never need to check.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	// Rule metrics
	ruleEvaluations *prometheus.CounterVec
	ruleDuration    *prometheus.HistogramVec
	findings        *prometheus.CounterVec

	// Loader metrics
	documentsLoaded prometheus.Counter
	parseFailures   prometheus.Counter

	// External tool metrics
	externalCalls    *prometheus.CounterVec
	externalDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of validation runs started",
			},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of validation runs completed",
			},
			[]string{"result"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of validation runs in seconds",
				Buckets:   buckets,
			},
			[]string{"result"},
		),

		ruleEvaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rule_evaluations_total",
				Help:      "Total number of rule evaluations",
			},
			[]string{"rule", "outcome"},
		),
		ruleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rule_duration_seconds",
				Help:      "Duration of rule evaluations in seconds",
				Buckets:   buckets,
			},
			[]string{"rule"},
		),
		findings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "findings_total",
				Help:      "Total number of rule findings by severity",
			},
			[]string{"severity"},
		),

		documentsLoaded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_loaded_total",
				Help:      "Total number of configuration documents loaded",
			},
		),
		parseFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "parse_failures_total",
				Help:      "Total number of documents that failed structural parsing",
			},
		),

		externalCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "external_calls_total",
				Help:      "Total number of external tool invocations",
			},
			[]string{"mode", "status"},
		),
		externalDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "external_call_duration_seconds",
				Help:      "Duration of external tool invocations in seconds",
				Buckets:   buckets,
			},
			[]string{"mode"},
		),
	}

	registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.ruleEvaluations,
		m.ruleDuration,
		m.findings,
		m.documentsLoaded,
		m.parseFailures,
		m.externalCalls,
		m.externalDuration,
	)

	return m, nil
}

// RecordRunStarted increments the counter for started runs.
func (m *Metrics) RecordRunStarted() {
	if m.runsStarted == nil {
		return
	}
	m.runsStarted.Inc()
}

// RecordRunCompleted records a completed run with its result and duration.
func (m *Metrics) RecordRunCompleted(result string, duration time.Duration) {
	if m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(result).Inc()
	m.runDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// RecordRuleEvaluation records a single rule evaluation.
func (m *Metrics) RecordRuleEvaluation(rule, outcome string, duration time.Duration) {
	if m.ruleEvaluations == nil {
		return
	}
	m.ruleEvaluations.WithLabelValues(rule, outcome).Inc()
	m.ruleDuration.WithLabelValues(rule).Observe(duration.Seconds())
}

// RecordFindings records findings at a given severity.
func (m *Metrics) RecordFindings(severity string, count int) {
	if m.findings == nil || count == 0 {
		return
	}
	m.findings.WithLabelValues(severity).Add(float64(count))
}

// RecordDocumentsLoaded records loaded and unparsable document counts.
func (m *Metrics) RecordDocumentsLoaded(total, failed int) {
	if m.documentsLoaded == nil {
		return
	}
	m.documentsLoaded.Add(float64(total))
	m.parseFailures.Add(float64(failed))
}

// RecordExternalCall records an external tool invocation.
func (m *Metrics) RecordExternalCall(mode, status string, duration time.Duration) {
	if m.externalCalls == nil {
		return
	}
	m.externalCalls.WithLabelValues(mode, status).Inc()
	m.externalDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics. Used by watch
// mode; one-shot runs do not serve an endpoint.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
