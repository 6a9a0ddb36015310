package telemetry

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics provides Prometheus metrics for the installer. A Metrics created
// with metrics disabled accepts every call and records nothing.
type Metrics struct {
	config MetricsConfig

	// Cycle metrics
	cyclesCompleted *prometheus.CounterVec
	cycleDuration   prometheus.Histogram

	// Task metrics
	tasksExecuted *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec
	startRetries  prometheus.Counter

	// Registry metrics
	registryResources *prometheus.GaugeVec
	transformations   *prometheus.CounterVec
	admissions        *prometheus.CounterVec
	snapshotSaves     *prometheus.CounterVec
	pendingChanges    prometheus.Gauge

	// Error metrics
	errorsByClass *prometheus.CounterVec

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

		cyclesCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_completed_total",
				Help:      "Total number of task cycles completed",
			},
			[]string{"status"},
		),
		cycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cycle_duration_seconds",
				Help:      "Duration of task cycles in seconds",
				Buckets:   buckets,
			},
		),

		tasksExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_executed_total",
				Help:      "Total number of tasks executed",
			},
			[]string{"kind", "outcome"},
		),
		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_duration_seconds",
				Help:      "Duration of task execution in seconds",
				Buckets:   buckets,
			},
			[]string{"kind"},
		),
		startRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "start_retries_total",
				Help:      "Total number of failed start attempts scheduled for retry",
			},
		),

		registryResources: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "registry_resources",
				Help:      "Current number of resources in the registry",
			},
			[]string{"section"},
		),
		transformations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transformations_total",
				Help:      "Total number of transformation attempts",
			},
			[]string{"outcome"},
		),
		admissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admissions_total",
				Help:      "Total number of admission decisions",
			},
			[]string{"decision"},
		),
		snapshotSaves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshot_saves_total",
				Help:      "Total number of registry snapshot saves",
			},
			[]string{"status"},
		),
		pendingChanges: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pending_changes",
				Help:      "Current number of submitted changes waiting for a cycle",
			},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of classified errors",
			},
			[]string{"class", "code"},
		),
	}

	registry.MustRegister(
		m.cyclesCompleted,
		m.cycleDuration,
		m.tasksExecuted,
		m.taskDuration,
		m.startRetries,
		m.registryResources,
		m.transformations,
		m.admissions,
		m.snapshotSaves,
		m.pendingChanges,
		m.errorsByClass,
	)

	return m, nil
}

// Cycle Metrics

// RecordCycle records a completed cycle.
func (m *Metrics) RecordCycle(failed bool, duration time.Duration) {
	if m == nil || m.cyclesCompleted == nil {
		return
	}
	status := "ok"
	if failed {
		status = "failed"
	}
	m.cyclesCompleted.WithLabelValues(status).Inc()
	m.cycleDuration.Observe(duration.Seconds())
}

// Task Metrics

// RecordTask records the execution of one task.
func (m *Metrics) RecordTask(kind, outcome string, duration time.Duration) {
	if m == nil || m.tasksExecuted == nil {
		return
	}
	m.tasksExecuted.WithLabelValues(kind, outcome).Inc()
	m.taskDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordStartRetry counts a failed start that will be retried.
func (m *Metrics) RecordStartRetry() {
	if m == nil || m.startRetries == nil {
		return
	}
	m.startRetries.Inc()
}

// Registry Metrics

// SetRegistryResources sets the resource gauges of the registry.
func (m *Metrics) SetRegistryResources(grouped, untransformed int) {
	if m == nil || m.registryResources == nil {
		return
	}
	m.registryResources.WithLabelValues("grouped").Set(float64(grouped))
	m.registryResources.WithLabelValues("untransformed").Set(float64(untransformed))
}

// RecordTransformation records the outcome of one transformation attempt.
func (m *Metrics) RecordTransformation(outcome string) {
	if m == nil || m.transformations == nil {
		return
	}
	m.transformations.WithLabelValues(outcome).Inc()
}

// RecordAdmission records an admission decision.
func (m *Metrics) RecordAdmission(admitted bool) {
	if m == nil || m.admissions == nil {
		return
	}
	decision := "admitted"
	if !admitted {
		decision = "denied"
	}
	m.admissions.WithLabelValues(decision).Inc()
}

// RecordSnapshotSave records a snapshot save attempt.
func (m *Metrics) RecordSnapshotSave(ok bool) {
	if m == nil || m.snapshotSaves == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.snapshotSaves.WithLabelValues(status).Inc()
}

// SetPendingChanges sets the number of queued changes.
func (m *Metrics) SetPendingChanges(count int) {
	if m == nil || m.pendingChanges == nil {
		return
	}
	m.pendingChanges.Set(float64(count))
}

// Error Metrics

// RecordError records an error by class and code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m == nil || m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass, errorCode).Inc()
}

// Gatherer exposes the underlying registry, nil when metrics are disabled.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil || m.registry == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if m == nil || !m.config.Enabled {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("address", m.config.ListenAddress).Msg("Metrics server stopped")
		}
	}()

	return nil
}
