// Package metrics defines the worker's Prometheus collectors. All methods
// are safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cell status labels.
const (
	StatusClean       = "clean"
	StatusNeedsReview = "needs_review"
)

// Webhook status labels.
const (
	WebhookAccepted = "accepted"
	WebhookIgnored  = "ignored"
	WebhookRejected = "rejected"
	WebhookInvalid  = "invalid"
	WebhookBusy     = "busy"
)

// Metrics holds the collectors and the registry they are registered on.
type Metrics struct {
	registry *prometheus.Registry

	cellsProcessed     *prometheus.CounterVec
	confidence         *prometheus.HistogramVec
	reviewQueueDepth   *prometheus.GaugeVec
	processingDuration *prometheus.HistogramVec
	webhooksReceived   *prometheus.CounterVec
	databaseErrors     *prometheus.CounterVec
	tasks              *prometheus.CounterVec
	queueLength        prometheus.Gauge
}

// New creates the collectors on a fresh registry, together with the
// standard Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cellsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "csv_cells_processed_total",
			Help: "Cells processed, by review status and source type.",
		}, []string{"status", "source_type"}),
		confidence: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "csv_confidence_distribution",
			Help:    "Distribution of cell confidence by field type and source type.",
			Buckets: []float64{0.5, 0.6, 0.7, 0.8, 0.85, 0.9, 0.95, 0.98, 0.99, 1.0},
		}, []string{"field_type", "source_type"}),
		reviewQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "csv_review_queue_depth",
			Help: "Unreviewed cells awaiting review, by priority band.",
		}, []string{"priority"}),
		processingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "csv_processing_duration_seconds",
			Help:    "Time taken to ingest one file.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"source_type"}),
		webhooksReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "csv_webhooks_received_total",
			Help: "Webhook events received, by action and outcome.",
		}, []string{"event_type", "status"}),
		databaseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "csv_database_errors_total",
			Help: "Store operations that failed, by operation.",
		}, []string{"operation"}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "csv_tasks_total",
			Help: "Ingestion tasks finished, by final status.",
		}, []string{"status"}),
		queueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "csv_dispatch_queue_length",
			Help: "Tasks accepted but not yet picked up by a worker.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.cellsProcessed,
		m.confidence,
		m.reviewQueueDepth,
		m.processingDuration,
		m.webhooksReceived,
		m.databaseErrors,
		m.tasks,
		m.queueLength,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveCell records one processed cell.
func (m *Metrics) ObserveCell(fieldType, sourceType string, confidence float64, needsReview bool) {
	if m == nil {
		return
	}
	status := StatusClean
	if needsReview {
		status = StatusNeedsReview
	}
	m.cellsProcessed.WithLabelValues(status, sourceType).Inc()
	m.confidence.WithLabelValues(fieldType, sourceType).Observe(confidence)
}

// ObserveDuration records how long one file took.
func (m *Metrics) ObserveDuration(sourceType string, d time.Duration) {
	if m == nil {
		return
	}
	m.processingDuration.WithLabelValues(sourceType).Observe(d.Seconds())
}

// SetReviewQueueDepth resets the gauge and sets one value per band.
func (m *Metrics) SetReviewQueueDepth(depth map[string]int) {
	if m == nil {
		return
	}
	m.reviewQueueDepth.Reset()
	for priority, n := range depth {
		m.reviewQueueDepth.WithLabelValues(priority).Set(float64(n))
	}
}

// Webhook records one received event.
func (m *Metrics) Webhook(eventType, status string) {
	if m == nil {
		return
	}
	m.webhooksReceived.WithLabelValues(eventType, status).Inc()
}

// DatabaseError records a failed store operation.
func (m *Metrics) DatabaseError(operation string) {
	if m == nil {
		return
	}
	m.databaseErrors.WithLabelValues(operation).Inc()
}

// TaskFinished records a task's final status.
func (m *Metrics) TaskFinished(status string) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(status).Inc()
}

// SetQueueLength records the dispatcher backlog.
func (m *Metrics) SetQueueLength(n int) {
	if m == nil {
		return
	}
	m.queueLength.Set(float64(n))
}
