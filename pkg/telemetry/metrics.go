// Package telemetry provides the Prometheus metrics exposed by tumorscope.
//
// All recording methods are safe on a nil *Metrics so components can run
// without metrics in tests and one-shot CLI commands.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tumorscope"

// Metrics holds all Prometheus collectors of the inference pipeline.
type Metrics struct {
	// Inference metrics
	Predictions         *prometheus.CounterVec   // Predictions by model and label
	InferenceLatency    *prometheus.HistogramVec // Model inference latency by model
	ConsistencyWarnings *prometheus.CounterVec   // Log-odds/probability disagreements by model

	// Pipeline metrics
	PipelineFailures *prometheus.CounterVec // Failed pipeline runs by error kind

	// Registry metrics
	ModelLoads *prometheus.CounterVec // Artifact loads by model and result

	// Audit metrics
	AuditWriteLatency *prometheus.HistogramVec // Audit append latency by backend
	AuditRetries      *prometheus.CounterVec   // Audit append retries by backend
}

// New creates and registers all metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		Predictions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Total number of predictions by model and label",
		}, []string{"model", "label"}),
		InferenceLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_latency_seconds",
			Help:      "Model inference latency in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"model"}),
		ConsistencyWarnings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consistency_warnings_total",
			Help:      "Total number of sigmoid(log-odds) vs predict_proba disagreements",
		}, []string{"model"}),
		PipelineFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_failures_total",
			Help:      "Total number of failed pipeline runs by error kind",
		}, []string{"kind"}),
		ModelLoads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_loads_total",
			Help:      "Total number of model artifact loads by result",
		}, []string{"model", "result"}),
		AuditWriteLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "audit_write_duration_seconds",
			Help:      "Duration of audit record appends in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"backend"}),
		AuditRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_write_retries_total",
			Help:      "Total number of audit append retries after transient errors",
		}, []string{"backend"}),
	}
}

// ObservePrediction records one successful prediction.
func (m *Metrics) ObservePrediction(model, label string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Predictions.WithLabelValues(model, label).Inc()
	m.InferenceLatency.WithLabelValues(model).Observe(elapsed.Seconds())
}

// ConsistencyWarning counts one consistency warning for model.
func (m *Metrics) ConsistencyWarning(model string) {
	if m == nil {
		return
	}
	m.ConsistencyWarnings.WithLabelValues(model).Inc()
}

// PipelineFailure counts one failed run with the given error kind.
func (m *Metrics) PipelineFailure(kind string) {
	if m == nil {
		return
	}
	m.PipelineFailures.WithLabelValues(kind).Inc()
}

// ModelLoad counts one artifact load; ok selects the result label.
func (m *Metrics) ModelLoad(model string, ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.ModelLoads.WithLabelValues(model, result).Inc()
}

// ObserveAuditWrite records the duration of one append.
func (m *Metrics) ObserveAuditWrite(backend string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.AuditWriteLatency.WithLabelValues(backend).Observe(elapsed.Seconds())
}

// AuditRetry counts one retried append.
func (m *Metrics) AuditRetry(backend string) {
	if m == nil {
		return
	}
	m.AuditRetries.WithLabelValues(backend).Inc()
}
