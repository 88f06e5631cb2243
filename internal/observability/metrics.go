package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects counters and histograms for API traffic, uploads,
// question generation, evaluation and visualization.
//
// Usage:
//
//	metrics := observability.NewMetrics(nil)
//	start := time.Now()
//	metrics.RecordAPIRequest("vector_stores.search", "ok", time.Since(start))
type Metrics struct {
	registry *prometheus.Registry

	// APIRequestCounter counts OpenAI API calls.
	// Labels: endpoint (vector_stores.search, responses.create, ...), status (ok or a failure reason)
	APIRequestCounter *prometheus.CounterVec

	// APIRequestDuration measures API call latency in seconds, retries included.
	// Labels: endpoint
	APIRequestDuration *prometheus.HistogramVec

	// APIRetryCounter counts attempts beyond the first.
	// Labels: endpoint
	APIRetryCounter *prometheus.CounterVec

	// UploadCounter counts batch upload results.
	// Labels: status (success|failed)
	UploadCounter *prometheus.CounterVec

	// UploadDuration measures single file upload time in seconds.
	UploadDuration prometheus.Histogram

	// QuestionsGenerated counts generated evaluation questions.
	QuestionsGenerated prometheus.Counter

	// ExtractionFailures counts PDFs skipped during question generation.
	ExtractionFailures prometheus.Counter

	// EvaluationQuestions counts evaluated questions by outcome.
	// Labels: outcome (found|missed|error)
	EvaluationQuestions *prometheus.CounterVec

	// EvaluationScore holds the latest aggregate metric values.
	// Labels: metric (recall_at_k|precision_at_k|mrr|map)
	EvaluationScore *prometheus.GaugeVec

	// EmbeddingCacheLookups counts embedding cache lookups.
	// Labels: result (hit|miss)
	EmbeddingCacheLookups *prometheus.CounterVec

	// VisualizationPoints is the number of points in the latest plot.
	VisualizationPoints prometheus.Gauge

	// VisualizationClusters is the number of clusters found in the latest plot.
	VisualizationClusters prometheus.Gauge
}

// NewMetrics creates all metrics on reg. A nil reg gets a fresh private
// registry so repeated construction never panics on duplicate registration.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		APIRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filesearch_api_requests_total",
				Help: "Total number of OpenAI API requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		APIRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "filesearch_api_request_duration_seconds",
				Help:    "Duration of OpenAI API requests in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"endpoint"},
		),

		APIRetryCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filesearch_api_retries_total",
				Help: "Total number of retried OpenAI API attempts by endpoint",
			},
			[]string{"endpoint"},
		),

		UploadCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filesearch_uploads_total",
				Help: "Total number of PDF uploads by status",
			},
			[]string{"status"},
		),

		UploadDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "filesearch_upload_duration_seconds",
				Help:    "Duration of single PDF uploads in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		),

		QuestionsGenerated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "filesearch_questions_generated_total",
				Help: "Total number of generated evaluation questions",
			},
		),

		ExtractionFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "filesearch_extraction_failures_total",
				Help: "Total number of documents skipped because no text could be extracted",
			},
		),

		EvaluationQuestions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filesearch_evaluation_questions_total",
				Help: "Total number of evaluated questions by outcome",
			},
			[]string{"outcome"},
		),

		EvaluationScore: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "filesearch_evaluation_score",
				Help: "Latest aggregate retrieval evaluation metrics",
			},
			[]string{"metric"},
		),

		EmbeddingCacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filesearch_embedding_cache_lookups_total",
				Help: "Total number of embedding cache lookups by result",
			},
			[]string{"result"},
		),

		VisualizationPoints: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "filesearch_visualization_points",
				Help: "Number of points in the latest visualization",
			},
		),

		VisualizationClusters: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "filesearch_visualization_clusters",
				Help: "Number of clusters in the latest visualization",
			},
		),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes all metrics to path (node exporter textfile format).
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

// RecordAPIRequest records a completed API call.
func (m *Metrics) RecordAPIRequest(endpoint, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.APIRequestCounter.WithLabelValues(endpoint, status).Inc()
	m.APIRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordRetries records attempts beyond the first.
func (m *Metrics) RecordRetries(endpoint string, attempts int) {
	if m == nil || attempts <= 1 {
		return
	}
	m.APIRetryCounter.WithLabelValues(endpoint).Add(float64(attempts - 1))
}

// RecordUpload records the result of one file upload.
func (m *Metrics) RecordUpload(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.UploadCounter.WithLabelValues(status).Inc()
	m.UploadDuration.Observe(duration.Seconds())
}

// RecordQuestions records generated questions for one document.
func (m *Metrics) RecordQuestions(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.QuestionsGenerated.Add(float64(n))
}

// RecordExtractionFailure records a skipped document.
func (m *Metrics) RecordExtractionFailure() {
	if m == nil {
		return
	}
	m.ExtractionFailures.Inc()
}

// RecordEvaluationQuestion records one evaluated question.
func (m *Metrics) RecordEvaluationQuestion(outcome string) {
	if m == nil {
		return
	}
	m.EvaluationQuestions.WithLabelValues(outcome).Inc()
}

// SetEvaluationScores publishes aggregate evaluation metrics.
func (m *Metrics) SetEvaluationScores(recall, precision, mrr, mapScore float64) {
	if m == nil {
		return
	}
	m.EvaluationScore.WithLabelValues("recall_at_k").Set(recall)
	m.EvaluationScore.WithLabelValues("precision_at_k").Set(precision)
	m.EvaluationScore.WithLabelValues("mrr").Set(mrr)
	m.EvaluationScore.WithLabelValues("map").Set(mapScore)
}

// RecordCacheLookup records an embedding cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.EmbeddingCacheLookups.WithLabelValues(result).Inc()
}

// SetVisualization publishes the size of the latest plot.
func (m *Metrics) SetVisualization(points, clusters int) {
	if m == nil {
		return
	}
	m.VisualizationPoints.Set(float64(points))
	m.VisualizationClusters.Set(float64(clusters))
}
