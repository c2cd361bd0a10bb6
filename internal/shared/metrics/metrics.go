package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Analysis outcomes.
const (
	OutcomeAnalyzed   = "analyzed"
	OutcomeSkipped    = "skipped_empty"
	OutcomeNotFound   = "not_found"
	OutcomeServiceErr = "service_error"
	OutcomeParseErr   = "parse_error"
	OutcomeConflict   = "in_progress"
	OutcomeFailed     = "failed"
)

var (
	documentsIngestedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "documents_ingested_total",
		Help: "Documents successfully ingested, by mime type.",
	}, []string{"mime_type"})

	ingestFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "documents_ingest_failures_total",
		Help: "Ingestion failures, by pipeline stage.",
	}, []string{"stage"})

	analysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "document_analyses_total",
		Help: "Analysis attempts, by outcome.",
	}, []string{"outcome"})

	analysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "document_analysis_duration_seconds",
		Help:    "End-to-end analysis duration in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	})

	llmCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_call_duration_seconds",
		Help:    "Text-generation call duration in seconds, by provider.",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"provider"})

	repoCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "document_repo_cache_total",
		Help: "Repository cache lookups, by result.",
	}, []string{"result"})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests, by method, route and status.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds, by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// IncIngested records a successful ingestion.
func IncIngested(mimeType string) {
	documentsIngestedTotal.WithLabelValues(mimeType).Inc()
}

// IncIngestFailure records an ingestion failure at the given stage.
func IncIngestFailure(stage string) {
	ingestFailuresTotal.WithLabelValues(stage).Inc()
}

// IncAnalysis records an analysis outcome.
func IncAnalysis(outcome string) {
	analysesTotal.WithLabelValues(outcome).Inc()
}

// ObserveAnalysisSeconds records an analysis duration.
func ObserveAnalysisSeconds(v float64) {
	analysisDuration.Observe(v)
}

// ObserveLLMSeconds records a text-generation call duration.
func ObserveLLMSeconds(provider string, v float64) {
	llmCallDuration.WithLabelValues(provider).Observe(v)
}

// IncCache records a repository cache hit or miss.
func IncCache(hit bool) {
	if hit {
		repoCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	repoCacheTotal.WithLabelValues("miss").Inc()
}

// ObserveHTTP records one served request.
func ObserveHTTP(method, route, status string, seconds float64) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(seconds)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
