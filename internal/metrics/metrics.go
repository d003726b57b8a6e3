package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hopline_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hopline_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hopline_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)

	// Embedding metrics
	EmbeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hopline_embedding_requests_total",
			Help: "Total number of embedding requests",
		},
		[]string{"model", "status"},
	)

	EmbeddingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hopline_embedding_duration_seconds",
			Help:    "Embedding request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"model"},
	)

	EmbeddingCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hopline_embedding_cache_hits_total",
			Help: "Embedding cache hits by tier",
		},
		[]string{"tier"},
	)

	EmbeddingCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hopline_embedding_cache_misses_total",
			Help: "Embedding cache misses",
		},
	)

	// Vector index metrics
	VectorQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hopline_vector_queries_total",
			Help: "Total number of vector index queries",
		},
		[]string{"status"},
	)

	VectorQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hopline_vector_query_duration_seconds",
			Help:    "Vector index query duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	VectorUpserts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hopline_vector_upserts_total",
			Help: "Total number of vector index upserts",
		},
		[]string{"status"},
	)

	// Retrieval metrics
	RetrievalSearches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hopline_retrieval_searches_total",
			Help: "Total number of hybrid retrieval searches",
		},
	)

	RetrievalResults = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hopline_retrieval_results",
			Help:    "Number of results returned per hybrid search",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	// Multi-hop metrics
	HopsPerRun = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hopline_hops_per_run",
			Help:    "Number of retrieval hops executed per query run",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		},
	)

	TemplateReplays = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hopline_template_replays_total",
			Help: "Total number of query runs answered by template replay",
		},
	)

	DecompositionFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hopline_decomposition_failures_total",
			Help: "Total number of unparseable decomposition responses",
		},
	)

	// Feedback metrics
	FeedbackReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hopline_feedback_received_total",
			Help: "Total number of feedback submissions",
		},
		[]string{"signal"},
	)

	CorrectionsInjected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hopline_corrections_injected_total",
			Help: "Total number of correction documents injected",
		},
		[]string{"status"},
	)

	// LLM metrics
	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hopline_llm_requests_total",
			Help: "Total number of LLM completions",
		},
		[]string{"model", "status"},
	)

	LLMDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hopline_llm_duration_seconds",
			Help:    "LLM completion duration in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"model"},
	)

	// Streaming metrics
	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hopline_active_streams",
			Help: "Number of chat streams currently open",
		},
	)
)

// RecordHTTPRequest records a completed HTTP request.
func RecordHTTPRequest(route, method, status string, seconds float64) {
	HTTPRequests.WithLabelValues(route, method, status).Inc()
	HTTPDuration.WithLabelValues(route, method).Observe(seconds)
}

// RecordEmbedding records an embedding service call.
func RecordEmbedding(model, status string, seconds float64) {
	EmbeddingRequests.WithLabelValues(model, status).Inc()
	EmbeddingDuration.WithLabelValues(model).Observe(seconds)
}

// RecordVectorQuery records a vector index query.
func RecordVectorQuery(status string, seconds float64) {
	VectorQueries.WithLabelValues(status).Inc()
	VectorQueryDuration.Observe(seconds)
}

// RecordLLM records an LLM completion call.
func RecordLLM(model, status string, seconds float64) {
	LLMRequests.WithLabelValues(model, status).Inc()
	LLMDuration.WithLabelValues(model).Observe(seconds)
}
