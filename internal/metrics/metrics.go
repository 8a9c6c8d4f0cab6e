package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Request metrics
	AskRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zapytaj_ask_requests_total",
			Help: "Total number of answered ask requests by outcome",
		},
		[]string{"outcome"},
	)

	AskDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "zapytaj_ask_duration_seconds",
			Help:    "End-to-end ask pipeline duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zapytaj_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zapytaj_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// Retrieval metrics
	RetrievalRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zapytaj_retrieval_requests_total",
			Help: "Total number of index lookups by backend and status",
		},
		[]string{"backend", "status"},
	)

	RetrievalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zapytaj_retrieval_duration_seconds",
			Help:    "Index lookup duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"backend"},
	)

	// LLM metrics
	LLMCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zapytaj_llm_calls_total",
			Help: "Total number of chat model calls by purpose and status",
		},
		[]string{"purpose", "status"},
	)

	LLMCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zapytaj_llm_call_duration_seconds",
			Help:    "Chat model call duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"purpose"},
	)

	// NLP and embedding service metrics
	NLPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zapytaj_nlp_requests_total",
			Help: "Total number of NLP pipeline calls by status",
		},
		[]string{"status"},
	)

	EmbeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zapytaj_embedding_requests_total",
			Help: "Total number of embedder calls by status",
		},
		[]string{"status"},
	)

	EmbeddingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "zapytaj_embedding_duration_seconds",
			Help:    "Embedder call duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	// Validation and retry metrics
	AnswerValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zapytaj_answer_validations_total",
			Help: "Total number of answer validations by result",
		},
		[]string{"result"},
	)

	RetryStrategyActivations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zapytaj_retry_strategy_activations_total",
			Help: "Total number of retry strategy activations",
		},
		[]string{"strategy"},
	)

	ContextTokensUsed = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "zapytaj_context_tokens_used",
			Help:    "Tokens packed into the prompt context per ask",
			Buckets: []float64{25, 50, 100, 150, 200, 250},
		},
	)

	// Unresolved memory metrics
	UnresolvedAdded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "zapytaj_unresolved_added_total",
			Help: "Total number of queries saved as unresolved",
		},
	)

	UnresolvedResolved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "zapytaj_unresolved_resolved_total",
			Help: "Total number of unresolved queries marked resolved",
		},
	)

	UnresolvedPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "zapytaj_unresolved_pending",
			Help: "Number of unresolved queries currently pending",
		},
	)

	// Change detector metrics
	DetectorNewDocuments = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "zapytaj_detector_new_documents",
			Help: "New documents observed since the initial snapshot",
		},
	)

	// Ingestion metrics
	DocumentsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zapytaj_documents_ingested_total",
			Help: "Total number of documents written per backend",
		},
		[]string{"backend"},
	)

	DocumentsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "zapytaj_documents_rejected_total",
			Help: "Total number of corpus records rejected at ingest",
		},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "zapytaj_circuit_breaker_state",
			Help: "Circuit breaker state per service (0=closed, 1=half-open, 2=open)",
		},
		[]string{"service"},
	)

	CircuitBreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zapytaj_circuit_breaker_trips_total",
			Help: "Total number of circuit breaker trips per service",
		},
		[]string{"service"},
	)
)
