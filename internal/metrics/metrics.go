package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	DocumentsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_documents_ingested_total",
			Help: "Total number of documents ingested",
		},
		[]string{"kind"},
	)

	ChunksIndexed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rag_chunks_indexed_total",
			Help: "Total number of passages written to the vector store",
		},
	)

	// Chat metrics
	ChatRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_chat_requests_total",
			Help: "Total number of chat requests",
		},
		[]string{"status"},
	)

	ChatDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rag_chat_duration_seconds",
			Help:    "Chat request latency by stage",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// Citation metrics
	ParseTier = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_answer_parse_tier_total",
			Help: "Model answers by the parse tier that recovered them",
		},
		[]string{"tier"},
	)

	CitationOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_citation_outcomes_total",
			Help: "Citations by validation outcome",
		},
		[]string{"outcome"},
	)

	// Retrieval metrics
	VectorSearches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_vector_searches_total",
			Help: "Vector searches by store and status",
		},
		[]string{"store", "status"},
	)

	EmbeddingCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_embedding_cache_lookups_total",
			Help: "Query embedding cache lookups",
		},
		[]string{"result"},
	)

	RenderedDocuments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_rendered_documents_total",
			Help: "Highlight outputs written by kind and status",
		},
		[]string{"kind", "status"},
	)
)

// RecordSearch records a vector search result.
func RecordSearch(store string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	VectorSearches.WithLabelValues(store, status).Inc()
}
