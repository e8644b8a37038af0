package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	documentsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clausewise",
		Subsystem: "pipeline",
		Name:      "documents_processed_total",
		Help:      "Completed document processing runs by outcome.",
	}, []string{"status"})

	clausesAnalyzed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clausewise",
		Subsystem: "pipeline",
		Name:      "clauses_analyzed_total",
		Help:      "Clause analyses by outcome.",
	}, []string{"outcome"})

	chunksIndexed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clausewise",
		Subsystem: "pipeline",
		Name:      "chunks_indexed_total",
		Help:      "Chunk indexing attempts by outcome.",
	}, []string{"outcome"})

	questionsAnswered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clausewise",
		Subsystem: "pipeline",
		Name:      "questions_answered_total",
		Help:      "Answered questions by outcome.",
	}, []string{"outcome"})

	documentDeletes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clausewise",
		Subsystem: "pipeline",
		Name:      "document_deletes_total",
		Help:      "Document delete sagas by outcome.",
	}, []string{"status"})

	processingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "clausewise",
		Subsystem: "pipeline",
		Name:      "processing_duration_seconds",
		Help:      "End-to-end document processing duration.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})
)
