// Prometheus metrics for vector index operations.
package vectorstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpsertsTotal counts chunk vectors upserted, by provider.
	UpsertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clausewise",
			Subsystem: "vectorstore",
			Name:      "upserts_total",
			Help:      "Total number of chunk vectors upserted",
		},
		[]string{"provider"},
	)

	// SearchesTotal counts scoped searches, by provider.
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clausewise",
			Subsystem: "vectorstore",
			Name:      "searches_total",
			Help:      "Total number of scoped similarity searches",
		},
		[]string{"provider"},
	)

	// DeletesTotal counts per-document deletions, by provider.
	DeletesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clausewise",
			Subsystem: "vectorstore",
			Name:      "document_deletes_total",
			Help:      "Total number of per-document vector deletions",
		},
		[]string{"provider"},
	)
)
