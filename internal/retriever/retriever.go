// Package retriever ranks indexed chunks against a free-text query.
//
// The query is embedded with the same embedder used at indexing time and
// searched only within the target document's vectors. Matches below the
// similarity floor are dropped even when they would make the top k; an
// empty result is a valid outcome, not an error, and is what the answer
// generator turns into an unanswerable response.
package retriever

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/clausewise/internal/document"
	"github.com/fyrsmithlabs/clausewise/internal/vectorstore"
)

// ErrEmptyQuery rejects blank queries before any embedding work.
var ErrEmptyQuery = errors.New("empty query")

// Config holds retrieval tunables.
type Config struct {
	// TopK is the default result count when the caller passes k <= 0.
	TopK int
	// SimilarityFloor excludes matches scoring below it.
	SimilarityFloor float64
}

// Retriever performs document-scoped similarity search.
type Retriever struct {
	store  vectorstore.Store
	topK   int
	floor  float32
	logger *zap.Logger
}

// New creates a Retriever over the given store.
func New(store vectorstore.Store, cfg Config, logger *zap.Logger) *Retriever {
	topK := cfg.TopK
	if topK <= 0 {
		topK = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		store:  store,
		topK:   topK,
		floor:  float32(cfg.SimilarityFloor),
		logger: logger,
	}
}

// Retrieve returns up to k chunks relevant to the query, ranked by
// similarity descending. k <= 0 uses the configured default.
func (r *Retriever) Retrieve(ctx context.Context, docID, query string, k int) ([]document.RetrievedContext, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		k = r.topK
	}

	results, err := r.store.Search(ctx, docID, query, k)
	if err != nil {
		return nil, err
	}

	contexts := make([]document.RetrievedContext, 0, len(results))
	for _, res := range results {
		if res.Score < r.floor {
			continue
		}
		contexts = append(contexts, document.RetrievedContext{
			Chunk: document.Chunk{
				ID:         res.ChunkID,
				DocumentID: docID,
				ClauseID:   res.ClauseID,
				Position:   res.Position,
				Seq:        res.Seq,
				Text:       res.Content,
				Indexed:    true,
			},
			Score: res.Score,
		})
	}

	r.logger.Debug("retrieval complete",
		zap.String("document_id", docID),
		zap.Int("matches", len(results)),
		zap.Int("above_floor", len(contexts)))
	return contexts, nil
}
