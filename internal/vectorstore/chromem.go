package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("clausewise.vectorstore.chromem")

// ChromemConfig holds configuration for the chromem-go embedded store.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	// Default: "~/.local/share/clausewise/vectorstore"
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.local/share/clausewise/vectorstore"
	}
}

// ChromemStore implements Store using chromem-go.
//
// chromem-go is an embeddable vector database with zero third-party
// dependencies: pure Go, no external service, automatic persistence to
// gob files. One chromem collection per document.
type ChromemStore struct {
	db       *chromem.DB
	embedder Embedder
	config   ChromemConfig
	logger   *zap.Logger
}

// NewChromemStore creates a new ChromemStore with the given configuration.
func NewChromemStore(config ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()

	expandedPath, err := expandPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(expandedPath, 0755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", expandedPath, err)
	}

	db, err := chromem.NewPersistentDB(expandedPath, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	return &ChromemStore{
		db:       db,
		embedder: embedder,
		config:   config,
		logger:   logger.Named("chromem"),
	}, nil
}

// createEmbeddingFunc adapts the Embedder to chromem's query-time hook.
func (s *ChromemStore) createEmbeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

// UpsertChunks embeds and stores chunks in the document's collection.
// chromem keys documents by ID, so re-adding an existing chunk ID
// replaces it in place.
func (s *ChromemStore) UpsertChunks(ctx context.Context, docID string, chunks []ChunkRecord) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.UpsertChunks")
	defer span.End()

	if len(chunks) == 0 {
		return ErrEmptyChunks
	}

	collectionName := CollectionForDocument(docID)
	span.SetAttributes(
		attribute.String("collection", collectionName),
		attribute.Int("chunk_count", len(chunks)),
	)

	collection, err := s.db.GetOrCreateCollection(collectionName, nil, s.createEmbeddingFunc())
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("getting collection %s: %w", collectionName, err)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	embeddings, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID:      c.ID,
			Content: c.Text,
			Metadata: map[string]string{
				"document_id": docID,
				"clause_id":   c.ClauseID,
				"position":    strconv.Itoa(c.Position),
				"seq":         strconv.Itoa(c.Seq),
			},
			Embedding: embeddings[i],
		}
	}

	// Concurrency of 1 since embeddings are precomputed.
	if err := collection.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding chunks: %w", err)
	}

	UpsertsTotal.WithLabelValues("chromem").Add(float64(len(chunks)))
	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("upserted chunks",
		zap.String("collection", collectionName),
		zap.Int("count", len(chunks)),
	)
	return nil
}

// Search performs similarity search scoped to the document.
func (s *ChromemStore) Search(ctx context.Context, docID string, query string, k int) ([]SearchResult, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Search")
	defer span.End()

	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	collectionName := CollectionForDocument(docID)
	span.SetAttributes(attribute.String("collection", collectionName), attribute.Int("k", k))

	collection := s.db.GetCollection(collectionName, s.createEmbeddingFunc())
	if collection == nil {
		// Nothing indexed yet; a valid empty result, not an error.
		return []SearchResult{}, nil
	}

	// chromem requires nResults <= stored document count.
	docCount := collection.Count()
	if docCount == 0 {
		return []SearchResult{}, nil
	}
	if k > docCount {
		k = docCount
	}

	results, err := collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", collectionName, err)
	}

	searchResults := make([]SearchResult, len(results))
	for i, r := range results {
		searchResults[i] = SearchResult{
			ChunkID:  r.ID,
			ClauseID: r.Metadata["clause_id"],
			Position: atoiOrZero(r.Metadata["position"]),
			Seq:      atoiOrZero(r.Metadata["seq"]),
			Content:  r.Content,
			Score:    r.Similarity,
		}
	}

	SearchesTotal.WithLabelValues("chromem").Inc()
	span.SetAttributes(attribute.Int("results_count", len(searchResults)))
	span.SetStatus(codes.Ok, "success")
	return searchResults, nil
}

// CountByDocument reports the number of chunk vectors for the document.
func (s *ChromemStore) CountByDocument(ctx context.Context, docID string) (int, error) {
	collection := s.db.GetCollection(CollectionForDocument(docID), s.createEmbeddingFunc())
	if collection == nil {
		return 0, nil
	}
	return collection.Count(), nil
}

// DeleteByDocument drops the document's collection.
func (s *ChromemStore) DeleteByDocument(ctx context.Context, docID string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.DeleteByDocument")
	defer span.End()

	collectionName := CollectionForDocument(docID)
	span.SetAttributes(attribute.String("collection", collectionName))

	if s.db.GetCollection(collectionName, s.createEmbeddingFunc()) == nil {
		return nil
	}
	if err := s.db.DeleteCollection(collectionName); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting collection %s: %w", collectionName, err)
	}

	DeletesTotal.WithLabelValues("chromem").Inc()
	s.logger.Debug("deleted document vectors", zap.String("collection", collectionName))
	return nil
}

// Close releases resources. chromem persists on write, so this is a no-op.
func (s *ChromemStore) Close() error {
	return nil
}

func atoiOrZero(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}
