// Package vectorstore defines the document-scoped vector index used for
// retrieval, with an embedded chromem-go implementation and an external
// Qdrant implementation.
package vectorstore

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyChunks indicates an upsert with no chunks.
	ErrEmptyChunks = errors.New("empty or nil chunks")

	// ErrConnectionFailed indicates gRPC connection issues.
	ErrConnectionFailed = errors.New("failed to connect to Qdrant")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")
)

// Embedder generates vector embeddings from text.
//
// Indexing and querying MUST use the same embedder so that similarity
// scores are comparable.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query. Some models
	// optimize differently for queries vs documents.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ChunkRecord is the indexable payload for one chunk.
type ChunkRecord struct {
	// ID is the deterministic chunk identifier. Re-upserting the same ID
	// replaces the stored vector (idempotent).
	ID       string
	ClauseID string
	Position int
	Seq      int
	Text     string
}

// SearchResult is a ranked match from a scoped search.
type SearchResult struct {
	ChunkID  string
	ClauseID string
	Position int
	Seq      int
	Content  string
	// Score is the cosine similarity (higher = more similar).
	Score float32
}

// Store is the document-scoped vector index.
//
// Every operation is scoped to a single document: each document gets its
// own collection, which makes per-document deletion a collection drop and
// guarantees cross-document isolation at the storage layer.
//
// Concurrency: implementations are safe for concurrent reads during
// concurrent upserts of different chunks; same-chunk-id writes are
// serialized by the underlying store to preserve idempotency.
type Store interface {
	// UpsertChunks embeds and stores chunks for the document. Re-indexing
	// an existing chunk ID replaces its vector and payload.
	UpsertChunks(ctx context.Context, docID string, chunks []ChunkRecord) error

	// Search embeds the query with the indexing embedder and returns up to
	// k matches from the document's scope, ordered by similarity
	// descending. A partially built index returns partial results, never
	// an error.
	Search(ctx context.Context, docID string, query string, k int) ([]SearchResult, error)

	// CountByDocument reports how many chunk vectors the document has.
	CountByDocument(ctx context.Context, docID string) (int, error)

	// DeleteByDocument removes every vector for the document. Deleting a
	// document that was never indexed is a no-op, not an error.
	DeleteByDocument(ctx context.Context, docID string) error

	// Close closes the vector store and releases resources.
	Close() error
}

var collectionSanitizer = regexp.MustCompile(`[^a-z0-9_]`)

// CollectionForDocument maps a document ID to its collection name.
// Collection names are restricted to [a-z0-9_]{1,64} for Qdrant
// compatibility.
func CollectionForDocument(docID string) string {
	name := "doc_" + collectionSanitizer.ReplaceAllString(strings.ToLower(docID), "_")
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}
