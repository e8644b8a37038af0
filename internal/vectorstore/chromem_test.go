package vectorstore

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// keywordEmbedder is a deterministic test embedder. Each vocabulary word
// owns one dimension; vectors are L2-normalized so cosine similarity is
// well-defined.
type keywordEmbedder struct {
	vocab []string
}

func newKeywordEmbedder() *keywordEmbedder {
	return &keywordEmbedder{vocab: []string{"rent", "fee", "deposit", "termination", "salary"}}
}

func (e *keywordEmbedder) embed(text string) []float32 {
	vec := make([]float32, len(e.vocab)+1)
	lower := strings.ToLower(text)
	var norm float64
	for i, w := range e.vocab {
		if strings.Contains(lower, w) {
			vec[i] = 1
		}
	}
	// Last dimension keeps zero-keyword texts from producing a zero vector.
	vec[len(e.vocab)] = 0.1
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec
}

func (e *keywordEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

func (e *keywordEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func newTestStore(t *testing.T) *ChromemStore {
	t.Helper()
	store, err := NewChromemStore(ChromemConfig{Path: t.TempDir()}, newKeywordEmbedder(), zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestCollectionForDocument(t *testing.T) {
	assert.Equal(t, "doc_abc_123", CollectionForDocument("abc-123"))
	assert.Equal(t, "doc_x", CollectionForDocument("X"))
	long := strings.Repeat("a", 100)
	assert.LessOrEqual(t, len(CollectionForDocument(long)), 64)
}

func TestUpsertAndScopedSearch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	err := store.UpsertChunks(ctx, "doc-a", []ChunkRecord{
		{ID: "doc-a:0000:00", ClauseID: "c1", Position: 0, Seq: 0, Text: "Tenant shall pay rent monthly"},
		{ID: "doc-a:0001:00", ClauseID: "c2", Position: 1, Seq: 0, Text: "A late fee applies after five days"},
	})
	require.NoError(t, err)

	err = store.UpsertChunks(ctx, "doc-b", []ChunkRecord{
		{ID: "doc-b:0000:00", ClauseID: "c9", Position: 0, Seq: 0, Text: "Employee salary is paid monthly"},
	})
	require.NoError(t, err)

	results, err := store.Search(ctx, "doc-a", "when is rent due", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "doc-a:0000:00", results[0].ChunkID)
	assert.Equal(t, "c1", results[0].ClauseID)
	assert.Equal(t, 0, results[0].Position)

	// Results never leak across documents.
	for _, r := range results {
		assert.NotContains(t, r.ChunkID, "doc-b")
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	chunk := ChunkRecord{ID: "doc-a:0000:00", ClauseID: "c1", Text: "Tenant shall pay rent monthly"}
	require.NoError(t, store.UpsertChunks(ctx, "doc-a", []ChunkRecord{chunk}))

	// Re-index with updated text; same ID must replace, not duplicate.
	chunk.Text = "Tenant shall pay rent and a deposit"
	require.NoError(t, store.UpsertChunks(ctx, "doc-a", []ChunkRecord{chunk}))

	count, err := store.CountByDocument(ctx, "doc-a")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	results, err := store.Search(ctx, "doc-a", "deposit", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Content, "deposit")
}

func TestSearchBeforeIndexing(t *testing.T) {
	store := newTestStore(t)

	results, err := store.Search(context.Background(), "doc-ghost", "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDeleteByDocument(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.UpsertChunks(ctx, "doc-a", []ChunkRecord{
		{ID: "doc-a:0000:00", ClauseID: "c1", Text: "Tenant shall pay rent monthly"},
	}))

	require.NoError(t, store.DeleteByDocument(ctx, "doc-a"))

	count, err := store.CountByDocument(ctx, "doc-a")
	require.NoError(t, err)
	assert.Zero(t, count)

	results, err := store.Search(ctx, "doc-a", "rent", 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	// Deleting again is a no-op.
	assert.NoError(t, store.DeleteByDocument(ctx, "doc-a"))
}

func TestUpsertRejectsEmptyBatch(t *testing.T) {
	store := newTestStore(t)
	err := store.UpsertChunks(context.Background(), "doc-a", nil)
	assert.ErrorIs(t, err, ErrEmptyChunks)
}
