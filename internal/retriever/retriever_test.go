package retriever

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/clausewise/internal/vectorstore"
)

// fakeStore returns canned search results and records the call.
type fakeStore struct {
	results []vectorstore.SearchResult
	err     error
	docID   string
	query   string
	k       int
}

func (s *fakeStore) UpsertChunks(context.Context, string, []vectorstore.ChunkRecord) error {
	return nil
}

func (s *fakeStore) Search(_ context.Context, docID, query string, k int) ([]vectorstore.SearchResult, error) {
	s.docID, s.query, s.k = docID, query, k
	return s.results, s.err
}

func (s *fakeStore) CountByDocument(context.Context, string) (int, error) { return 0, nil }
func (s *fakeStore) DeleteByDocument(context.Context, string) error       { return nil }
func (s *fakeStore) Close() error                                         { return nil }

func TestRetrieveAppliesSimilarityFloor(t *testing.T) {
	store := &fakeStore{results: []vectorstore.SearchResult{
		{ChunkID: "doc-a:0000:00", ClauseID: "doc-a:c0000", Content: "rent clause", Score: 0.9},
		{ChunkID: "doc-a:0001:00", ClauseID: "doc-a:c0001", Content: "parking clause", Score: 0.5},
		{ChunkID: "doc-a:0002:00", ClauseID: "doc-a:c0002", Content: "filler", Score: 0.2},
	}}

	r := New(store, Config{TopK: 5, SimilarityFloor: 0.35}, zap.NewNop())
	got, err := r.Retrieve(context.Background(), "doc-a", "what is the rent?", 0)

	require.NoError(t, err)
	require.Len(t, got, 2, "matches below the floor must be excluded")
	assert.Equal(t, "doc-a:0000:00", got[0].Chunk.ID)
	assert.Equal(t, "doc-a", got[0].Chunk.DocumentID)
	assert.True(t, got[0].Chunk.Indexed)
	assert.InDelta(t, 0.9, float64(got[0].Score), 1e-6)
	assert.Equal(t, 5, store.k, "default k applies when caller passes zero")
}

func TestRetrieveEmptyResultIsValid(t *testing.T) {
	r := New(&fakeStore{}, Config{TopK: 5, SimilarityFloor: 0.35}, zap.NewNop())
	got, err := r.Retrieve(context.Background(), "doc-b", "capital of France", 0)

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRetrieveExplicitK(t *testing.T) {
	store := &fakeStore{}
	r := New(store, Config{TopK: 5}, zap.NewNop())
	_, err := r.Retrieve(context.Background(), "doc-c", "question", 3)

	require.NoError(t, err)
	assert.Equal(t, 3, store.k)
	assert.Equal(t, "doc-c", store.docID)
}

func TestRetrieveRejectsEmptyQuery(t *testing.T) {
	r := New(&fakeStore{}, Config{}, zap.NewNop())
	_, err := r.Retrieve(context.Background(), "doc-d", "   ", 0)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestRetrievePropagatesStoreError(t *testing.T) {
	boom := errors.New("index offline")
	r := New(&fakeStore{err: boom}, Config{}, zap.NewNop())
	_, err := r.Retrieve(context.Background(), "doc-e", "question", 0)
	assert.ErrorIs(t, err, boom)
}
