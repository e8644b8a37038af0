package docstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/clausewise/internal/document"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{InMemory: true}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDocumentRoundTrip(t *testing.T) {
	s := openTestStore(t)

	doc := &document.Document{ID: "doc-a", Text: "Rent is due.", Type: document.TypeRental, State: document.StateIngested}
	require.NoError(t, s.PutDocument(doc))

	got, err := s.GetDocument("doc-a")
	require.NoError(t, err)
	assert.Equal(t, document.TypeRental, got.Type)
	assert.Equal(t, document.StateIngested, got.State)
	assert.False(t, got.CreatedAt.IsZero())

	require.NoError(t, s.UpdateDocumentState("doc-a", document.StateReady))
	got, err = s.GetDocument("doc-a")
	require.NoError(t, err)
	assert.Equal(t, document.StateReady, got.State)
}

func TestGetDocumentNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetDocument("missing")
	assert.ErrorIs(t, err, document.ErrNotFound)
}

func TestBumpGeneration(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.PutDocument(&document.Document{ID: "doc-b", State: document.StateReady}))

	gen, err := s.BumpGeneration("doc-b")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)

	gen, err = s.BumpGeneration("doc-b")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), gen)
}

func TestReplaceClausesIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	clauses := []document.Clause{
		{ID: "doc-c:c0000", DocumentID: "doc-c", Position: 0, Text: "First."},
		{ID: "doc-c:c0001", DocumentID: "doc-c", Position: 1, Text: "Second."},
	}
	require.NoError(t, s.ReplaceClauses("doc-c", clauses))
	require.NoError(t, s.ReplaceClauses("doc-c", clauses))

	got, err := s.GetClauses("doc-c")
	require.NoError(t, err)
	require.Len(t, got, 2, "re-running segmentation must not duplicate clauses")
	assert.Equal(t, 0, got[0].Position)
	assert.Equal(t, 1, got[1].Position)
}

func TestAnalysesLatestVersionWins(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.PutAnalysis(&document.ClauseAnalysis{
		ClauseID: "doc-d:c0000", DocumentID: "doc-d", Version: 1, Explanation: "first pass",
	}))
	require.NoError(t, s.PutAnalysis(&document.ClauseAnalysis{
		ClauseID: "doc-d:c0000", DocumentID: "doc-d", Version: 2, Explanation: "second pass",
	}))

	latest, err := s.GetAnalyses("doc-d")
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "second pass", latest["doc-d:c0000"].Explanation)
	assert.Equal(t, uint64(2), latest["doc-d:c0000"].Version)
}

func TestChunkRecordsTrackIndexedFlag(t *testing.T) {
	s := openTestStore(t)
	chunks := []document.Chunk{
		{ID: "doc-e:0000:00", DocumentID: "doc-e", ClauseID: "doc-e:c0000", Position: 0, Seq: 0, Indexed: true},
		{ID: "doc-e:0000:01", DocumentID: "doc-e", ClauseID: "doc-e:c0000", Position: 0, Seq: 1, Indexed: false},
	}
	require.NoError(t, s.PutChunks(chunks))

	got, err := s.GetChunks("doc-e")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Indexed)
	assert.False(t, got[1].Indexed)

	// Upsert flips the flag in place under the same deterministic ID.
	chunks[1].Indexed = true
	require.NoError(t, s.PutChunks(chunks[1:]))
	got, err = s.GetChunks("doc-e")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[1].Indexed)
}

func TestAnswersAppendOnly(t *testing.T) {
	s := openTestStore(t)
	first := &document.AnswerResponse{DocumentID: "doc-f", Question: "Q1", Answer: "A1", CreatedAt: time.Now().UTC()}
	second := &document.AnswerResponse{DocumentID: "doc-f", Question: "Q2", Answer: "A2", CreatedAt: time.Now().UTC().Add(time.Millisecond)}
	require.NoError(t, s.AppendAnswer(first))
	require.NoError(t, s.AppendAnswer(second))

	history, err := s.GetAnswers("doc-f")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "Q1", history[0].Question)
	assert.Equal(t, "Q2", history[1].Question)
}

func TestDeleteDerivedCascades(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.PutDocument(&document.Document{ID: "doc-g", State: document.StateReady}))
	require.NoError(t, s.ReplaceClauses("doc-g", []document.Clause{{ID: "doc-g:c0000", DocumentID: "doc-g", Position: 0}}))
	require.NoError(t, s.PutAnalysis(&document.ClauseAnalysis{ClauseID: "doc-g:c0000", DocumentID: "doc-g", Version: 1, Explanation: "x"}))
	require.NoError(t, s.ReplaceAlerts("doc-g", []document.RiskAlert{{ID: "doc-g:risk:penalty", DocumentID: "doc-g", RiskType: "penalty", ClauseIDs: []string{"doc-g:c0000"}}}))
	require.NoError(t, s.PutChunks([]document.Chunk{{ID: "doc-g:0000:00", DocumentID: "doc-g"}}))
	require.NoError(t, s.AppendAnswer(&document.AnswerResponse{DocumentID: "doc-g", Question: "Q", Answer: "A"}))

	require.NoError(t, s.DeleteDerived("doc-g"))

	clauses, err := s.GetClauses("doc-g")
	require.NoError(t, err)
	assert.Empty(t, clauses)
	analyses, err := s.GetAnalyses("doc-g")
	require.NoError(t, err)
	assert.Empty(t, analyses)
	alerts, err := s.GetAlerts("doc-g")
	require.NoError(t, err)
	assert.Empty(t, alerts)
	chunks, err := s.GetChunks("doc-g")
	require.NoError(t, err)
	assert.Empty(t, chunks)
	answers, err := s.GetAnswers("doc-g")
	require.NoError(t, err)
	assert.Empty(t, answers)

	// The document record survives for the saga's terminal state.
	_, err = s.GetDocument("doc-g")
	assert.NoError(t, err)

	require.NoError(t, s.DeleteDocument("doc-g"))
	_, err = s.GetDocument("doc-g")
	assert.ErrorIs(t, err, document.ErrNotFound)
}
