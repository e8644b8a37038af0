package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/clausewise/internal/document"
)

func clause(docID string, pos int, text string) document.Clause {
	return document.Clause{
		ID:         docID + ":c0000",
		DocumentID: docID,
		Position:   pos,
		Text:       text,
	}
}

func TestChunkShortClauseSingleChunk(t *testing.T) {
	c := New(Config{ChunkSize: 480, ChunkOverlap: 80})
	clauses := c.Chunk(clause("doc-a", 0, "The tenant shall pay rent monthly."))

	require.Len(t, clauses, 1)
	assert.Equal(t, "doc-a:0000:00", clauses[0].ID)
	assert.Equal(t, 0, clauses[0].Seq)
	assert.Equal(t, "The tenant shall pay rent monthly.", clauses[0].Text)
}

func TestChunkLongClauseOverlaps(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 12; i++ {
		b.WriteString("The borrower agrees to repay principal and interest according to the schedule. ")
	}

	c := New(Config{ChunkSize: 200, ChunkOverlap: 80})
	chunks := c.Chunk(clause("doc-b", 3, b.String()))

	require.Greater(t, len(chunks), 1)
	for i, ch := range chunks {
		assert.Equal(t, ChunkID("doc-b", 3, i), ch.ID)
		assert.Equal(t, 3, ch.Position)
		assert.Equal(t, i, ch.Seq)
		assert.LessOrEqual(t, len(ch.Text), 200+len("interest"))
	}
	// Consecutive chunks share the overlap sentence.
	assert.Contains(t, chunks[1].Text, "schedule.")
	first := chunks[0].Text[len(chunks[0].Text)-40:]
	assert.Contains(t, chunks[1].Text, strings.Fields(first)[1])
}

func TestChunkDeterministicIDs(t *testing.T) {
	c := New(Config{ChunkSize: 480, ChunkOverlap: 80})
	cl := clause("doc-c", 7, "Deposit is refundable within thirty days of termination.")

	a := c.Chunk(cl)
	b := c.Chunk(cl)
	require.Equal(t, a, b)
	assert.Equal(t, "doc-c:0007:00", a[0].ID)
}

func TestChunkOversizedSentenceSplitsOnWords(t *testing.T) {
	long := strings.Repeat("unconscionable ", 40) // one "sentence", no punctuation
	c := New(Config{ChunkSize: 120, ChunkOverlap: 0})
	chunks := c.Chunk(clause("doc-d", 0, long))

	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.LessOrEqual(t, len(ch.Text), 120)
		assert.NotEmpty(t, strings.TrimSpace(ch.Text))
	}
}

func TestChunkAllPreservesOrder(t *testing.T) {
	c := New(Config{ChunkSize: 480})
	chunks := c.ChunkAll([]document.Clause{
		{ID: "doc-e:c0000", DocumentID: "doc-e", Position: 0, Text: "First clause."},
		{ID: "doc-e:c0001", DocumentID: "doc-e", Position: 1, Text: "Second clause."},
	})

	require.Len(t, chunks, 2)
	assert.Equal(t, "doc-e:0000:00", chunks[0].ID)
	assert.Equal(t, "doc-e:0001:00", chunks[1].ID)
	assert.Equal(t, "doc-e:c0001", chunks[1].ClauseID)
}

func TestChunkEmptyClause(t *testing.T) {
	c := New(Config{})
	assert.Nil(t, c.Chunk(clause("doc-f", 0, "   ")))
}
