// Package chunker turns clauses into retrieval-sized chunks.
//
// Chunks are aligned to sentence boundaries where possible and overlap by
// a configurable margin so retrieval does not lose context at chunk
// edges. Chunk IDs are deterministic functions of the document, clause
// position and sequence number, which makes re-indexing idempotent.
package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/clausewise/internal/document"
)

var sentenceRe = regexp.MustCompile(`[^.!?]*[.!?]+(?:[ \t\n]+|$)`)

// Config holds chunking tunables.
type Config struct {
	// ChunkSize is the target chunk length in bytes.
	ChunkSize int
	// ChunkOverlap is how many trailing bytes of a chunk reappear at the
	// start of the next one.
	ChunkOverlap int
}

// Chunker splits clause text into overlapping chunks.
type Chunker struct {
	size    int
	overlap int
}

// New creates a Chunker. Overlap is clamped below the chunk size.
func New(cfg Config) *Chunker {
	size := cfg.ChunkSize
	if size <= 0 {
		size = 480
	}
	overlap := cfg.ChunkOverlap
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 4
	}
	return &Chunker{size: size, overlap: overlap}
}

// ChunkID derives the deterministic chunk identifier.
func ChunkID(docID string, clausePos, seq int) string {
	return fmt.Sprintf("%s:%04d:%02d", docID, clausePos, seq)
}

// Chunk splits a single clause. A clause at or under the chunk size
// yields exactly one chunk carrying the full clause text.
func (c *Chunker) Chunk(clause document.Clause) []document.Chunk {
	text := strings.TrimSpace(clause.Text)
	if text == "" {
		return nil
	}

	pieces := c.split(text)
	chunks := make([]document.Chunk, 0, len(pieces))
	for seq, piece := range pieces {
		chunks = append(chunks, document.Chunk{
			ID:         ChunkID(clause.DocumentID, clause.Position, seq),
			DocumentID: clause.DocumentID,
			ClauseID:   clause.ID,
			Position:   clause.Position,
			Seq:        seq,
			Text:       piece,
		})
	}
	return chunks
}

// ChunkAll chunks every clause, preserving clause order.
func (c *Chunker) ChunkAll(clauses []document.Clause) []document.Chunk {
	var out []document.Chunk
	for _, clause := range clauses {
		out = append(out, c.Chunk(clause)...)
	}
	return out
}

// split breaks text into overlapping pieces at sentence boundaries,
// falling back to word boundaries for single sentences longer than the
// chunk size.
func (c *Chunker) split(text string) []string {
	if len(text) <= c.size {
		return []string{text}
	}

	var sentences []string
	matched := 0
	for _, m := range sentenceRe.FindAllStringIndex(text, -1) {
		sentences = append(sentences, text[m[0]:m[1]])
		matched = m[1]
	}
	if rest := strings.TrimSpace(text[matched:]); rest != "" {
		// Trailing text without terminal punctuation.
		sentences = append(sentences, rest)
	}
	if len(sentences) == 0 {
		sentences = []string{text}
	}

	// Oversized single sentences are split on word boundaries first.
	var units []string
	for _, s := range sentences {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if len(s) > c.size {
			units = append(units, c.splitWords(s)...)
		} else {
			units = append(units, s)
		}
	}

	var pieces []string
	var cur []string
	curLen := 0
	for _, u := range units {
		if curLen > 0 && curLen+len(u)+1 > c.size {
			pieces = append(pieces, strings.Join(cur, " "))
			cur, curLen = c.carryOverlap(cur)
		}
		cur = append(cur, u)
		curLen += len(u)
		if len(cur) > 1 {
			curLen++
		}
	}
	if curLen > 0 {
		pieces = append(pieces, strings.Join(cur, " "))
	}
	return pieces
}

// carryOverlap keeps trailing units within the overlap budget as the seed
// of the next piece.
func (c *Chunker) carryOverlap(units []string) ([]string, int) {
	if c.overlap == 0 {
		return nil, 0
	}
	var kept []string
	keptLen := 0
	for i := len(units) - 1; i >= 0; i-- {
		if keptLen+len(units[i]) > c.overlap {
			break
		}
		kept = append([]string{units[i]}, kept...)
		keptLen += len(units[i]) + 1
	}
	return kept, keptLen
}

// splitWords breaks an oversized sentence into size-bounded word runs.
func (c *Chunker) splitWords(s string) []string {
	words := strings.Fields(s)
	var out []string
	var cur []string
	curLen := 0
	for _, w := range words {
		if curLen > 0 && curLen+len(w)+1 > c.size {
			out = append(out, strings.Join(cur, " "))
			cur, curLen = nil, 0
		}
		cur = append(cur, w)
		curLen += len(w) + 1
	}
	if len(cur) > 0 {
		out = append(out, strings.Join(cur, " "))
	}
	return out
}
