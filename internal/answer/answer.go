// Package answer synthesizes grounded answers from retrieved context.
//
// With no context the question is declared unanswerable: confidence 0, no
// citations, no best-effort text. With context the model is constrained
// to the provided chunks, citations map the answer back to chunk and
// clause IDs, and a confidence score below the configured threshold
// forces a limitation note. Low confidence still returns content;
// unanswerable never does.
package answer

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/clausewise/internal/document"
	"github.com/fyrsmithlabs/clausewise/internal/llm"
)

const (
	// unanswerableText is the fixed reply when retrieval found nothing.
	unanswerableText = "The document does not contain information that answers this question."

	// ambiguityEpsilon is the score gap under which two top chunks from
	// different clauses count as competing interpretations.
	ambiguityEpsilon = 0.02

	snippetLimit = 160
)

// Config holds generator tunables.
type Config struct {
	// ConfidenceThreshold forces the limitation note below it.
	ConfidenceThreshold float64
}

// Generator produces answers from retrieved context.
type Generator struct {
	gen       llm.Generator
	threshold float64
	logger    *zap.Logger
}

// New creates a Generator.
func New(gen llm.Generator, cfg Config, logger *zap.Logger) *Generator {
	threshold := cfg.ConfidenceThreshold
	if threshold <= 0 {
		threshold = 0.4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{gen: gen, threshold: threshold, logger: logger}
}

// Answer builds an AnswerResponse for the question against the retrieved
// contexts. Contexts must already be ranked by score descending.
func (g *Generator) Answer(ctx context.Context, docID, question string, contexts []document.RetrievedContext) (*document.AnswerResponse, error) {
	now := time.Now().UTC()
	if len(contexts) == 0 {
		return &document.AnswerResponse{
			DocumentID:   docID,
			Question:     question,
			Answer:       unanswerableText,
			Confidence:   0,
			Unanswerable: true,
			CreatedAt:    now,
		}, nil
	}

	text, err := g.gen.Complete(ctx, buildPrompt(question, contexts), llm.Constraints{
		MaxTokens:   1024,
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("generate answer: %w", document.ErrUpstreamDegraded)
	}

	confidence := g.confidence(contexts)
	resp := &document.AnswerResponse{
		DocumentID: docID,
		Question:   question,
		Answer:     text,
		Confidence: confidence,
		Citations:  citations(contexts),
		CreatedAt:  now,
	}

	var limitations []string
	if confidence < g.threshold {
		limitations = append(limitations,
			"Confidence in this answer is low; it may be incomplete or speculative.")
	}
	if alt, ok := competingInterpretation(contexts); ok {
		limitations = append(limitations, fmt.Sprintf(
			"Another clause (position %d) scored nearly as high and may reflect a different reading of the question.",
			alt.Chunk.Position))
	}
	resp.Limitation = strings.Join(limitations, " ")

	g.logger.Debug("answer generated",
		zap.String("document_id", docID),
		zap.Float64("confidence", confidence),
		zap.Int("citations", len(resp.Citations)))
	return resp, nil
}

// confidence blends retrieval relevance with a generation-side signal.
// The top similarity dominates; the mean similarity of all retrieved
// chunks stands in for generation certainty, which the completion API
// does not expose.
func (g *Generator) confidence(contexts []document.RetrievedContext) float64 {
	top := float64(contexts[0].Score)
	var sum float64
	for _, c := range contexts {
		sum += float64(c.Score)
	}
	mean := sum / float64(len(contexts))

	conf := 0.6*top + 0.4*mean
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return conf
}

// competingInterpretation reports whether a chunk from a different clause
// scored within epsilon of the top hit.
func competingInterpretation(contexts []document.RetrievedContext) (document.RetrievedContext, bool) {
	top := contexts[0]
	for _, c := range contexts[1:] {
		if c.Chunk.ClauseID == top.Chunk.ClauseID {
			continue
		}
		if float64(top.Score)-float64(c.Score) <= ambiguityEpsilon {
			return c, true
		}
	}
	return document.RetrievedContext{}, false
}

func citations(contexts []document.RetrievedContext) []document.Citation {
	out := make([]document.Citation, 0, len(contexts))
	for _, c := range contexts {
		out = append(out, document.Citation{
			ChunkID:  c.Chunk.ID,
			ClauseID: c.Chunk.ClauseID,
			Position: c.Chunk.Position,
			Snippet:  snippet(c.Chunk.Text),
		})
	}
	return out
}

func snippet(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= snippetLimit {
		return text
	}
	cut := text[:snippetLimit]
	// Back off to a rune boundary first; the byte cut may have split a
	// multi-byte rune when the text has no spaces to trim to.
	for len(cut) > 0 && !utf8.RuneStart(text[len(cut)]) {
		cut = cut[:len(cut)-1]
	}
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + "…"
}

func buildPrompt(question string, contexts []document.RetrievedContext) string {
	var b strings.Builder
	b.WriteString("Answer the question using ONLY the document excerpts below. ")
	b.WriteString("Do not use outside knowledge. If the excerpts only partially answer the question, say what is missing.\n\nExcerpts:\n")
	for i, c := range contexts {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, strings.TrimSpace(c.Chunk.Text))
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\nAnswer:")
	return b.String()
}
