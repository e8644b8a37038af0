// Package segmenter splits raw document text into ordered clauses.
//
// Boundary detection is layered: explicit numbering/lettering markers win,
// then paragraph breaks, then a sentence-boundary fallback for
// unstructured stretches longer than the configured maximum clause
// length. A document with no detectable structure is emitted as a single
// clause; segmentation never fails outright, it degrades to coarser
// segmentation.
package segmenter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/clausewise/internal/document"
)

// Clause type tags, ordered by marker priority.
const (
	TypeNumbered  = "numbered"  // "1.", "2.1", "3)"
	TypeLettered  = "lettered"  // "(a)", "(iv)"
	TypeSection   = "section"   // "Section 4", "Article II", "Clause 7"
	TypeParagraph = "paragraph" // blank-line separated block
	TypeSentence  = "sentence"  // length-fallback split
	TypeWhole     = "whole"     // no structure detected
)

// markerPatterns are tried in priority order against the start of a line.
var markerPatterns = []struct {
	clauseType string
	re         *regexp.Regexp
}{
	{TypeNumbered, regexp.MustCompile(`^[ \t]*\d+(?:(?:\.\d+)+[.)]?|[.)])[ \t]+\S`)},
	{TypeLettered, regexp.MustCompile(`^[ \t]*\((?:[a-z]|[ivxlc]+)\)[ \t]+\S`)},
	{TypeSection, regexp.MustCompile(`^[ \t]*(?i:section|article|clause)[ \t]+(?:\d+|[IVXLC]+)\b`)},
}

// paragraphBreak matches a blank-line separator between paragraphs.
var paragraphBreak = regexp.MustCompile(`\n[ \t]*\n[\s]*`)

// sentenceEnd matches a sentence with its terminal punctuation.
var sentenceEnd = regexp.MustCompile(`[^.!?]*[.!?]+(?:[ \t\n]+|$)`)

// Config holds segmentation tunables.
type Config struct {
	// MaxClauseLength triggers sentence-boundary fallback for stretches
	// longer than this many bytes of text.
	MaxClauseLength int
}

// Segmenter detects clause boundaries in document text.
type Segmenter struct {
	maxClauseLength int
}

// New creates a Segmenter.
func New(cfg Config) *Segmenter {
	maxLen := cfg.MaxClauseLength
	if maxLen <= 0 {
		maxLen = 1200
	}
	return &Segmenter{maxClauseLength: maxLen}
}

// span is an intermediate segment before clause assembly.
type span struct {
	start      int
	end        int
	clauseType string
}

// Segment splits text into ordered clauses for the document.
//
// Positions are contiguous from zero; spans never overlap; concatenating
// clause texts in position order reproduces the input modulo whitespace.
func (s *Segmenter) Segment(docID, text string) []document.Clause {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	spans := s.markerSpans(text)
	if len(spans) == 0 {
		spans = s.paragraphSpans(text)
	}
	if len(spans) == 0 {
		spans = []span{{start: 0, end: len(text), clauseType: TypeWhole}}
	}

	// Length fallback: any span still too long is split at sentence
	// boundaries.
	expanded := make([]span, 0, len(spans))
	for _, sp := range spans {
		if sp.end-sp.start > s.maxClauseLength {
			expanded = append(expanded, s.sentenceSpans(text, sp)...)
		} else {
			expanded = append(expanded, sp)
		}
	}

	clauses := make([]document.Clause, 0, len(expanded))
	pos := 0
	for _, sp := range expanded {
		clauseText := strings.TrimSpace(text[sp.start:sp.end])
		if clauseText == "" {
			continue
		}
		clauses = append(clauses, document.Clause{
			ID:         ClauseID(docID, pos),
			DocumentID: docID,
			Position:   pos,
			Text:       clauseText,
			Start:      sp.start,
			End:        sp.end,
			ClauseType: sp.clauseType,
		})
		pos++
	}
	return clauses
}

// ClauseID derives the deterministic clause identifier for a position.
// Deterministic IDs keep re-runs of the pipeline idempotent.
func ClauseID(docID string, position int) string {
	return fmt.Sprintf("%s:c%04d", docID, position)
}

// markerSpans finds boundaries at lines starting with an explicit
// numbering/lettering marker. Earlier marker classes win when a line
// matches several.
func (s *Segmenter) markerSpans(text string) []span {
	type boundary struct {
		offset     int
		clauseType string
	}
	var boundaries []boundary

	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		for _, mp := range markerPatterns {
			if mp.re.MatchString(line) {
				boundaries = append(boundaries, boundary{offset: offset, clauseType: mp.clauseType})
				break
			}
		}
		offset += len(line)
	}

	if len(boundaries) == 0 {
		return nil
	}

	var spans []span
	// Preamble before the first marker is its own clause.
	if strings.TrimSpace(text[:boundaries[0].offset]) != "" {
		spans = append(spans, span{start: 0, end: boundaries[0].offset, clauseType: TypeParagraph})
	}
	for i, b := range boundaries {
		end := len(text)
		if i+1 < len(boundaries) {
			end = boundaries[i+1].offset
		}
		spans = append(spans, span{start: b.offset, end: end, clauseType: b.clauseType})
	}
	return spans
}

// paragraphSpans splits on blank-line separators.
func (s *Segmenter) paragraphSpans(text string) []span {
	seps := paragraphBreak.FindAllStringIndex(text, -1)
	if len(seps) == 0 {
		return nil
	}

	var spans []span
	start := 0
	for _, sep := range seps {
		if strings.TrimSpace(text[start:sep[0]]) != "" {
			spans = append(spans, span{start: start, end: sep[0], clauseType: TypeParagraph})
		}
		start = sep[1]
	}
	if strings.TrimSpace(text[start:]) != "" {
		spans = append(spans, span{start: start, end: len(text), clauseType: TypeParagraph})
	}
	if len(spans) < 2 {
		// A single paragraph is no structure at all; let the caller fall
		// through to whole-document handling.
		return nil
	}
	return spans
}

// sentenceSpans splits an oversized span at sentence boundaries,
// accumulating sentences up to the maximum clause length.
func (s *Segmenter) sentenceSpans(text string, sp span) []span {
	segment := text[sp.start:sp.end]
	matches := sentenceEnd.FindAllStringIndex(segment, -1)
	if len(matches) == 0 {
		// No sentence punctuation; the oversized span stays whole rather
		// than failing.
		return []span{sp}
	}

	var out []span
	curStart := sp.start
	curEnd := sp.start
	flush := func() {
		if curEnd > curStart && strings.TrimSpace(text[curStart:curEnd]) != "" {
			out = append(out, span{start: curStart, end: curEnd, clauseType: TypeSentence})
		}
		curStart = curEnd
	}

	for _, m := range matches {
		sentEnd := sp.start + m[1]
		if sentEnd-curStart > s.maxClauseLength && curEnd > curStart {
			flush()
		}
		curEnd = sentEnd
	}
	// Trailing text without terminal punctuation belongs to the last span.
	if sp.end > curEnd {
		curEnd = sp.end
	}
	flush()

	if len(out) == 0 {
		return []span{sp}
	}
	// Preserve the marker class on the first piece so the clause keeps its
	// structural identity.
	if sp.clauseType != TypeParagraph && sp.clauseType != TypeWhole {
		out[0].clauseType = sp.clauseType
	}
	return out
}
