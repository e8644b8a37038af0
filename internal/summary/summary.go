// Package summary aggregates clause analyses and risk alerts into a
// document-level view.
//
// Aggregation is pure: no external calls, deterministic for the same
// inputs, regenerated whenever the underlying set changes. Missing inputs
// are reported as insufficient data, never as a failure.
package summary

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fyrsmithlabs/clausewise/internal/document"
)

// Builder derives document summaries.
type Builder struct{}

// New creates a Builder.
func New() *Builder {
	return &Builder{}
}

// Build aggregates the document's current analyses, alerts and chunks
// into a summary. Analyses are keyed by clause ID.
func (b *Builder) Build(doc *document.Document, clauses []document.Clause, analyses map[string]document.ClauseAnalysis, alerts []document.RiskAlert, chunks []document.Chunk) *document.DocumentSummary {
	s := &document.DocumentSummary{
		DocumentID:  doc.ID,
		Type:        doc.Type,
		RiskPosture: document.RiskLow,
		ClauseCount: len(clauses),
		AlertCount:  len(alerts),
		GeneratedAt: time.Now().UTC(),
	}

	if len(clauses) == 0 || len(analyses) == 0 {
		s.InsufficientData = true
		s.Narrative = "Not enough processed content to summarize this document."
		return s
	}

	ordered := append([]document.Clause(nil), clauses...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Position < ordered[j].Position })

	for _, clause := range ordered {
		a, ok := analyses[clause.ID]
		status := document.ClauseStatus{
			ClauseID: clause.ID,
			Position: clause.Position,
			Analyzed: ok,
			Degraded: ok && a.Degraded,
		}
		s.ClauseStatuses = append(s.ClauseStatuses, status)
		if status.Degraded {
			s.DegradedCount++
		}
		if ok {
			s.RiskPosture = document.MaxRiskLevel(s.RiskPosture, a.RiskLevel)
		}
	}
	for _, alert := range alerts {
		s.RiskPosture = document.MaxRiskLevel(s.RiskPosture, alert.Severity)
	}
	for _, chunk := range chunks {
		if !chunk.Indexed {
			s.UnindexedCount++
		}
	}

	s.Narrative = narrative(s, alerts)
	return s
}

// narrative renders a short human-readable digest.
func narrative(s *document.DocumentSummary, alerts []document.RiskAlert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "This %s document contains %d clause%s with an overall %s risk posture.",
		describeType(s.Type), s.ClauseCount, plural(s.ClauseCount), s.RiskPosture)

	if len(alerts) > 0 {
		types := make([]string, 0, len(alerts))
		for _, a := range alerts {
			types = append(types, strings.ReplaceAll(a.RiskType, "_", " "))
		}
		sort.Strings(types)
		fmt.Fprintf(&b, " %d risk alert%s raised: %s.",
			len(alerts), plural(len(alerts)), strings.Join(types, ", "))
	} else {
		b.WriteString(" No risk alerts were raised.")
	}

	if s.DegradedCount > 0 {
		fmt.Fprintf(&b, " %d clause%s could not be fully analyzed and need%s manual review.",
			s.DegradedCount, plural(s.DegradedCount), singularVerb(s.DegradedCount))
	}
	if s.UnindexedCount > 0 {
		fmt.Fprintf(&b, " %d chunk%s missing from the search index; answers may have reduced recall.",
			s.UnindexedCount, pluralIs(s.UnindexedCount))
	}
	return b.String()
}

func describeType(t document.Type) string {
	if t == document.TypeUnknown {
		return "legal"
	}
	return string(t)
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func pluralIs(n int) string {
	if n == 1 {
		return " is"
	}
	return "s are"
}

func singularVerb(n int) string {
	if n == 1 {
		return "s"
	}
	return ""
}
