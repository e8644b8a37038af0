// Package analyzer produces structured per-clause analyses via a language
// model.
//
// The model is asked for a strict JSON object (explanation, key points,
// obligations, risk level). Malformed or implausible output triggers one
// retry with a shortened clause; if that also fails the analyzer returns
// a degraded analysis flagged for manual review instead of an error, so
// one bad clause never sinks a whole document.
package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/clausewise/internal/document"
	"github.com/fyrsmithlabs/clausewise/internal/llm"
)

// AnalysisVersion is stamped on every analysis this package produces.
// Bump it when the prompt or output schema changes.
const AnalysisVersion = 1

const shortenedClauseLimit = 600

// Config holds analyzer tunables.
type Config struct {
	// MaxExplanationLength bounds plausible model explanations in bytes.
	MaxExplanationLength int
}

// Analyzer turns clauses into plain-language analyses.
type Analyzer struct {
	gen    llm.Generator
	maxLen int
	logger *zap.Logger
}

// New creates an Analyzer backed by the given generator.
func New(gen llm.Generator, cfg Config, logger *zap.Logger) *Analyzer {
	maxLen := cfg.MaxExplanationLength
	if maxLen <= 0 {
		maxLen = 2000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{gen: gen, maxLen: maxLen, logger: logger}
}

// modelAnalysis is the JSON shape requested from the model.
type modelAnalysis struct {
	Explanation string   `json:"explanation"`
	KeyPoints   []string `json:"key_points"`
	Obligations []string `json:"obligations"`
	RiskLevel   string   `json:"risk_level"`
}

// Analyze produces an analysis for one clause. The document type steers
// the terminology the model is asked to use.
func (a *Analyzer) Analyze(ctx context.Context, clause document.Clause, docType document.Type) document.ClauseAnalysis {
	analysis, err := a.attempt(ctx, clause.Text, docType)
	if err != nil {
		a.logger.Debug("clause analysis attempt failed, retrying shortened",
			zap.String("clause_id", clause.ID), zap.Error(err))
		analysis, err = a.attempt(ctx, shorten(clause.Text), docType)
	}
	if err != nil {
		a.logger.Warn("clause analysis degraded",
			zap.String("clause_id", clause.ID), zap.Error(err))
		return document.ClauseAnalysis{
			ClauseID:         clause.ID,
			Version:          AnalysisVersion,
			RiskLevel:        document.RiskLow,
			Degraded:         true,
			NeedManualReview: true,
		}
	}

	risk, ok := document.ParseRiskLevel(analysis.RiskLevel)
	if !ok {
		risk = document.RiskLow
	}
	return document.ClauseAnalysis{
		ClauseID:    clause.ID,
		Version:     AnalysisVersion,
		Explanation: analysis.Explanation,
		KeyPoints:   analysis.KeyPoints,
		Obligations: analysis.Obligations,
		RiskLevel:   risk,
	}
}

func (a *Analyzer) attempt(ctx context.Context, clauseText string, docType document.Type) (*modelAnalysis, error) {
	out, err := a.gen.Complete(ctx, buildPrompt(clauseText, docType), llm.Constraints{
		MaxTokens:   1024,
		Temperature: 0.1,
	})
	if err != nil {
		return nil, err
	}

	var parsed modelAnalysis
	if err := json.Unmarshal([]byte(extractJSON(out)), &parsed); err != nil {
		return nil, fmt.Errorf("parse analysis: %w", err)
	}
	if err := a.sanityCheck(&parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}

// sanityCheck rejects output no plausible analysis would have.
func (a *Analyzer) sanityCheck(m *modelAnalysis) error {
	if strings.TrimSpace(m.Explanation) == "" {
		return errors.New("empty explanation")
	}
	if len(m.Explanation) > a.maxLen {
		return fmt.Errorf("explanation length %d exceeds %d", len(m.Explanation), a.maxLen)
	}
	if _, ok := document.ParseRiskLevel(m.RiskLevel); !ok && m.RiskLevel != "" {
		return fmt.Errorf("unknown risk level %q", m.RiskLevel)
	}
	return nil
}

// typeGuidance steers the model toward domain terminology.
var typeGuidance = map[document.Type]string{
	document.TypeRental:     "Use residential tenancy terminology (rent, security deposit, notice period, habitability).",
	document.TypeEmployment: "Use employment terminology (compensation, termination, non-compete, benefits, at-will).",
	document.TypeLoan:       "Use lending terminology (principal, interest rate, default, collateral, prepayment).",
	document.TypeGovernment: "Use administrative terminology (applicant, agency, compliance, filing deadline).",
}

func buildPrompt(clauseText string, docType document.Type) string {
	var b strings.Builder
	b.WriteString("You explain legal clauses to non-lawyers. Analyze the clause below.\n")
	if g, ok := typeGuidance[docType]; ok {
		b.WriteString(g)
		b.WriteString("\n")
	}
	b.WriteString(`Respond with ONLY a JSON object, no prose around it:
{"explanation": "plain-language explanation",
 "key_points": ["short key point", ...],
 "obligations": ["who must do what", ...],
 "risk_level": "low|medium|high"}

Clause:
`)
	b.WriteString(clauseText)
	return b.String()
}

// extractJSON pulls the outermost JSON object out of model output that
// may be wrapped in code fences or prose.
func extractJSON(out string) string {
	start := strings.Index(out, "{")
	end := strings.LastIndex(out, "}")
	if start < 0 || end <= start {
		return out
	}
	return out[start : end+1]
}

// shorten truncates clause text at a word boundary for the retry attempt.
func shorten(text string) string {
	if len(text) <= shortenedClauseLimit {
		return text
	}
	cut := truncateBytes(text, shortenedClauseLimit)
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut
}

// truncateBytes cuts text to at most n bytes without splitting a rune.
func truncateBytes(text string, n int) string {
	if len(text) <= n {
		return text
	}
	for n > 0 && !utf8.RuneStart(text[n]) {
		n--
	}
	return text[:n]
}
