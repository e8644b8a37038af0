package document

import (
	"strings"
	"time"
)

// Type is the closed document-type taxonomy. It drives which risk-pattern
// table and terminology bias the pipeline selects.
type Type string

const (
	TypeRental     Type = "rental"
	TypeEmployment Type = "employment"
	TypeLoan       Type = "loan"
	TypeGovernment Type = "government"
	TypeUnknown    Type = "unknown"
)

// Types lists all known document types (excluding unknown).
func Types() []Type {
	return []Type{TypeRental, TypeEmployment, TypeLoan, TypeGovernment}
}

// ParseType maps a label to a document type, falling back to unknown.
func ParseType(s string) Type {
	switch Type(s) {
	case TypeRental, TypeEmployment, TypeLoan, TypeGovernment:
		return Type(s)
	default:
		return TypeUnknown
	}
}

// State is the document lifecycle state.
type State string

const (
	StateIngested     State = "ingested"
	StateSegmented    State = "segmented"
	StateAnalyzed     State = "analyzed"
	StateIndexed      State = "indexed"
	StateReady        State = "ready"
	StateFailed       State = "failed"
	StateDeleting     State = "deleting"
	StateDeleteFailed State = "delete_failed"
	StateDeleted      State = "deleted"
)

// Document is a single legal document owned by the pipeline instance
// processing it.
type Document struct {
	ID   string `json:"id" badgerhold:"key"`
	Text string `json:"text"`
	Type Type   `json:"type"`

	// State tracks lifecycle progress: ingested -> segmented -> analyzed
	// -> indexed -> ready. Deletion moves through deleting -> deleted.
	State State `json:"state"`

	// Generation is the per-document version token. Background work started
	// under an older generation must discard its results (see pipeline).
	Generation uint64 `json:"generation"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clause is the atomic addressable unit of a document.
//
// Invariants: positions are contiguous and strictly increasing within a
// document; spans do not overlap; concatenating clause texts in position
// order reproduces the document text modulo whitespace.
type Clause struct {
	ID         string `json:"id" badgerhold:"key"`
	DocumentID string `json:"document_id" badgerhold:"index"`
	Position   int    `json:"position"`
	Text       string `json:"text"`

	// Start and End are byte offsets of the span in the original text.
	Start int `json:"start"`
	End   int `json:"end"`

	// ClauseType is the structural marker class that produced the boundary
	// (numbered, lettered, paragraph, sentence, whole).
	ClauseType string `json:"clause_type"`
}

// RiskLevel tags how risky a clause is.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ParseRiskLevel maps a string to a known risk level. The second return
// is false for anything unrecognized.
func ParseRiskLevel(s string) (RiskLevel, bool) {
	switch RiskLevel(strings.ToLower(strings.TrimSpace(s))) {
	case RiskLow:
		return RiskLow, true
	case RiskMedium:
		return RiskMedium, true
	case RiskHigh:
		return RiskHigh, true
	}
	return "", false
}

// riskRank orders risk levels for comparisons.
var riskRank = map[RiskLevel]int{RiskLow: 0, RiskMedium: 1, RiskHigh: 2}

// MaxRiskLevel returns the higher of two risk levels.
func MaxRiskLevel(a, b RiskLevel) RiskLevel {
	if riskRank[b] > riskRank[a] {
		return b
	}
	return a
}

// Severity is the alert severity scale. It deliberately mirrors RiskLevel
// so clause risk and alert severity are directly comparable.
type Severity = RiskLevel

// ClauseAnalysis is the simplified explanation of one clause. Immutable
// once created; re-analysis writes a new version.
type ClauseAnalysis struct {
	ID         string `json:"id" badgerhold:"key"`
	ClauseID   string `json:"clause_id" badgerhold:"index"`
	DocumentID string `json:"document_id" badgerhold:"index"`
	Position   int    `json:"position"`
	Version    uint64 `json:"version"`

	Explanation string   `json:"explanation"`
	KeyPoints   []string `json:"key_points"`
	Obligations []string `json:"obligations"`

	RiskLevel RiskLevel `json:"risk_level"`

	// Degraded marks analyses produced by the fallback path after the
	// generation call failed or returned invalid content.
	Degraded         bool `json:"degraded"`
	NeedManualReview bool `json:"need_manual_review"`

	CreatedAt time.Time `json:"created_at"`
}

// RiskAlert flags one or more clauses for a specific risk type.
//
// Invariant: ClauseIDs is non-empty and every referenced clause belongs to
// the owning document.
type RiskAlert struct {
	ID         string `json:"id" badgerhold:"key"`
	DocumentID string `json:"document_id" badgerhold:"index"`

	ClauseIDs      []string `json:"clause_ids"`
	RiskType       string   `json:"risk_type"`
	Severity       Severity `json:"severity"`
	Description    string   `json:"description"`
	Recommendation string   `json:"recommendation"`

	// Source records which stage produced the alert: "pattern",
	// "classifier" or "pattern+classifier" after severity escalation.
	Source string `json:"source"`

	CreatedAt time.Time `json:"created_at"`
}

// Chunk is a contiguous span of clause text sized for the embedding model.
// Chunk IDs are deterministic (docID:clausePos:seq) so re-indexing the same
// text upserts in place.
type Chunk struct {
	ID         string `json:"id" badgerhold:"key"`
	DocumentID string `json:"document_id" badgerhold:"index"`
	ClauseID   string `json:"clause_id"`
	Position   int    `json:"position"` // owning clause position
	Seq        int    `json:"seq"`      // chunk sequence within the clause
	Text       string `json:"text"`

	// Indexed reports whether the chunk's embedding reached the vector
	// index. Unindexed chunks reduce recall but never fail the document.
	Indexed bool `json:"indexed"`
}

// RetrievedContext is an ephemeral ranked (chunk, score) pair produced per
// query. It is never persisted.
type RetrievedContext struct {
	Chunk Chunk
	Score float32
}

// Citation points a supporting claim at the chunk and clause it came from.
type Citation struct {
	ChunkID  string `json:"chunk_id"`
	ClauseID string `json:"clause_id"`
	Position int    `json:"position"`
	Snippet  string `json:"snippet,omitempty"`
}

// AnswerResponse is the output of the answer generator, persisted as
// append-only Q&A history.
type AnswerResponse struct {
	ID         string `json:"id" badgerhold:"key"`
	DocumentID string `json:"document_id" badgerhold:"index"`
	Question   string `json:"question"`

	Answer     string     `json:"answer"`
	Confidence float64    `json:"confidence"` // [0,1]
	Citations  []Citation `json:"citations,omitempty"`

	// Unanswerable distinguishes "the document does not cover this" from a
	// low-confidence best effort. Unanswerable responses carry no citations
	// and confidence 0; low-confidence responses always carry content.
	Unanswerable bool   `json:"unanswerable"`
	Limitation   string `json:"limitation,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// ClauseStatus is the per-clause processing outcome surfaced to callers.
type ClauseStatus struct {
	ClauseID string `json:"clause_id"`
	Position int    `json:"position"`
	Analyzed bool   `json:"analyzed"`
	Degraded bool   `json:"degraded"`
}

// DocumentSummary is the derived document-level aggregate. It is
// regenerated from current state and never independently authoritative.
type DocumentSummary struct {
	DocumentID string `json:"document_id"`
	Type       Type   `json:"type"`

	// RiskPosture is the highest severity observed across analyses and
	// alerts.
	RiskPosture Severity `json:"risk_posture"`
	Narrative   string   `json:"narrative"`

	ClauseCount    int `json:"clause_count"`
	AlertCount     int `json:"alert_count"`
	DegradedCount  int `json:"degraded_count"`
	UnindexedCount int `json:"unindexed_count"`

	// InsufficientData is set instead of failing when the summary inputs
	// are missing (e.g. no analyses at all).
	InsufficientData bool `json:"insufficient_data"`

	ClauseStatuses []ClauseStatus `json:"clause_statuses,omitempty"`

	GeneratedAt time.Time `json:"generated_at"`
}
