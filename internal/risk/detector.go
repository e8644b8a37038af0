// Package risk flags risky clauses with severity-tagged alerts.
//
// Detection is two-stage. Stage 1 scans each clause against a
// document-type-specific pattern table (keywords and regexes mapped to a
// risk type and base severity); it has no external dependency and cannot
// fail. Stage 2 runs a classification call, but only for clauses stage 1
// flagged below high severity or that the clause analysis marked
// high-risk; it may raise severity or surface risk types the patterns
// missed, never lower anything. Alerts are deduplicated by (clause set,
// risk type).
//
// The pattern table ships embedded and can be overridden by a YAML file
// that is hot-reloaded on change.
package risk

import (
	"context"
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/clausewise/internal/document"
	"github.com/fyrsmithlabs/clausewise/internal/llm"
)

//go:embed default_patterns.yaml
var defaultPatterns []byte

// noRiskLabel is the classifier's opt-out answer.
const noRiskLabel = "none"

// Detector emits risk alerts for a document's clauses.
type Detector struct {
	cls    llm.Classifier // nil disables stage 2
	table  atomic.Pointer[table]
	path   string
	logger *zap.Logger
}

// Config holds detector options.
type Config struct {
	// PatternsPath overrides the embedded pattern table when set. The file
	// is re-read on change while Watch runs.
	PatternsPath string
}

// New creates a Detector. The classifier may be nil, which disables the
// second stage.
func New(cls llm.Classifier, cfg Config, logger *zap.Logger) (*Detector, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Detector{cls: cls, path: cfg.PatternsPath, logger: logger}

	t, err := compileTable(defaultPatterns)
	if err != nil {
		return nil, fmt.Errorf("compile embedded patterns: %w", err)
	}
	if cfg.PatternsPath != "" {
		override, err := loadTableFile(cfg.PatternsPath)
		if err != nil {
			return nil, fmt.Errorf("load pattern override: %w", err)
		}
		t = override
	}
	d.table.Store(t)
	return d, nil
}

// Watch hot-reloads the pattern override file until ctx is done. A broken
// edit keeps the previous table in place. No-op without an override path.
func (d *Detector) Watch(ctx context.Context) error {
	if d.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(d.path); err != nil {
		return fmt.Errorf("watch %s: %w", d.path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			// Editors often write in bursts; give the file a moment to settle.
			time.Sleep(100 * time.Millisecond)
			t, err := loadTableFile(d.path)
			if err != nil {
				d.logger.Warn("pattern reload failed, keeping previous table",
					zap.String("path", d.path), zap.Error(err))
				continue
			}
			d.table.Store(t)
			d.logger.Info("risk pattern table reloaded",
				zap.String("path", d.path), zap.Int("patterns", len(t.patterns)))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			d.logger.Warn("pattern watcher error", zap.Error(err))
		}
	}
}

// draft accumulates matches for one risk type before emission.
type draft struct {
	clauseIDs      map[string]bool
	positions      map[string]int
	severity       document.Severity
	description    string
	recommendation string
	fromPattern    bool
	fromClassifier bool
}

// Detect runs both stages over the document's clauses. Analyses are keyed
// by clause ID and may be incomplete; missing analyses only reduce
// stage-2 candidate selection.
func (d *Detector) Detect(ctx context.Context, doc *document.Document, clauses []document.Clause, analyses map[string]document.ClauseAnalysis) []document.RiskAlert {
	t := d.table.Load()
	drafts := map[string]*draft{}

	// Stage 1: deterministic pattern scan.
	borderline := map[string]bool{}
	for _, clause := range clauses {
		lower := strings.ToLower(clause.Text)
		for _, p := range t.patterns {
			if !p.appliesTo(doc.Type) || !p.matches(lower) {
				continue
			}
			dr := drafts[p.riskType]
			if dr == nil {
				dr = &draft{
					clauseIDs:      map[string]bool{},
					positions:      map[string]int{},
					severity:       document.RiskLow,
					description:    p.description,
					recommendation: p.recommendation,
				}
				drafts[p.riskType] = dr
			}
			dr.clauseIDs[clause.ID] = true
			dr.positions[clause.ID] = clause.Position
			dr.severity = document.MaxRiskLevel(dr.severity, p.severity)
			dr.fromPattern = true
			if p.severity != document.RiskHigh {
				borderline[clause.ID] = true
			}
		}
	}

	// Stage 2: classifier pass over borderline and analyzer-flagged
	// clauses. Classifier failures skip the clause; stage 1 results stand.
	if d.cls != nil {
		taxonomy := append(append([]string{}, t.riskTypes...), noRiskLabel)
		for _, clause := range clauses {
			highFromAnalysis := analyses[clause.ID].RiskLevel == document.RiskHigh
			if !borderline[clause.ID] && !highFromAnalysis {
				continue
			}
			label, err := d.cls.Classify(ctx, clause.Text, taxonomy)
			if err != nil {
				d.logger.Debug("risk classification skipped",
					zap.String("clause_id", clause.ID), zap.Error(err))
				continue
			}
			if label == noRiskLabel {
				continue
			}

			candidate := document.RiskMedium
			if highFromAnalysis {
				candidate = document.RiskHigh
			}
			dr := drafts[label]
			if dr == nil {
				dr = &draft{
					clauseIDs:   map[string]bool{},
					positions:   map[string]int{},
					severity:    document.RiskLow,
					description: fmt.Sprintf("Classified as %s risk.", strings.ReplaceAll(label, "_", " ")),
				}
				drafts[label] = dr
			}
			dr.clauseIDs[clause.ID] = true
			dr.positions[clause.ID] = clause.Position
			dr.severity = document.MaxRiskLevel(dr.severity, candidate)
			dr.fromClassifier = true
		}
	}

	return emit(doc.ID, drafts)
}

// emit converts drafts to alerts with deterministic IDs and ordering.
func emit(docID string, drafts map[string]*draft) []document.RiskAlert {
	now := time.Now().UTC()
	alerts := make([]document.RiskAlert, 0, len(drafts))
	for riskType, dr := range drafts {
		ids := make([]string, 0, len(dr.clauseIDs))
		for id := range dr.clauseIDs {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return dr.positions[ids[i]] < dr.positions[ids[j]] })

		alerts = append(alerts, document.RiskAlert{
			ID:             fmt.Sprintf("%s:risk:%s", docID, riskType),
			DocumentID:     docID,
			ClauseIDs:      ids,
			RiskType:       riskType,
			Severity:       dr.severity,
			Description:    dr.description,
			Recommendation: dr.recommendation,
			Source:         alertSource(dr),
			CreatedAt:      now,
		})
	}
	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].RiskType < alerts[j].RiskType
	})
	return alerts
}

func alertSource(dr *draft) string {
	switch {
	case dr.fromPattern && dr.fromClassifier:
		return "pattern+classifier"
	case dr.fromClassifier:
		return "classifier"
	default:
		return "pattern"
	}
}
