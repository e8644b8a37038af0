// Package pipeline orchestrates document processing and retrieval.
//
// ProcessDocument runs segment -> (analyze || chunk+index) -> risk ->
// summary with bounded worker pools; failures degrade the smallest unit
// possible (one clause, one chunk) instead of the document. Ask answers
// questions against the already-built index and may run while indexing
// for the same document is still in flight, simply seeing a partial
// index. DeleteDocument is an explicit saga with a persisted
// delete-in-progress marker and a generation token that suppresses late
// writes from in-flight work.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/clausewise/internal/chunker"
	"github.com/fyrsmithlabs/clausewise/internal/docstore"
	"github.com/fyrsmithlabs/clausewise/internal/document"
	"github.com/fyrsmithlabs/clausewise/internal/events"
	"github.com/fyrsmithlabs/clausewise/internal/segmenter"
	"github.com/fyrsmithlabs/clausewise/internal/summary"
	"github.com/fyrsmithlabs/clausewise/internal/vectorstore"
)

// indexBatchSize bounds chunks per upsert call so one failing batch
// leaves the rest of the document indexed.
const indexBatchSize = 16

// ClauseAnalyzer produces analyses; it degrades internally and never
// returns an error.
type ClauseAnalyzer interface {
	Analyze(ctx context.Context, clause document.Clause, docType document.Type) document.ClauseAnalysis
}

// TypeDetector classifies document text into a document type.
type TypeDetector interface {
	Detect(ctx context.Context, text string) document.Type
}

// RiskDetector emits alerts for a document's clauses.
type RiskDetector interface {
	Detect(ctx context.Context, doc *document.Document, clauses []document.Clause, analyses map[string]document.ClauseAnalysis) []document.RiskAlert
}

// ContextRetriever returns ranked context for a query.
type ContextRetriever interface {
	Retrieve(ctx context.Context, docID, query string, k int) ([]document.RetrievedContext, error)
}

// AnswerGenerator synthesizes grounded answers.
type AnswerGenerator interface {
	Answer(ctx context.Context, docID, question string, contexts []document.RetrievedContext) (*document.AnswerResponse, error)
}

// Config holds pipeline tunables.
type Config struct {
	// ClauseWorkers bounds concurrent analysis calls per document.
	ClauseWorkers int
	// IndexWorkers bounds concurrent embedding upserts per document.
	IndexWorkers int
	// EmbedRetries is how many times a failed chunk batch is retried.
	EmbedRetries int
	// EmbedBackoff is the initial retry delay, doubled per attempt.
	EmbedBackoff time.Duration
}

func (c *Config) applyDefaults() {
	if c.ClauseWorkers <= 0 {
		c.ClauseWorkers = 4
	}
	if c.IndexWorkers <= 0 {
		c.IndexWorkers = 4
	}
	if c.EmbedRetries < 0 {
		c.EmbedRetries = 0
	}
	if c.EmbedBackoff <= 0 {
		c.EmbedBackoff = 500 * time.Millisecond
	}
}

// Pipeline wires the processing stages together.
type Pipeline struct {
	cfg      Config
	store    *docstore.Store
	vectors  vectorstore.Store
	seg      *segmenter.Segmenter
	chk      *chunker.Chunker
	analyzer ClauseAnalyzer
	detector TypeDetector
	risk     RiskDetector
	retr     ContextRetriever
	answerer AnswerGenerator
	sum      *summary.Builder
	events   *events.Publisher
	logger   *zap.Logger
}

// Deps collects the pipeline's collaborators.
type Deps struct {
	Store    *docstore.Store
	Vectors  vectorstore.Store
	Seg      *segmenter.Segmenter
	Chk      *chunker.Chunker
	Analyzer ClauseAnalyzer
	Detector TypeDetector // optional
	Risk     RiskDetector
	Retr     ContextRetriever
	Answerer AnswerGenerator
	Events   *events.Publisher // optional
	Logger   *zap.Logger
}

// New creates a Pipeline.
func New(cfg Config, deps Deps) *Pipeline {
	cfg.applyDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		cfg:      cfg,
		store:    deps.Store,
		vectors:  deps.Vectors,
		seg:      deps.Seg,
		chk:      deps.Chk,
		analyzer: deps.Analyzer,
		detector: deps.Detector,
		risk:     deps.Risk,
		retr:     deps.Retr,
		answerer: deps.Answerer,
		sum:      summary.New(),
		events:   deps.Events,
		logger:   logger,
	}
}

// ProcessDocument runs the full pipeline over the document text and
// returns its summary. Re-running on unchanged text is idempotent:
// deterministic clause and chunk IDs make every persist an in-place
// replace. Passing empty text re-processes the stored text.
func (p *Pipeline) ProcessDocument(ctx context.Context, docID, text string) (*document.DocumentSummary, error) {
	start := time.Now()

	doc, err := p.prepareDocument(docID, text)
	if err != nil {
		return nil, err
	}
	gen := doc.Generation
	log := p.logger.With(zap.String("document_id", docID))

	if doc.Type == document.TypeUnknown && p.detector != nil {
		doc.Type = p.detector.Detect(ctx, doc.Text)
	}

	clauses := p.seg.Segment(docID, doc.Text)
	if len(clauses) == 0 {
		documentsProcessed.WithLabelValues("empty").Inc()
		return nil, fmt.Errorf("document %s has no content to process", docID)
	}
	if err := p.guard(docID, gen); err != nil {
		return nil, err
	}
	if err := p.store.ReplaceClauses(docID, clauses); err != nil {
		return nil, err
	}
	doc.State = document.StateSegmented
	if err := p.store.PutDocument(doc); err != nil {
		return nil, err
	}
	log.Info("document segmented",
		zap.String("type", string(doc.Type)), zap.Int("clauses", len(clauses)))

	// Analysis and indexing run concurrently; both degrade per unit and
	// never fail the run.
	analyses := make([]document.ClauseAnalysis, len(clauses))
	chunks := p.chk.ChunkAll(clauses)

	var outer errgroup.Group
	outer.Go(func() error {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.cfg.ClauseWorkers)
		for i, clause := range clauses {
			g.Go(func() error {
				a := p.analyzer.Analyze(gctx, clause, doc.Type)
				a.DocumentID = docID
				a.Position = clause.Position
				a.Version = gen + 1
				// Workers complete out of order; slot i keeps position order.
				analyses[i] = a
				if a.Degraded {
					clausesAnalyzed.WithLabelValues("degraded").Inc()
				} else {
					clausesAnalyzed.WithLabelValues("ok").Inc()
				}
				return nil
			})
		}
		return g.Wait()
	})
	outer.Go(func() error {
		p.indexChunks(ctx, docID, gen, chunks)
		return nil
	})
	_ = outer.Wait()

	analysesByClause := make(map[string]document.ClauseAnalysis, len(analyses))
	for _, a := range analyses {
		analysesByClause[a.ClauseID] = a
	}
	alerts := p.risk.Detect(ctx, doc, clauses, analysesByClause)

	// A clause's analysis risk-level must be at least the severity of any
	// alert referencing it; alerts raise the analysis, never the reverse.
	escalateToAlerts(analyses, analysesByClause, alerts)

	// Total-outage rule: every clause degraded and nothing indexed means
	// no upstream call succeeded across the whole run.
	if allDegraded(analyses) && indexedCount(chunks) == 0 {
		_ = p.store.UpdateDocumentState(docID, document.StateFailed)
		documentsProcessed.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("processing document %s: %w", docID, document.ErrUpstreamUnavailable)
	}

	// Guarded persist: a deletion (or re-ingest) that bumped the token
	// while we worked means our results are stale and must be discarded.
	if err := p.guard(docID, gen); err != nil {
		return nil, err
	}
	for i := range analyses {
		if err := p.store.PutAnalysis(&analyses[i]); err != nil {
			return nil, err
		}
	}
	if err := p.store.ReplaceAlerts(docID, alerts); err != nil {
		return nil, err
	}
	doc.State = document.StateAnalyzed
	if err := p.store.PutDocument(doc); err != nil {
		return nil, err
	}
	if err := p.store.PutChunks(chunks); err != nil {
		return nil, err
	}
	doc.State = document.StateIndexed
	if err := p.store.PutDocument(doc); err != nil {
		return nil, err
	}
	doc.State = document.StateReady
	if err := p.store.PutDocument(doc); err != nil {
		return nil, err
	}

	s := p.sum.Build(doc, clauses, analysesByClause, alerts, chunks)

	p.events.DocumentProcessed(events.DocumentProcessedEvent{
		DocumentID:  docID,
		Type:        doc.Type,
		State:       doc.State,
		RiskPosture: s.RiskPosture,
		ClauseCount: s.ClauseCount,
		AlertCount:  s.AlertCount,
	})
	for _, alert := range alerts {
		p.events.RiskAlertRaised(events.RiskAlertEvent{
			DocumentID: docID,
			AlertID:    alert.ID,
			RiskType:   alert.RiskType,
			Severity:   alert.Severity,
			ClauseIDs:  alert.ClauseIDs,
		})
	}

	documentsProcessed.WithLabelValues("ok").Inc()
	processingDuration.Observe(time.Since(start).Seconds())
	log.Info("document processed",
		zap.String("risk_posture", string(s.RiskPosture)),
		zap.Int("alerts", len(alerts)),
		zap.Int("degraded", s.DegradedCount),
		zap.Int("unindexed", s.UnindexedCount),
		zap.Duration("took", time.Since(start)))
	return s, nil
}

// prepareDocument loads or creates the document record and re-ingests
// changed text. Changed text bumps the generation token so stale in-flight
// work is discarded.
func (p *Pipeline) prepareDocument(docID, text string) (*document.Document, error) {
	doc, err := p.store.GetDocument(docID)
	switch {
	case errors.Is(err, document.ErrNotFound):
		if text == "" {
			return nil, err
		}
		doc = &document.Document{
			ID:    docID,
			Text:  text,
			Type:  document.TypeUnknown,
			State: document.StateIngested,
		}
	case err != nil:
		return nil, err
	default:
		if doc.State == document.StateDeleting {
			return nil, fmt.Errorf("document %s: %w", docID, document.ErrDocumentDeleting)
		}
		if text != "" && text != doc.Text {
			doc.Text = text
			doc.Type = document.TypeUnknown
			doc.State = document.StateIngested
			doc.Generation++
		}
	}
	if err := p.store.PutDocument(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// guard verifies the generation token is still current. It returns
// ErrDocumentDeleting when the document was deleted or re-ingested since
// the token was read; the caller must discard its results.
func (p *Pipeline) guard(docID string, gen uint64) error {
	doc, err := p.store.GetDocument(docID)
	if err != nil {
		return err
	}
	if doc.State == document.StateDeleting || doc.Generation != gen {
		return fmt.Errorf("document %s: %w", docID, document.ErrDocumentDeleting)
	}
	return nil
}

// indexChunks embeds and upserts chunks in bounded parallel batches,
// retrying failed batches with backoff. Exhausted retries mark the batch
// unindexed; recall drops but the document proceeds.
func (p *Pipeline) indexChunks(ctx context.Context, docID string, gen uint64, chunks []document.Chunk) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.IndexWorkers)

	for lo := 0; lo < len(chunks); lo += indexBatchSize {
		hi := min(lo+indexBatchSize, len(chunks))
		batch := chunks[lo:hi]
		g.Go(func() error {
			records := make([]vectorstore.ChunkRecord, len(batch))
			for i, c := range batch {
				records[i] = vectorstore.ChunkRecord{
					ID:       c.ID,
					ClauseID: c.ClauseID,
					Position: c.Position,
					Seq:      c.Seq,
					Text:     c.Text,
				}
			}

			backoff := p.cfg.EmbedBackoff
			for attempt := 0; attempt <= p.cfg.EmbedRetries; attempt++ {
				if attempt > 0 {
					select {
					case <-gctx.Done():
						return nil
					case <-time.After(backoff):
					}
					backoff *= 2
				}
				// A delete may have bumped the token mid-run; writing now
				// would resurrect vectors the saga already removed.
				if err := p.guard(docID, gen); err != nil {
					return nil
				}
				if err := p.vectors.UpsertChunks(gctx, docID, records); err != nil {
					p.logger.Warn("chunk batch upsert failed",
						zap.String("document_id", docID),
						zap.Int("attempt", attempt+1),
						zap.Error(err))
					continue
				}
				for i := range batch {
					batch[i].Indexed = true
				}
				chunksIndexed.WithLabelValues("ok").Add(float64(len(batch)))
				return nil
			}
			chunksIndexed.WithLabelValues("failed").Add(float64(len(batch)))
			return nil
		})
	}
	_ = g.Wait()
}

// Ask retrieves context and synthesizes a grounded answer, appending it
// to the document's Q&A history. A question racing in-flight indexing
// sees a partial index, which weakens recall but is not an error.
func (p *Pipeline) Ask(ctx context.Context, docID, question string) (*document.AnswerResponse, error) {
	doc, err := p.store.GetDocument(docID)
	if err != nil {
		return nil, err
	}
	if doc.State == document.StateDeleting {
		return nil, fmt.Errorf("document %s: %w", docID, document.ErrDocumentDeleting)
	}

	contexts, err := p.retr.Retrieve(ctx, docID, question, 0)
	if err != nil {
		questionsAnswered.WithLabelValues("error").Inc()
		return nil, err
	}
	resp, err := p.answerer.Answer(ctx, docID, question, contexts)
	if err != nil {
		questionsAnswered.WithLabelValues("error").Inc()
		return nil, err
	}
	if err := p.store.AppendAnswer(resp); err != nil {
		return nil, err
	}

	switch {
	case resp.Unanswerable:
		questionsAnswered.WithLabelValues("unanswerable").Inc()
	case resp.Limitation != "":
		questionsAnswered.WithLabelValues("limited").Inc()
	default:
		questionsAnswered.WithLabelValues("ok").Inc()
	}
	return resp, nil
}

// DeleteDocument runs the cascade delete saga: mark deleting, bump the
// generation token to cancel in-flight work, drop vectors, drop derived
// records, then remove the document. Any residue marks the document
// delete_failed and returns ErrCascadeDeleteIncomplete; callers retry
// until success. Deleting a missing document succeeds.
func (p *Pipeline) DeleteDocument(ctx context.Context, docID string) error {
	doc, err := p.store.GetDocument(docID)
	if errors.Is(err, document.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	doc.State = document.StateDeleting
	doc.Generation++
	if err := p.store.PutDocument(doc); err != nil {
		return err
	}

	if err := p.vectors.DeleteByDocument(ctx, docID); err != nil {
		return p.deleteFailed(docID, fmt.Errorf("delete vectors: %v: %w", err, document.ErrCascadeDeleteIncomplete))
	}
	remaining, err := p.vectors.CountByDocument(ctx, docID)
	if err == nil && remaining > 0 {
		return p.deleteFailed(docID, fmt.Errorf("%d vectors remain after delete: %w", remaining, document.ErrCascadeDeleteIncomplete))
	}
	if err := p.store.DeleteDerived(docID); err != nil {
		return p.deleteFailed(docID, fmt.Errorf("delete records: %v: %w", err, document.ErrCascadeDeleteIncomplete))
	}

	if err := p.store.UpdateDocumentState(docID, document.StateDeleted); err != nil {
		return err
	}
	if err := p.store.DeleteDocument(docID); err != nil {
		return err
	}

	p.events.DocumentDeleted(events.DocumentDeletedEvent{
		DocumentID: docID,
		State:      document.StateDeleted,
	})
	documentDeletes.WithLabelValues("ok").Inc()
	p.logger.Info("document deleted", zap.String("document_id", docID))
	return nil
}

func (p *Pipeline) deleteFailed(docID string, cause error) error {
	if err := p.store.UpdateDocumentState(docID, document.StateDeleteFailed); err != nil {
		p.logger.Error("failed to record delete_failed state",
			zap.String("document_id", docID), zap.Error(err))
	}
	p.events.DocumentDeleted(events.DocumentDeletedEvent{
		DocumentID: docID,
		State:      document.StateDeleteFailed,
	})
	documentDeletes.WithLabelValues("failed").Inc()
	return fmt.Errorf("document %s: %w", docID, cause)
}

// Summary rebuilds the document summary from current persisted state.
func (p *Pipeline) Summary(ctx context.Context, docID string) (*document.DocumentSummary, error) {
	doc, err := p.store.GetDocument(docID)
	if err != nil {
		return nil, err
	}
	clauses, err := p.store.GetClauses(docID)
	if err != nil {
		return nil, err
	}
	analyses, err := p.store.GetAnalyses(docID)
	if err != nil {
		return nil, err
	}
	alerts, err := p.store.GetAlerts(docID)
	if err != nil {
		return nil, err
	}
	chunks, err := p.store.GetChunks(docID)
	if err != nil {
		return nil, err
	}
	// Every chunk record marked indexed must have a vector behind it.
	// Fewer vectors than indexed records means the index lost data; more
	// can happen while an in-flight run races the persist and is fine.
	if vecs, cerr := p.vectors.CountByDocument(ctx, docID); cerr == nil {
		if indexed := indexedCount(chunks); vecs < indexed {
			return nil, fmt.Errorf("document %s: %d vectors for %d indexed chunks: %w",
				docID, vecs, indexed, document.ErrIndexInconsistent)
		}
	}
	return p.sum.Build(doc, clauses, analyses, alerts, chunks), nil
}

// History returns the document's append-only Q&A history.
func (p *Pipeline) History(ctx context.Context, docID string) ([]document.AnswerResponse, error) {
	if _, err := p.store.GetDocument(docID); err != nil {
		return nil, err
	}
	return p.store.GetAnswers(docID)
}

// escalateToAlerts raises each analysis risk-level to the maximum severity
// of the alerts referencing its clause, updating byClause in step.
func escalateToAlerts(analyses []document.ClauseAnalysis, byClause map[string]document.ClauseAnalysis, alerts []document.RiskAlert) {
	sevByClause := make(map[string]document.Severity)
	for _, alert := range alerts {
		for _, cid := range alert.ClauseIDs {
			if cur, ok := sevByClause[cid]; ok {
				sevByClause[cid] = document.MaxRiskLevel(cur, alert.Severity)
			} else {
				sevByClause[cid] = alert.Severity
			}
		}
	}
	for i := range analyses {
		sev, ok := sevByClause[analyses[i].ClauseID]
		if !ok {
			continue
		}
		analyses[i].RiskLevel = document.MaxRiskLevel(analyses[i].RiskLevel, sev)
		byClause[analyses[i].ClauseID] = analyses[i]
	}
}

func allDegraded(analyses []document.ClauseAnalysis) bool {
	for _, a := range analyses {
		if !a.Degraded {
			return false
		}
	}
	return len(analyses) > 0
}

func indexedCount(chunks []document.Chunk) int {
	n := 0
	for _, c := range chunks {
		if c.Indexed {
			n++
		}
	}
	return n
}
