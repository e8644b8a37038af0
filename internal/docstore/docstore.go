// Package docstore persists documents, clauses, analyses, alerts, chunk
// records and Q&A history in an embedded Badger store.
//
// Reads after writes within a single document's records are strongly
// consistent; the pipeline relies on this when it re-reads state between
// stages. Q&A history is append-only.
package docstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/timshannon/badgerhold/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/clausewise/internal/document"
)

// Config holds store options.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps all data in RAM; used by tests and throwaway runs.
	InMemory bool
}

// Store wraps the badgerhold database.
type Store struct {
	db     *badgerhold.Store
	logger *zap.Logger
}

// Open opens (and creates if needed) the store.
func Open(cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	options := badgerhold.DefaultOptions
	options.Logger = nil
	if cfg.InMemory {
		options.InMemory = true
	} else {
		if cfg.Path == "" {
			return nil, errors.New("docstore: path required")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		options.Dir = cfg.Path
		options.ValueDir = cfg.Path
	}

	db, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	logger.Debug("document store opened", zap.String("path", cfg.Path), zap.Bool("in_memory", cfg.InMemory))
	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutDocument inserts or replaces a document record.
func (s *Store) PutDocument(doc *document.Document) error {
	doc.UpdatedAt = time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = doc.UpdatedAt
	}
	if err := s.db.Upsert(doc.ID, doc); err != nil {
		return fmt.Errorf("put document %s: %w", doc.ID, err)
	}
	return nil
}

// GetDocument fetches a document by ID.
func (s *Store) GetDocument(id string) (*document.Document, error) {
	var doc document.Document
	if err := s.db.Get(id, &doc); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("document %s: %w", id, document.ErrNotFound)
		}
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return &doc, nil
}

// UpdateDocumentState transitions the document's lifecycle state.
func (s *Store) UpdateDocumentState(id string, state document.State) error {
	doc, err := s.GetDocument(id)
	if err != nil {
		return err
	}
	doc.State = state
	return s.PutDocument(doc)
}

// BumpGeneration increments the document's version token and returns the
// new value. In-flight work holding the old token must discard its
// results.
func (s *Store) BumpGeneration(id string) (uint64, error) {
	doc, err := s.GetDocument(id)
	if err != nil {
		return 0, err
	}
	doc.Generation++
	if err := s.PutDocument(doc); err != nil {
		return 0, err
	}
	return doc.Generation, nil
}

// DeleteDocument removes only the document record itself; the cascade
// over dependent records is the pipeline's job.
func (s *Store) DeleteDocument(id string) error {
	if err := s.db.Delete(id, &document.Document{}); err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return nil
}

// ReplaceClauses atomically swaps the document's clause set. Re-running
// segmentation on unchanged text produces the same set, keeping
// processing idempotent.
func (s *Store) ReplaceClauses(docID string, clauses []document.Clause) error {
	if err := s.db.DeleteMatching(&document.Clause{}, badgerhold.Where("DocumentID").Eq(docID)); err != nil {
		return fmt.Errorf("clear clauses for %s: %w", docID, err)
	}
	for i := range clauses {
		if err := s.db.Upsert(clauses[i].ID, &clauses[i]); err != nil {
			return fmt.Errorf("put clause %s: %w", clauses[i].ID, err)
		}
	}
	return nil
}

// GetClauses returns the document's clauses ordered by position.
func (s *Store) GetClauses(docID string) ([]document.Clause, error) {
	var clauses []document.Clause
	err := s.db.Find(&clauses, badgerhold.Where("DocumentID").Eq(docID).SortBy("Position"))
	if err != nil {
		return nil, fmt.Errorf("get clauses for %s: %w", docID, err)
	}
	return clauses, nil
}

// PutAnalysis stores one clause analysis. Analyses are immutable: the key
// includes the version, so re-analysis writes a new record instead of
// mutating the old one.
func (s *Store) PutAnalysis(a *document.ClauseAnalysis) error {
	if a.ID == "" {
		a.ID = fmt.Sprintf("%s:v%d", a.ClauseID, a.Version)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if err := s.db.Upsert(a.ID, a); err != nil {
		return fmt.Errorf("put analysis %s: %w", a.ID, err)
	}
	return nil
}

// GetAnalyses returns the latest analysis version per clause, keyed by
// clause ID.
func (s *Store) GetAnalyses(docID string) (map[string]document.ClauseAnalysis, error) {
	var all []document.ClauseAnalysis
	err := s.db.Find(&all, badgerhold.Where("DocumentID").Eq(docID))
	if err != nil {
		return nil, fmt.Errorf("get analyses for %s: %w", docID, err)
	}
	latest := make(map[string]document.ClauseAnalysis, len(all))
	for _, a := range all {
		if cur, ok := latest[a.ClauseID]; !ok || a.Version > cur.Version {
			latest[a.ClauseID] = a
		}
	}
	return latest, nil
}

// ReplaceAlerts swaps the document's alert set.
func (s *Store) ReplaceAlerts(docID string, alerts []document.RiskAlert) error {
	if err := s.db.DeleteMatching(&document.RiskAlert{}, badgerhold.Where("DocumentID").Eq(docID)); err != nil {
		return fmt.Errorf("clear alerts for %s: %w", docID, err)
	}
	for i := range alerts {
		if err := s.db.Upsert(alerts[i].ID, &alerts[i]); err != nil {
			return fmt.Errorf("put alert %s: %w", alerts[i].ID, err)
		}
	}
	return nil
}

// GetAlerts returns the document's risk alerts.
func (s *Store) GetAlerts(docID string) ([]document.RiskAlert, error) {
	var alerts []document.RiskAlert
	err := s.db.Find(&alerts, badgerhold.Where("DocumentID").Eq(docID).SortBy("RiskType"))
	if err != nil {
		return nil, fmt.Errorf("get alerts for %s: %w", docID, err)
	}
	return alerts, nil
}

// PutChunks stores chunk records. The persisted record carries the
// Indexed flag so an embedding without a chunk record (or the reverse)
// is detectable as an index inconsistency.
func (s *Store) PutChunks(chunks []document.Chunk) error {
	for i := range chunks {
		if err := s.db.Upsert(chunks[i].ID, &chunks[i]); err != nil {
			return fmt.Errorf("put chunk %s: %w", chunks[i].ID, err)
		}
	}
	return nil
}

// GetChunks returns the document's chunk records ordered by clause
// position then sequence.
func (s *Store) GetChunks(docID string) ([]document.Chunk, error) {
	var chunks []document.Chunk
	err := s.db.Find(&chunks, badgerhold.Where("DocumentID").Eq(docID).SortBy("Position", "Seq"))
	if err != nil {
		return nil, fmt.Errorf("get chunks for %s: %w", docID, err)
	}
	return chunks, nil
}

// AppendAnswer stores one Q&A exchange. History is append-only; records
// are never modified.
func (s *Store) AppendAnswer(resp *document.AnswerResponse) error {
	if resp.ID == "" {
		resp.ID = fmt.Sprintf("%s:qa:%d", resp.DocumentID, time.Now().UTC().UnixNano())
	}
	if resp.CreatedAt.IsZero() {
		resp.CreatedAt = time.Now().UTC()
	}
	if err := s.db.Insert(resp.ID, resp); err != nil {
		return fmt.Errorf("append answer %s: %w", resp.ID, err)
	}
	return nil
}

// GetAnswers returns the document's Q&A history, oldest first.
func (s *Store) GetAnswers(docID string) ([]document.AnswerResponse, error) {
	var answers []document.AnswerResponse
	err := s.db.Find(&answers, badgerhold.Where("DocumentID").Eq(docID).SortBy("CreatedAt"))
	if err != nil {
		return nil, fmt.Errorf("get answers for %s: %w", docID, err)
	}
	return answers, nil
}

// DeleteDerived removes every record derived from the document: clauses,
// analyses, alerts, chunk records and Q&A history. The document record
// itself survives so the delete saga can record its terminal state.
func (s *Store) DeleteDerived(docID string) error {
	q := badgerhold.Where("DocumentID").Eq(docID)
	var errs []error
	for _, target := range []interface{}{
		&document.Clause{},
		&document.ClauseAnalysis{},
		&document.RiskAlert{},
		&document.Chunk{},
		&document.AnswerResponse{},
	} {
		if err := s.db.DeleteMatching(target, q); err != nil {
			errs = append(errs, fmt.Errorf("delete %T for %s: %w", target, docID, err))
		}
	}
	return errors.Join(errs...)
}
