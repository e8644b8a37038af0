// Package document defines the core domain model for clausewise:
// documents, clauses, analyses, risk alerts, chunks, answers and the
// error taxonomy shared across the pipeline.
package document
