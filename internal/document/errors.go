package document

import "errors"

// Sentinel errors shared across pipeline components.
var (
	// ErrUpstreamUnavailable indicates an external AI service was down or
	// timed out. Timeouts are treated identically to call failure.
	ErrUpstreamUnavailable = errors.New("upstream service unavailable")

	// ErrUpstreamDegraded indicates the service responded but its output
	// failed validation (empty, runaway length, unparseable).
	ErrUpstreamDegraded = errors.New("upstream output failed validation")

	// ErrIndexInconsistent indicates an embedding exists without a
	// persisted chunk record or vice versa. Operator-visible fault; never
	// surfaced as a successful response.
	ErrIndexInconsistent = errors.New("vector index inconsistent with records")

	// ErrCascadeDeleteIncomplete indicates a document deletion left
	// residue behind. The document is marked delete_failed for operator
	// follow-up and the caller must retry.
	ErrCascadeDeleteIncomplete = errors.New("cascade delete incomplete")

	// ErrNotFound indicates a document or record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDocumentDeleting indicates the document is being deleted and no
	// new work may start against it.
	ErrDocumentDeleting = errors.New("document is being deleted")
)
