// Package llm wraps external text-generation and classification services
// behind narrow contracts with bounded timeouts, a fixed retry/backoff
// policy and an outbound rate limit. The pipeline's correctness never
// depends on a specific service; tests use deterministic fakes.
package llm
