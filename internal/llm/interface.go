package llm

import (
	"context"
)

// Constraints bounds a single generation call.
type Constraints struct {
	// MaxTokens caps the response length. Zero means provider default.
	MaxTokens int
	// Temperature controls sampling; clause analysis uses 0 for
	// repeatable structure.
	Temperature float64
}

// Generator produces text from a prompt. Implementations must honor the
// context deadline; exceeding it is reported as an unavailable upstream.
type Generator interface {
	// Complete generates text for the prompt under the given constraints.
	Complete(ctx context.Context, prompt string, c Constraints) (string, error)
}

// Classifier assigns one label from a closed taxonomy to a text.
type Classifier interface {
	// Classify returns the best-fitting label from taxonomy, or an error
	// if the upstream is unavailable or produced no usable label.
	Classify(ctx context.Context, text string, taxonomy []string) (string, error)
}
