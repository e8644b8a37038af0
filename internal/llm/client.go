package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/clausewise/internal/config"
	"github.com/fyrsmithlabs/clausewise/internal/document"
)

// ErrEmptyPrompt indicates an empty prompt.
var ErrEmptyPrompt = errors.New("empty prompt")

// Client implements Generator and Classifier against any openai-compatible
// chat completion endpoint (OpenAI, OpenRouter, Ollama, vLLM).
type Client struct {
	model      llms.Model
	timeout    time.Duration
	maxRetries int
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates a client from config.
func NewClient(cfg config.LLMConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []openai.Option{
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Model),
	}
	if cfg.APIKey.IsSet() {
		opts = append(opts, openai.WithToken(cfg.APIKey.Value()))
	} else {
		// langchaingo requires a token even for keyless local endpoints.
		opts = append(opts, openai.WithToken("unused"))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating openai client: %w", err)
	}

	return &Client{
		model:      model,
		timeout:    cfg.Timeout.Duration(),
		maxRetries: cfg.MaxRetries,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst),
		logger:     logger.Named("llm"),
	}, nil
}

// Complete generates text for the prompt, retrying transient failures with
// exponential backoff. Timeouts are treated identically to call failure.
func (c *Client) Complete(ctx context.Context, prompt string, cons Constraints) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}

	var out string
	err := c.withRetry(ctx, "complete", func(callCtx context.Context) error {
		callOpts := []llms.CallOption{
			llms.WithTemperature(cons.Temperature),
		}
		if cons.MaxTokens > 0 {
			callOpts = append(callOpts, llms.WithMaxTokens(cons.MaxTokens))
		}

		resp, err := c.model.GenerateContent(callCtx,
			[]llms.MessageContent{
				llms.TextParts(llms.ChatMessageTypeHuman, prompt),
			},
			callOpts...,
		)
		if err != nil {
			return fmt.Errorf("%w: %v", document.ErrUpstreamUnavailable, err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("%w: no choices returned", document.ErrUpstreamDegraded)
		}
		out = resp.Choices[0].Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

// Classify asks the model to pick exactly one taxonomy label. The response
// is validated against the taxonomy; anything else is a degraded upstream.
func (c *Client) Classify(ctx context.Context, text string, taxonomy []string) (string, error) {
	if len(taxonomy) == 0 {
		return "", fmt.Errorf("%w: empty taxonomy", document.ErrUpstreamDegraded)
	}

	prompt := fmt.Sprintf(
		"Classify the following text into exactly one of these categories: %s.\n"+
			"Respond with the category name only, nothing else.\n\nText:\n%s",
		strings.Join(taxonomy, ", "), text)

	raw, err := c.Complete(ctx, prompt, Constraints{MaxTokens: 16})
	if err != nil {
		return "", err
	}

	label := strings.ToLower(strings.TrimSpace(raw))
	for _, t := range taxonomy {
		if label == strings.ToLower(t) {
			return t, nil
		}
	}
	// Tolerate labels embedded in a short sentence.
	for _, t := range taxonomy {
		if strings.Contains(label, strings.ToLower(t)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: classifier returned %q, not in taxonomy", document.ErrUpstreamDegraded, label)
}

// withRetry runs fn under the rate limiter and call timeout, retrying
// unavailable upstream errors up to maxRetries with doubling backoff.
// Degraded output is not retried here; the caller owns that policy.
func (c *Client) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	backoff := 500 * time.Millisecond
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %v", document.ErrUpstreamUnavailable, err)
		}

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if !errors.Is(err, document.ErrUpstreamUnavailable) {
			return err
		}

		c.logger.Warn("upstream call failed",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)

		if attempt == c.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", document.ErrUpstreamUnavailable, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return lastErr
}
