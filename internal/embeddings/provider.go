// Package embeddings provides embedding generation via multiple providers.
package embeddings

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/clausewise/internal/config"
	"github.com/fyrsmithlabs/clausewise/internal/vectorstore"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Provider is the interface for embedding providers.
type Provider interface {
	vectorstore.Embedder
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// NewProvider creates an embedding provider based on the configuration.
//
//   - "fastembed" (default): local ONNX models, no external service
//   - "tei": HTTP embedding server (TEI or any /embed-compatible endpoint)
func NewProvider(cfg config.EmbeddingConfig, logger *zap.Logger) (Provider, error) {
	switch cfg.Provider {
	case "fastembed", "":
		return NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	case "tei":
		svc, err := NewService(Config{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey.Value(),
			Timeout: cfg.Timeout.Duration(),
		}, logger)
		if err != nil {
			return nil, err
		}
		return &teiProvider{Service: svc, dimension: cfg.VectorSize}, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// teiProvider wraps Service to implement the Provider interface.
type teiProvider struct {
	*Service
	dimension int
}

// Dimension returns the embedding dimension based on the configured model.
func (t *teiProvider) Dimension() int {
	return t.dimension
}

// Close is a no-op for TEI since it uses HTTP.
func (t *teiProvider) Close() error {
	return nil
}
