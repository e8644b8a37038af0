package vectorstore

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/clausewise/internal/config"
)

// NewStore creates a Store based on the configuration.
//
// The factory examines VectorStoreConfig.Provider:
//   - "chromem" (default): embedded ChromemStore, no external services
//   - "qdrant": external Qdrant server over gRPC
func NewStore(cfg *config.Config, embedder Embedder, logger *zap.Logger) (Store, error) {
	switch cfg.VectorStore.Provider {
	case "chromem", "":
		return NewChromemStore(ChromemConfig{
			Path:     cfg.VectorStore.Chromem.Path,
			Compress: cfg.VectorStore.Chromem.Compress,
		}, embedder, logger)

	case "qdrant":
		return NewQdrantStore(QdrantConfig{
			Host:       cfg.VectorStore.Qdrant.Host,
			Port:       cfg.VectorStore.Qdrant.Port,
			UseTLS:     cfg.VectorStore.Qdrant.UseTLS,
			VectorSize: uint64(cfg.Embedding.VectorSize),
		}, embedder, logger)

	default:
		return nil, fmt.Errorf("unsupported vectorstore provider: %s (supported: chromem, qdrant)", cfg.VectorStore.Provider)
	}
}
