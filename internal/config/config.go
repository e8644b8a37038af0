// Package config provides configuration loading for clausewise.
//
// Configuration is loaded from a YAML file and overridden by environment
// variables. Every section carries defaults that produce a working local
// setup (embedded chromem store, local fastembed models).
package config

import (
	"fmt"
	"time"
)

// Config holds the complete clausewise configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
	Store       StoreConfig       `koanf:"store"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Embedding   EmbeddingConfig   `koanf:"embedding"`
	LLM         LLMConfig         `koanf:"llm"`
	Pipeline    PipelineConfig    `koanf:"pipeline"`
	Risk        RiskConfig        `koanf:"risk"`
	Events      EventsConfig      `koanf:"events"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig controls zap construction. See internal/logging.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // trace, debug, info, warn, error
	Format string `koanf:"format"` // json or console
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled      bool   `koanf:"enabled"`
	ServiceName  string `koanf:"service_name"`
	OTLPEndpoint string `koanf:"otlp_endpoint"`
}

// StoreConfig holds badger document store settings.
type StoreConfig struct {
	// Path is the badger database directory.
	Path string `koanf:"path"`
	// InMemory runs badger without persistence. Testing only.
	InMemory bool `koanf:"in_memory"`
}

// VectorStoreConfig selects and configures the vector index.
type VectorStoreConfig struct {
	// Provider is "chromem" (embedded, default) or "qdrant".
	Provider string        `koanf:"provider"`
	Chromem  ChromemConfig `koanf:"chromem"`
	Qdrant   QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig configures the embedded chromem-go store.
type ChromemConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// QdrantConfig configures the external Qdrant gRPC client.
type QdrantConfig struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	UseTLS bool   `koanf:"use_tls"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is "fastembed" (local ONNX, default) or "tei"
	// (HTTP server, also covers openai-compatible endpoints).
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   Secret `koanf:"api_key"`
	CacheDir string `koanf:"cache_dir"`
	// VectorSize must match the model's output dimension.
	VectorSize int      `koanf:"vector_size"`
	Timeout    Duration `koanf:"timeout"`
}

// LLMConfig configures text generation and classification calls.
type LLMConfig struct {
	BaseURL    string   `koanf:"base_url"`
	Model      string   `koanf:"model"`
	APIKey     Secret   `koanf:"api_key"`
	Timeout    Duration `koanf:"timeout"`
	MaxRetries int      `koanf:"max_retries"`
	// RatePerSecond caps outbound generation/classification calls.
	RatePerSecond float64 `koanf:"rate_per_second"`
	RateBurst     int     `koanf:"rate_burst"`
}

// PipelineConfig holds pipeline tunables.
type PipelineConfig struct {
	// ClauseWorkers bounds concurrent clause analysis per document.
	ClauseWorkers int `koanf:"clause_workers"`
	// IndexWorkers bounds concurrent embedding upserts per document.
	IndexWorkers int `koanf:"index_workers"`

	// MaxClauseLength triggers sentence-boundary fallback segmentation for
	// unstructured stretches longer than this many runes.
	MaxClauseLength int `koanf:"max_clause_length"`

	// ChunkSize is the target chunk size in runes; ChunkOverlap is the
	// overlap carried across chunk boundaries.
	ChunkSize    int `koanf:"chunk_size"`
	ChunkOverlap int `koanf:"chunk_overlap"`

	// TopK is the default retrieval result count.
	TopK int `koanf:"top_k"`
	// SimilarityFloor excludes chunks below this score even within top-k.
	SimilarityFloor float64 `koanf:"similarity_floor"`
	// ConfidenceThreshold forces the limitation note below this value.
	ConfidenceThreshold float64 `koanf:"confidence_threshold"`

	// MaxExplanationLength bounds generated explanations; longer output is
	// treated as runaway generation and degraded.
	MaxExplanationLength int `koanf:"max_explanation_length"`

	// EmbedRetries is how many times a failed embedding batch is retried;
	// EmbedBackoff is the initial retry delay, doubled per attempt.
	EmbedRetries int      `koanf:"embed_retries"`
	EmbedBackoff Duration `koanf:"embed_backoff"`
}

// RiskConfig configures the risk detector.
type RiskConfig struct {
	// PatternsPath optionally overrides the embedded pattern tables with a
	// YAML file. The file is watched and hot-reloaded on change.
	PatternsPath string `koanf:"patterns_path"`
}

// EventsConfig configures the NATS event publisher.
type EventsConfig struct {
	// URL of the NATS server. Empty disables event publishing.
	URL string `koanf:"url"`
	// SubjectPrefix prefixes all published subjects. Default "clausewise".
	SubjectPrefix string `koanf:"subject_prefix"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 9180
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "clausewise"
	}
	if c.Telemetry.OTLPEndpoint == "" {
		c.Telemetry.OTLPEndpoint = "localhost:4317"
	}
	if c.Store.Path == "" {
		c.Store.Path = "~/.local/share/clausewise/store"
	}
	if c.VectorStore.Provider == "" {
		c.VectorStore.Provider = "chromem"
	}
	if c.VectorStore.Chromem.Path == "" {
		c.VectorStore.Chromem.Path = "~/.local/share/clausewise/vectorstore"
	}
	if c.VectorStore.Qdrant.Host == "" {
		c.VectorStore.Qdrant.Host = "localhost"
	}
	if c.VectorStore.Qdrant.Port == 0 {
		c.VectorStore.Qdrant.Port = 6334
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "fastembed"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "BAAI/bge-small-en-v1.5"
	}
	if c.Embedding.VectorSize == 0 {
		c.Embedding.VectorSize = 384
	}
	if c.Embedding.Timeout == 0 {
		c.Embedding.Timeout = Duration(30 * time.Second)
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "http://localhost:11434/v1"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "llama3.1"
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = Duration(60 * time.Second)
	}
	if c.LLM.MaxRetries == 0 {
		c.LLM.MaxRetries = 2
	}
	if c.LLM.RatePerSecond == 0 {
		c.LLM.RatePerSecond = 5
	}
	if c.LLM.RateBurst == 0 {
		c.LLM.RateBurst = 10
	}
	if c.Pipeline.ClauseWorkers == 0 {
		c.Pipeline.ClauseWorkers = 4
	}
	if c.Pipeline.IndexWorkers == 0 {
		c.Pipeline.IndexWorkers = 4
	}
	if c.Pipeline.MaxClauseLength == 0 {
		c.Pipeline.MaxClauseLength = 1200
	}
	if c.Pipeline.ChunkSize == 0 {
		c.Pipeline.ChunkSize = 480
	}
	if c.Pipeline.ChunkOverlap == 0 {
		c.Pipeline.ChunkOverlap = 80
	}
	if c.Pipeline.TopK == 0 {
		c.Pipeline.TopK = 5
	}
	if c.Pipeline.SimilarityFloor == 0 {
		c.Pipeline.SimilarityFloor = 0.35
	}
	if c.Pipeline.ConfidenceThreshold == 0 {
		c.Pipeline.ConfidenceThreshold = 0.4
	}
	if c.Pipeline.MaxExplanationLength == 0 {
		c.Pipeline.MaxExplanationLength = 2000
	}
	if c.Pipeline.EmbedRetries == 0 {
		c.Pipeline.EmbedRetries = 3
	}
	if c.Pipeline.EmbedBackoff == 0 {
		c.Pipeline.EmbedBackoff = Duration(500 * time.Millisecond)
	}
	if c.Events.SubjectPrefix == "" {
		c.Events.SubjectPrefix = "clausewise"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging format: %s", c.Logging.Format)
	}
	switch c.VectorStore.Provider {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("unsupported vectorstore provider: %s (supported: chromem, qdrant)", c.VectorStore.Provider)
	}
	switch c.Embedding.Provider {
	case "fastembed", "tei":
	default:
		return fmt.Errorf("unsupported embedding provider: %s (supported: fastembed, tei)", c.Embedding.Provider)
	}
	if c.Embedding.Provider == "tei" && c.Embedding.BaseURL == "" {
		return fmt.Errorf("embedding.base_url required for tei provider")
	}
	if c.Pipeline.ChunkOverlap >= c.Pipeline.ChunkSize {
		return fmt.Errorf("chunk_overlap (%d) must be smaller than chunk_size (%d)",
			c.Pipeline.ChunkOverlap, c.Pipeline.ChunkSize)
	}
	if c.Pipeline.SimilarityFloor < 0 || c.Pipeline.SimilarityFloor > 1 {
		return fmt.Errorf("similarity_floor must be in [0,1]: %f", c.Pipeline.SimilarityFloor)
	}
	if c.Pipeline.ConfidenceThreshold < 0 || c.Pipeline.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be in [0,1]: %f", c.Pipeline.ConfidenceThreshold)
	}
	return nil
}
