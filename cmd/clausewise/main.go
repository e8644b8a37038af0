// Clausewise is a legal document analysis daemon with an HTTP API.
//
// This binary starts the clausewise server with full pipeline initialization,
// including the document store, vector index, embeddings, and optional NATS
// event publishing.
//
// Configuration is loaded from a YAML file with environment variable
// overrides. See internal/config for details.
//
// Usage:
//
//	# Start server with defaults
//	clausewise
//
//	# Configure via environment
//	SERVER_PORT=9090 LLM_BASE_URL=http://localhost:8000/v1 clausewise
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/clausewise/internal/analyzer"
	"github.com/fyrsmithlabs/clausewise/internal/answer"
	"github.com/fyrsmithlabs/clausewise/internal/chunker"
	"github.com/fyrsmithlabs/clausewise/internal/config"
	"github.com/fyrsmithlabs/clausewise/internal/docstore"
	"github.com/fyrsmithlabs/clausewise/internal/embeddings"
	"github.com/fyrsmithlabs/clausewise/internal/events"
	"github.com/fyrsmithlabs/clausewise/internal/llm"
	"github.com/fyrsmithlabs/clausewise/internal/logging"
	"github.com/fyrsmithlabs/clausewise/internal/pipeline"
	"github.com/fyrsmithlabs/clausewise/internal/retriever"
	"github.com/fyrsmithlabs/clausewise/internal/risk"
	"github.com/fyrsmithlabs/clausewise/internal/segmenter"
	"github.com/fyrsmithlabs/clausewise/internal/server"
	"github.com/fyrsmithlabs/clausewise/internal/telemetry"
	"github.com/fyrsmithlabs/clausewise/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.config/clausewise/config.yaml)")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  clausewise           Start the clausewise daemon\n")
			fmt.Fprintf(os.Stderr, "  clausewise version   Show version information\n")
			os.Exit(1)
		}
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("clausewise by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the clausewise server and blocks until the context is cancelled.
//
// Initialization order matters: configuration, logger, telemetry, then the
// storage and model clients the pipeline depends on, then the pipeline itself
// and the HTTP surface on top of it.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("Starting clausewise",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout.Duration()))

	tel, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Insecure:       true,
		SampleRate:     1.0,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	deps, err := initDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	logger.Info("Dependencies initialized",
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.Bool("events_connected", deps.publisher != nil))

	pipe, err := initPipeline(ctx, cfg, deps, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	srv, err := server.NewServer(pipe, logger, &server.Config{Port: cfg.Server.Port})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("Server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
		zap.String("api_prefix", "/api/v1"),
		zap.String("metrics_endpoint", "/metrics"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// dependencies holds all infrastructure dependencies.
type dependencies struct {
	store     *docstore.Store
	embedder  embeddings.Provider
	vectors   vectorstore.Store
	publisher *events.Publisher
	logger    *zap.Logger
}

// Close releases all infrastructure resources.
func (d *dependencies) Close() {
	if d.publisher != nil {
		d.publisher.Close()
	}
	if d.vectors != nil {
		_ = d.vectors.Close()
	}
	if d.embedder != nil {
		_ = d.embedder.Close()
	}
	if d.store != nil {
		_ = d.store.Close()
	}
}

// initDependencies opens the document store, the vector index with its
// embedder, and the optional event publisher.
func initDependencies(cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	store, err := docstore.Open(docstore.Config{
		Path:     cfg.Store.Path,
		InMemory: cfg.Store.InMemory,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open document store: %w", err)
	}

	embedder, err := embeddings.NewProvider(cfg.Embedding, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}

	vectors, err := vectorstore.NewStore(cfg, embedder, logger)
	if err != nil {
		_ = embedder.Close()
		_ = store.Close()
		return nil, fmt.Errorf("failed to create vector store: %w", err)
	}

	publisher, err := events.Connect(events.Config{
		URL:           cfg.Events.URL,
		SubjectPrefix: cfg.Events.SubjectPrefix,
	}, logger)
	if err != nil {
		// Events are advisory. A missing broker should not keep the
		// daemon from serving.
		logger.Warn("event publishing disabled", zap.Error(err))
		publisher = nil
	}

	return &dependencies{
		store:     store,
		embedder:  embedder,
		vectors:   vectors,
		publisher: publisher,
		logger:    logger,
	}, nil
}

// initPipeline wires the analysis stages to the model client and returns the
// assembled pipeline.
func initPipeline(ctx context.Context, cfg *config.Config, deps *dependencies, logger *zap.Logger) (*pipeline.Pipeline, error) {
	client, err := llm.NewClient(cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}

	detector, err := risk.New(client, risk.Config{
		PatternsPath: cfg.Risk.PatternsPath,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create risk detector: %w", err)
	}
	if cfg.Risk.PatternsPath != "" {
		go func() {
			if err := detector.Watch(ctx); err != nil {
				logger.Warn("pattern watcher stopped", zap.Error(err))
			}
		}()
	}

	return pipeline.New(pipeline.Config{
		ClauseWorkers: cfg.Pipeline.ClauseWorkers,
		IndexWorkers:  cfg.Pipeline.IndexWorkers,
		EmbedRetries:  cfg.Pipeline.EmbedRetries,
		EmbedBackoff:  cfg.Pipeline.EmbedBackoff.Duration(),
	}, pipeline.Deps{
		Store: deps.store,
		Vectors: deps.vectors,
		Seg: segmenter.New(segmenter.Config{
			MaxClauseLength: cfg.Pipeline.MaxClauseLength,
		}),
		Chk: chunker.New(chunker.Config{
			ChunkSize:    cfg.Pipeline.ChunkSize,
			ChunkOverlap: cfg.Pipeline.ChunkOverlap,
		}),
		Analyzer: analyzer.New(client, analyzer.Config{
			MaxExplanationLength: cfg.Pipeline.MaxExplanationLength,
		}, logger),
		Detector: analyzer.NewTypeDetector(client, logger),
		Risk:     detector,
		Retr: retriever.New(deps.vectors, retriever.Config{
			TopK:            cfg.Pipeline.TopK,
			SimilarityFloor: cfg.Pipeline.SimilarityFloor,
		}, logger),
		Answerer: answer.New(client, answer.Config{
			ConfidenceThreshold: cfg.Pipeline.ConfidenceThreshold,
		}, logger),
		Events: deps.publisher,
		Logger: logger,
	}), nil
}
