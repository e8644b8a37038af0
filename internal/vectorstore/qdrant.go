package vectorstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Tracer for OpenTelemetry instrumentation.
var qdrantTracer = otel.Tracer("clausewise.vectorstore.qdrant")

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	// Default: "localhost"
	Host string

	// Port is the Qdrant gRPC port (NOT the HTTP REST port).
	// Default: 6334
	Port int

	// VectorSize is the dimensionality of embeddings.
	// MUST match the embedder's output dimension.
	// Default: 384 (BAAI/bge-small-en-v1.5)
	VectorSize uint64

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB
	MaxMessageSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// QdrantStore implements Store using Qdrant's native gRPC client.
// One Qdrant collection per document, created lazily on first upsert.
type QdrantStore struct {
	client   *qdrant.Client
	embedder Embedder
	config   QdrantConfig
	logger   *zap.Logger
}

// NewQdrantStore creates a store backed by an external Qdrant server and
// verifies connectivity with a health check.
func NewQdrantStore(config QdrantConfig, embedder Embedder, logger *zap.Logger) (*QdrantStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &QdrantStore{
		client:   client,
		embedder: embedder,
		config:   config,
		logger:   logger.Named("qdrant"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}

	return store, nil
}

// pointIDFor derives a stable UUID point ID from a chunk ID, so repeated
// upserts of the same chunk replace the point.
func pointIDFor(chunkID string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String())
}

// UpsertChunks embeds and upserts chunks into the document's collection.
func (s *QdrantStore) UpsertChunks(ctx context.Context, docID string, chunks []ChunkRecord) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.UpsertChunks")
	defer span.End()

	if len(chunks) == 0 {
		return ErrEmptyChunks
	}

	collectionName := CollectionForDocument(docID)
	span.SetAttributes(
		attribute.String("collection", collectionName),
		attribute.Int("chunk_count", len(chunks)),
	)

	if err := s.ensureCollection(ctx, collectionName); err != nil {
		span.RecordError(err)
		return err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	embeddings, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, c := range chunks {
		payload := map[string]*qdrant.Value{
			"chunk_id":    {Kind: &qdrant.Value_StringValue{StringValue: c.ID}},
			"document_id": {Kind: &qdrant.Value_StringValue{StringValue: docID}},
			"clause_id":   {Kind: &qdrant.Value_StringValue{StringValue: c.ClauseID}},
			"position":    {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(c.Position)}},
			"seq":         {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(c.Seq)}},
			"content":     {Kind: &qdrant.Value_StringValue{StringValue: c.Text}},
		}
		points[i] = &qdrant.PointStruct{
			Id:      pointIDFor(c.ID),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: payload,
		}
	}

	if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collectionName,
		Points:         points,
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting points to collection %s: %w", collectionName, err)
	}

	UpsertsTotal.WithLabelValues("qdrant").Add(float64(len(chunks)))
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Search performs similarity search scoped to the document.
func (s *QdrantStore) Search(ctx context.Context, docID string, query string, k int) ([]SearchResult, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Search")
	defer span.End()

	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	collectionName := CollectionForDocument(docID)
	span.SetAttributes(attribute.String("collection", collectionName), attribute.Int("k", k))

	exists, err := s.client.CollectionExists(ctx, collectionName)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("checking collection %s: %w", collectionName, err)
	}
	if !exists {
		return []SearchResult{}, nil
	}

	queryVector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collectionName,
		Query:          qdrant.NewQuery(queryVector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", collectionName, err)
	}

	results := make([]SearchResult, 0, len(points))
	for _, p := range points {
		r := SearchResult{Score: p.Score}
		if v, ok := p.Payload["chunk_id"]; ok {
			r.ChunkID = v.GetStringValue()
		}
		if v, ok := p.Payload["clause_id"]; ok {
			r.ClauseID = v.GetStringValue()
		}
		if v, ok := p.Payload["position"]; ok {
			r.Position = int(v.GetIntegerValue())
		}
		if v, ok := p.Payload["seq"]; ok {
			r.Seq = int(v.GetIntegerValue())
		}
		if v, ok := p.Payload["content"]; ok {
			r.Content = v.GetStringValue()
		}
		results = append(results, r)
	}

	SearchesTotal.WithLabelValues("qdrant").Inc()
	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// CountByDocument reports the number of chunk vectors for the document.
func (s *QdrantStore) CountByDocument(ctx context.Context, docID string) (int, error) {
	collectionName := CollectionForDocument(docID)

	exists, err := s.client.CollectionExists(ctx, collectionName)
	if err != nil {
		return 0, fmt.Errorf("checking collection %s: %w", collectionName, err)
	}
	if !exists {
		return 0, nil
	}

	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collectionName,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("counting collection %s: %w", collectionName, err)
	}
	return int(count), nil
}

// DeleteByDocument drops the document's collection.
func (s *QdrantStore) DeleteByDocument(ctx context.Context, docID string) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.DeleteByDocument")
	defer span.End()

	collectionName := CollectionForDocument(docID)
	span.SetAttributes(attribute.String("collection", collectionName))

	exists, err := s.client.CollectionExists(ctx, collectionName)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("checking collection %s: %w", collectionName, err)
	}
	if !exists {
		return nil
	}

	if err := s.client.DeleteCollection(ctx, collectionName); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting collection %s: %w", collectionName, err)
	}

	DeletesTotal.WithLabelValues("qdrant").Inc()
	return nil
}

// ensureCollection creates the collection if it does not exist yet.
func (s *QdrantStore) ensureCollection(ctx context.Context, collectionName string) error {
	exists, err := s.client.CollectionExists(ctx, collectionName)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", collectionName, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.config.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		// Concurrent creation races are benign; re-check before failing.
		if again, checkErr := s.client.CollectionExists(ctx, collectionName); checkErr == nil && again {
			return nil
		}
		return fmt.Errorf("creating collection %s: %w", collectionName, err)
	}

	s.logger.Debug("created collection", zap.String("collection", collectionName))
	return nil
}

// Close closes the Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
