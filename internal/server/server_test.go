package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/clausewise/internal/document"
)

// fakeService is a canned-response pipeline.
type fakeService struct {
	summary   *document.DocumentSummary
	answer    *document.AnswerResponse
	history   []document.AnswerResponse
	err       error
	deleteErr error
	lastDocID string
	lastText  string
}

func (f *fakeService) ProcessDocument(_ context.Context, docID, text string) (*document.DocumentSummary, error) {
	f.lastDocID, f.lastText = docID, text
	return f.summary, f.err
}

func (f *fakeService) Ask(_ context.Context, docID, question string) (*document.AnswerResponse, error) {
	f.lastDocID = docID
	return f.answer, f.err
}

func (f *fakeService) DeleteDocument(_ context.Context, docID string) error {
	f.lastDocID = docID
	return f.deleteErr
}

func (f *fakeService) Summary(_ context.Context, docID string) (*document.DocumentSummary, error) {
	f.lastDocID = docID
	return f.summary, f.err
}

func (f *fakeService) History(_ context.Context, docID string) ([]document.AnswerResponse, error) {
	f.lastDocID = docID
	return f.history, f.err
}

func setupTestServer(t *testing.T, svc Service) *Server {
	t.Helper()
	srv, err := NewServer(svc, zap.NewNop(), nil)
	require.NoError(t, err)
	return srv
}

func TestNewServer(t *testing.T) {
	t.Run("creates server with valid config", func(t *testing.T) {
		cfg := &Config{Host: "localhost", Port: 9180}
		srv, err := NewServer(&fakeService{}, zap.NewNop(), cfg)
		require.NoError(t, err)
		assert.NotNil(t, srv)
		assert.Equal(t, cfg, srv.config)
	})

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		srv, err := NewServer(&fakeService{}, zap.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost", srv.config.Host)
		assert.Equal(t, 9180, srv.config.Port)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(&fakeService{}, nil, nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when service is nil", func(t *testing.T) {
		_, err := NewServer(nil, zap.NewNop(), nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "service cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	srv := setupTestServer(t, &fakeService{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestHandleProcess(t *testing.T) {
	svc := &fakeService{summary: &document.DocumentSummary{
		DocumentID: "doc-a", Type: document.TypeRental,
		RiskPosture: document.RiskMedium, ClauseCount: 3,
	}}
	srv := setupTestServer(t, svc)

	body, _ := json.Marshal(ProcessRequest{ID: "doc-a", Text: "1. Rent is due monthly."})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "doc-a", svc.lastDocID)
	var got document.DocumentSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, document.RiskMedium, got.RiskPosture)
	assert.Equal(t, 3, got.ClauseCount)
}

func TestHandleProcessRequiresID(t *testing.T) {
	srv := setupTestServer(t, &fakeService{})

	body, _ := json.Marshal(ProcessRequest{Text: "text only"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAsk(t *testing.T) {
	svc := &fakeService{answer: &document.AnswerResponse{
		DocumentID: "doc-a", Question: "What happens if I pay late?",
		Answer: "A 5% late fee applies.", Confidence: 0.8,
		Citations: []document.Citation{{ChunkID: "doc-a:0001:00", ClauseID: "doc-a:c0001"}},
	}}
	srv := setupTestServer(t, svc)

	body, _ := json.Marshal(AskRequest{Question: "What happens if I pay late?"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/doc-a/ask", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got document.AnswerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.False(t, got.Unanswerable)
	require.Len(t, got.Citations, 1)
}

func TestHandleAskRequiresQuestion(t *testing.T) {
	srv := setupTestServer(t, &fakeService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/doc-a/ask", bytes.NewReader([]byte(`{}`)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleHistoryEmptyIsArray(t *testing.T) {
	srv := setupTestServer(t, &fakeService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/doc-a/history", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestHandleDelete(t *testing.T) {
	svc := &fakeService{}
	srv := setupTestServer(t, svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/documents/doc-a", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "doc-a", svc.lastDocID)
	var resp DeleteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Deleted)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"not found", document.ErrNotFound, http.StatusNotFound},
		{"deleting", document.ErrDocumentDeleting, http.StatusConflict},
		{"cascade incomplete", document.ErrCascadeDeleteIncomplete, http.StatusBadGateway},
		{"upstream unavailable", document.ErrUpstreamUnavailable, http.StatusBadGateway},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeService{err: fmt.Errorf("wrapped: %w", tc.err)}
			srv := setupTestServer(t, svc)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/doc-a/summary", nil)
			rec := httptest.NewRecorder()
			srv.echo.ServeHTTP(rec, req)

			assert.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := setupTestServer(t, &fakeService{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
