// Package server provides the HTTP API for clausewise.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/clausewise/internal/document"
	"github.com/fyrsmithlabs/clausewise/internal/retriever"
)

// Service is the pipeline surface the HTTP layer depends on.
type Service interface {
	ProcessDocument(ctx context.Context, docID, text string) (*document.DocumentSummary, error)
	Ask(ctx context.Context, docID, question string) (*document.AnswerResponse, error)
	DeleteDocument(ctx context.Context, docID string) error
	Summary(ctx context.Context, docID string) (*document.DocumentSummary, error)
	History(ctx context.Context, docID string) ([]document.AnswerResponse, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server exposes the pipeline over HTTP.
type Server struct {
	echo    *echo.Echo
	service Service
	logger  *zap.Logger
	config  *Config
}

// NewServer creates the HTTP server.
func NewServer(service Service, logger *zap.Logger, cfg *Config) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9180,
		}
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:    e,
		service: service,
		logger:  logger,
		config:  cfg,
	}

	// Register routes
	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	// Health check and metrics
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// API v1 routes
	v1 := s.echo.Group("/api/v1")
	v1.POST("/documents", s.handleProcess)
	v1.GET("/documents/:id/summary", s.handleSummary)
	v1.POST("/documents/:id/ask", s.handleAsk)
	v1.GET("/documents/:id/history", s.handleHistory)
	v1.DELETE("/documents/:id", s.handleDelete)
}

// ProcessRequest is the request body for POST /api/v1/documents.
type ProcessRequest struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// AskRequest is the request body for POST /api/v1/documents/:id/ask.
type AskRequest struct {
	Question string `json:"question"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// DeleteResponse is the response body for DELETE /api/v1/documents/:id.
type DeleteResponse struct {
	DocumentID string `json:"document_id"`
	Deleted    bool   `json:"deleted"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleProcess ingests document text and runs the full pipeline.
func (s *Server) handleProcess(c echo.Context) error {
	var req ProcessRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid process request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "id field is required")
	}

	summary, err := s.service.ProcessDocument(c.Request().Context(), req.ID, req.Text)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

// handleSummary rebuilds the document summary from current state.
func (s *Server) handleSummary(c echo.Context) error {
	summary, err := s.service.Summary(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

// handleAsk answers a question against the document's index.
func (s *Server) handleAsk(c echo.Context) error {
	var req AskRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid ask request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question field is required")
	}

	resp, err := s.service.Ask(c.Request().Context(), c.Param("id"), req.Question)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

// handleHistory returns the document's Q&A history.
func (s *Server) handleHistory(c echo.Context) error {
	history, err := s.service.History(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.mapError(err)
	}
	if history == nil {
		history = []document.AnswerResponse{}
	}
	return c.JSON(http.StatusOK, history)
}

// handleDelete runs the cascade delete saga. A partial failure returns
// 502 and the caller retries until success.
func (s *Server) handleDelete(c echo.Context) error {
	docID := c.Param("id")
	if err := s.service.DeleteDocument(c.Request().Context(), docID); err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, DeleteResponse{DocumentID: docID, Deleted: true})
}

// mapError translates pipeline errors to HTTP status codes.
func (s *Server) mapError(err error) error {
	switch {
	case errors.Is(err, document.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, document.ErrDocumentDeleting):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, retriever.ErrEmptyQuery):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, document.ErrCascadeDeleteIncomplete),
		errors.Is(err, document.ErrUpstreamUnavailable),
		errors.Is(err, document.ErrUpstreamDegraded):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
