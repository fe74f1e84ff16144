// Package server exposes the query pipeline over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/queryscope/queryscope/internal/database"
	"github.com/queryscope/queryscope/internal/pipeline"
)

// QueryService is the slice of the pipeline the handlers call.
type QueryService interface {
	Handle(ctx context.Context, cfg database.Descriptor, question string) (*pipeline.QueryResponse, error)
	TestConnection(ctx context.Context, cfg database.Descriptor) error
}

// Options configure the HTTP listener.
type Options struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server wraps the http.Server so main can start it and shut it down
// gracefully.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// New builds a Server with the full route table and middleware stack.
func New(svc QueryService, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		httpServer: &http.Server{
			Addr:         opts.Addr,
			Handler:      NewRouter(svc, logger),
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
		},
		logger: logger,
	}
}

// NewRouter assembles the routes. Split from New so tests can drive the
// handler directly through httptest.
func NewRouter(svc QueryService, logger *zap.Logger) http.Handler {
	h := &handlers{svc: svc, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(metricsMiddleware)

	r.Post("/api/query", h.handleQuery)
	r.Post("/api/test-connection", h.handleTestConnection)
	r.Get("/api/health", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Start blocks serving requests until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
