// Package server exposes the segment pipeline over HTTP.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/kyleking/segmentsql/internal/auth"
	"github.com/kyleking/segmentsql/internal/config"
	"github.com/kyleking/segmentsql/internal/engine"
	"github.com/kyleking/segmentsql/internal/logging"
	"github.com/kyleking/segmentsql/internal/schema"
	"github.com/kyleking/segmentsql/internal/segment"
)

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 5 * time.Second
)

// Pipeline is the subset of segment.Service the API serves
type Pipeline interface {
	Generate(ctx context.Context, req segment.GenerateRequest) (*segment.Result, error)
	Validate(ctx context.Context, req segment.ValidateRequest) (*segment.ValidateResult, error)
	Preview(ctx context.Context, req segment.PreviewRequest) (*engine.PreviewResult, error)
	Schemas(ctx context.Context) ([]string, error)
	Schema(ctx context.Context, id string) (*schema.Definition, error)
}

// Server is the HTTP API
type Server struct {
	pipeline Pipeline
	keys     auth.Store
	logger   *logging.Logger
	cfg      config.ServerConfig
}

// New creates an API server. keys is consulted for every /api request.
func New(pipeline Pipeline, keys auth.Store, logger *logging.Logger, cfg config.ServerConfig) *Server {
	if logger == nil {
		logger = logging.GetLogger()
	}

	return &Server{
		pipeline: pipeline,
		keys:     keys,
		logger:   logger,
		cfg:      cfg,
	}
}

// Routes builds the router
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		requestID,
		s.requestLogger,
		s.recoverer,
		middleware.Compress(5, "application/json"),
	)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authenticate)

		r.Post("/generate", s.handleGenerate)
		r.Post("/validate", s.handleValidate)
		r.Post("/preview", s.handlePreview)
		r.Get("/schemas", s.handleListSchemas)
		r.Get("/schemas/{id}", s.handleGetSchema)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErrorKind(w, http.StatusNotFound, "not_found", "no route for "+r.Method+" "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeErrorKind(w, http.StatusMethodNotAllowed, "validation", "method not allowed: "+r.Method)
	})

	return r
}

// ListenAndServe listens on the configured address and serves until ctx ends
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}

	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down gracefully
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       config.Duration(s.cfg.ReadTimeout, 30*time.Second),
		WriteTimeout:      config.Duration(s.cfg.WriteTimeout, 90*time.Second),
		BaseContext: func(net.Listener) context.Context {
			return egctx
		},
	}

	s.logger.WithField("addr", ln.Addr().String()).Info("API server listening")

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		s.logger.Debug("shutting down API server")

		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
