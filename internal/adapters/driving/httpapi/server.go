// Package httpapi exposes the retrieval core over a small JSON HTTP API.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DanielTromp/atlas/internal/core/domain"
	"github.com/DanielTromp/atlas/internal/core/ports/driving"
	"github.com/DanielTromp/atlas/internal/logger"
)

// Errors returned by NewServer.
var (
	ErrMissingSearchService = errors.New("httpapi: search service is required")
	ErrMissingIndexService  = errors.New("httpapi: index service is required")
	ErrMissingSyncEngine    = errors.New("httpapi: sync engine is required")
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Ports aggregates the driving ports behind the API.
type Ports struct {
	Search driving.SearchService
	Index  driving.IndexService
	Sync   driving.SyncEngine

	// SearchDefaults fill in request fields the caller omits.
	SearchDefaults domain.SearchOptions
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	switch {
	case p.Search == nil:
		return ErrMissingSearchService
	case p.Index == nil:
		return ErrMissingIndexService
	case p.Sync == nil:
		return ErrMissingSyncEngine
	}
	return nil
}

// Server serves the JSON API.
type Server struct {
	ports  *Ports
	router *chi.Mux
}

// NewServer creates the API server and its routes.
func NewServer(ports *Ports) (*Server, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("validating ports: %w", err)
	}
	if ports.SearchDefaults.TopK == 0 {
		ports.SearchDefaults = domain.DefaultSearchOptions()
	}

	s := &Server{ports: ports, router: chi.NewRouter()}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Post("/search", s.handleSearch)
	r.Post("/sync", s.handleSync)
	r.Get("/stats", s.handleStats)
	r.Get("/spaces", s.handleSpaces)
	r.Get("/page/{id}", s.handlePage)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown when context is cancelled
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	logger.Info("HTTP API listening on %s", addr)
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// requestLogger logs one debug line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.L().Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
