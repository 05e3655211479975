// Package httpapi serves the tool operations, health and metrics over HTTP.
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/deepwiki/internal/infra/rpc/gate"
	"github.com/vietddude/deepwiki/internal/infra/rpc/provider"
	"github.com/vietddude/deepwiki/internal/lifecycle"
	"github.com/vietddude/deepwiki/internal/tools"
)

// Tools is the tool service the API exposes.
type Tools interface {
	Query(ctx context.Context, in tools.QueryInput, progress chan<- lifecycle.Progress) tools.Result
	GetResult(ctx context.Context, id string, includeMermaid bool) tools.Result
	RepoStatus(ctx context.Context, repo string) tools.Result
	SearchRepos(ctx context.Context, term string) tools.Result
	WarmRepo(ctx context.Context, repo string) tools.Result
}

// HealthSource reports the state of the remote connection.
type HealthSource interface {
	Health() provider.HealthStatus
	GateStats() gate.Stats
}

// Config configures the HTTP server.
type Config struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Server provides the HTTP API.
type Server struct {
	tools  Tools
	health HealthSource
	log    *slog.Logger
	router chi.Router
	server *http.Server
}

// NewServer creates a new API server.
func NewServer(cfg Config, t Tools, health HealthSource, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		tools:  t,
		health: health,
		log:    log,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.handleHealth)
	r.Get("/health/detailed", s.handleDetailed)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/query", s.handleQuery)
		r.Get("/query/{id}", s.handleGetResult)
		r.Get("/repos", s.handleSearchRepos)
		r.Get("/repos/{owner}/{name}/status", s.handleRepoStatus)
		r.Post("/repos/{owner}/{name}/warm", s.handleWarmRepo)
	})

	s.router = r
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// SetBaseContext derives every request context from ctx, so cancelling ctx aborts
// handlers still running after a graceful shutdown gives up. Call before serving.
func (s *Server) SetBaseContext(ctx context.Context) {
	s.server.BaseContext = func(net.Listener) context.Context { return ctx }
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Start starts the HTTP server. It returns http.ErrServerClosed after Stop.
func (s *Server) Start() error {
	s.log.Info("HTTP API listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Serve serves on an existing listener.
func (s *Server) Serve(l net.Listener) error {
	return s.server.Serve(l)
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
