// Package api exposes reconciliation and saved reports over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/internal/parsers"
	"bank-reconciliation-service/internal/reporter"
	"bank-reconciliation-service/internal/storage"
	"bank-reconciliation-service/pkg/logger"
)

// Config holds API server configuration
type Config struct {
	Port           int      `json:"port" mapstructure:"port" yaml:"port"`
	AllowedOrigins []string `json:"allowed_origins" mapstructure:"allowed_origins" yaml:"allowed_origins"`
	// MaxUploadMB bounds the size of a multipart reconcile request
	MaxUploadMB  int           `json:"max_upload_mb" mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
	ReadTimeout  time.Duration `json:"read_timeout" mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" mapstructure:"write_timeout" yaml:"write_timeout"`
}

// DefaultConfig returns sensible defaults for the API server
func DefaultConfig() Config {
	return Config{
		Port:           8080,
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		MaxUploadMB:    32,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
	}
}

// Validate checks the server configuration
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535: %d", c.Port)
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("max upload size must be positive: %d", c.MaxUploadMB)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("timeouts cannot be negative")
	}
	return nil
}

// Reconciler runs a reconciliation over two uploaded CSV streams
type Reconciler interface {
	ReconcileReaders(ctx context.Context, bank, internal parsers.Source) (*models.ReconciliationReport, error)
}

// Server is the HTTP API server
type Server struct {
	config       Config
	router       chi.Router
	httpServer   *http.Server
	logger       logger.Logger
	reconciler   Reconciler
	repo         storage.Repository
	reportConfig reporter.ReportConfig
}

// NewServer creates a new API server. reportConfig supplies the section
// and CSV settings used by the export endpoints; nil uses the defaults.
func NewServer(
	cfg Config,
	rec Reconciler,
	repo storage.Repository,
	reportConfig *reporter.ReportConfig,
	log logger.Logger,
) *Server {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	if reportConfig == nil {
		reportConfig = reporter.DefaultReportConfig()
	}

	s := &Server{
		config:       cfg,
		router:       chi.NewRouter(),
		logger:       log.WithComponent("api"),
		reconciler:   rec,
		repo:         repo,
		reportConfig: *reportConfig,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(recoverer(s.logger))

	c := cors.New(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
	})
	s.router.Use(c.Handler)
}

func (s *Server) setupRoutes() {
	// no /api prefix, for load balancers
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/reconcile", s.handleReconcile)
		r.Post("/export", s.handleExportPosted)

		r.Route("/reports", func(r chi.Router) {
			r.Post("/", s.handleSaveReport)
			r.Get("/", s.handleListReports)
			r.Get("/{id}", s.handleGetReport)
			r.Get("/{id}/export", s.handleExportSaved)
		})
	})
}

// Start listens on the configured port until Shutdown is called
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Router returns the chi router, mainly for tests
func (s *Server) Router() chi.Router {
	return s.router
}
