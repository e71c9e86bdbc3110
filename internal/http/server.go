// Package http serves the read-only governance surface: audit queries,
// the constitution, and Prometheus metrics.
package http

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

	"github.com/fyrsmithlabs/designgov/internal/audit"
	"github.com/fyrsmithlabs/designgov/internal/config"
	"github.com/fyrsmithlabs/designgov/internal/constitution"
	"github.com/fyrsmithlabs/designgov/internal/logging"
	"github.com/fyrsmithlabs/designgov/internal/toolcatalog"
)

// Server provides HTTP endpoints for designgov.
type Server struct {
	echo     *echo.Echo
	store    *audit.Store
	logger   *logging.Logger
	config   *Config
	limiters *ipLimiters
	metrics  *HTTPMetrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// RequestsPerSecond and Burst size the per-client token bucket.
	// Zero RequestsPerSecond disables throttling.
	RequestsPerSecond float64
	Burst             int
}

// ConfigFrom converts the loaded server section.
func ConfigFrom(s config.ServerConfig) *Config {
	return &Config{
		Host:              s.Host,
		Port:              s.Port,
		RequestsPerSecond: s.RequestsPerSecond,
		Burst:             s.Burst,
	}
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics replaces the request instruments.
func WithMetrics(m *HTTPMetrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates a new HTTP server over store.
func NewServer(store *audit.Store, logger *logging.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if store == nil {
		return nil, errors.New("audit store cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: config.DefaultHTTPPort,
		}
	}

	s := &Server{
		echo:   echo.New(),
		store:  store,
		logger: logger,
		config: cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewHTTPMetrics(logger)
	}
	if cfg.RequestsPerSecond > 0 {
		s.limiters = newIPLimiters(cfg.RequestsPerSecond, cfg.Burst)
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger)
	e.Use(s.metrics.MetricsMiddleware())
	if s.limiters != nil {
		e.Use(s.throttle)
	}

	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/audit", s.handleAudit)
	v1.GET("/constitution", s.handleConstitution)
	v1.GET("/tools", s.handleTools)
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		requestID := c.Response().Header().Get(echo.HeaderXRequestID)
		ctx := logging.WithRequestID(c.Request().Context(), requestID)
		c.SetRequest(c.Request().WithContext(ctx))

		err := next(c)
		if err != nil {
			c.Error(err)
		}

		s.logger.Info(ctx, "http request",
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return nil
	}
}

// Handler exposes the router, mainly for tests and embedding.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:       "ok",
		AuditEntries: s.store.Len(),
		SinkErrors:   s.store.SinkErrors(),
	})
}

func (s *Server) handleAudit(c echo.Context) error {
	f := audit.Filter{
		AgentID:   c.QueryParam("agent_id"),
		SessionID: c.QueryParam("session_id"),
		Tool:      c.QueryParam("tool"),
	}
	entries := s.store.Query(f)
	s.logger.Debug(c.Request().Context(), "audit query",
		zap.String("agent_id", f.AgentID),
		zap.String("session_id", f.SessionID),
		zap.String("tool", f.Tool),
		zap.Int("matches", len(entries)))

	return c.JSON(http.StatusOK, AuditResponse{Entries: entries, Count: len(entries)})
}

func (s *Server) handleConstitution(c echo.Context) error {
	return c.JSON(http.StatusOK, ConstitutionResponse{
		Rules:       constitution.Rules(),
		Escalations: constitution.Escalations(),
	})
}

func (s *Server) handleTools(c echo.Context) error {
	return c.JSON(http.StatusOK, toolcatalog.Entries())
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// Start starts the HTTP server. It blocks until the server stops.
func (s *Server) Start() error {
	addr := s.Addr()
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
