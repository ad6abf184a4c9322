// Package httpapi exposes extraction and analysis over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikey/llm-phish-detector/internal/core"
	"go.uber.org/zap"
)

// Analyzer scores extracted records
type Analyzer interface {
	Analyze(ctx context.Context, record *core.EmailRecord) (*core.AnalysisResult, error)
	IsPhishing(result *core.AnalysisResult) bool
}

// Config holds the HTTP server settings
type Config struct {
	ListenAddress   string
	MaxMessageBytes int64
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// SetDefaults fills zero values
func (c *Config) SetDefaults() {
	if c.ListenAddress == "" {
		c.ListenAddress = "0.0.0.0:8080"
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 25 * 1024 * 1024
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 120 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// MetricsCollector records per-request metrics and serves them
type MetricsCollector interface {
	ObserveHTTPRequest(method, route string, status int, elapsed time.Duration)
	Handler() http.Handler
}

// ServerOption customizes a Server
type ServerOption func(*serverOptions)

type serverOptions struct {
	metrics MetricsCollector
}

// WithMetrics instruments every request and exposes GET /metrics
func WithMetrics(m MetricsCollector) ServerOption {
	return func(o *serverOptions) {
		o.metrics = m
	}
}

// Server represents the HTTP API with lifecycle management
type Server struct {
	router *gin.Engine
	server *http.Server
	logger *zap.Logger
	config Config
}

// NewServer creates the HTTP API server with its routes registered
func NewServer(
	cfg Config,
	extractor core.RecordExtractor,
	analyzer Analyzer,
	logger *zap.Logger,
	opts ...ServerOption,
) *Server {
	cfg.SetDefaults()

	var options serverOptions
	for _, opt := range opts {
		opt(&options)
	}

	router := gin.New()
	router.Use(RecoveryMiddleware(logger))
	router.Use(LoggerMiddleware(logger))
	if options.metrics != nil {
		router.Use(MetricsMiddleware(options.metrics))
		router.GET("/metrics", gin.WrapH(options.metrics.Handler()))
	}

	h := NewHandler(extractor, analyzer, cfg.MaxMessageBytes, logger)
	h.Register(router)

	return &Server{
		router: router,
		server: &http.Server{
			Addr:         cfg.ListenAddress,
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		logger: logger,
		config: cfg,
	}
}

// Router returns the underlying Gin engine
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start binds the listener and serves in the background
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}

	s.logger.Info("Starting HTTP server",
		zap.String("address", s.server.Addr),
		zap.Duration("read_timeout", s.server.ReadTimeout),
		zap.Duration("write_timeout", s.server.WriteTimeout))

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the server with the configured timeout
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.logger.Info("HTTP server stopped gracefully")
	return nil
}
