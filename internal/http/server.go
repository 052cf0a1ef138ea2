// Package http provides the HTTP server exposing the ingestion and
// administrative API.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"

	auditHTTP "github.com/allisson/auditpipe/internal/audit/http"
	"github.com/allisson/auditpipe/internal/config"
	dlqHTTP "github.com/allisson/auditpipe/internal/dlq/http"
	"github.com/allisson/auditpipe/internal/metrics"
	sheddingHTTP "github.com/allisson/auditpipe/internal/shedding/http"
)

// Handlers groups the feature handlers mounted on the API server.
type Handlers struct {
	Event    *auditHTTP.EventHandler
	Pipeline *auditHTTP.PipelineHandler
	Dlq      *dlqHTTP.DlqHandler
	Shedding *sheddingHTTP.SheddingHandler
}

// Server represents the HTTP API server.
type Server struct {
	server       *http.Server
	logger       *slog.Logger
	shuttingDown atomic.Bool
}

// NewServer creates a new HTTP server with all routes registered. The
// metricsProvider may be nil when metrics are disabled.
func NewServer(
	cfg *config.Config,
	logger *slog.Logger,
	handlers Handlers,
	metricsProvider *metrics.Provider,
) *Server {
	gin.SetMode(cfg.GetGinMode())

	s := &Server{logger: logger}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New())
	router.Use(CustomLoggerMiddleware(logger))

	if corsMiddleware := createCORSMiddleware(cfg.CORSEnabled, cfg.CORSAllowOrigins, logger); corsMiddleware != nil {
		router.Use(corsMiddleware)
	}

	if metricsProvider != nil {
		router.Use(metrics.HTTPMetricsMiddleware(metricsProvider.MeterProvider(), cfg.MetricsNamespace))
	}

	// Health and readiness endpoints
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/ready", func(c *gin.Context) {
		if s.shuttingDown.Load() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	v1 := router.Group("/v1")

	// Ingestion path: never rate limited, audit events must not be shed at
	// the transport layer.
	v1.POST("/events", handlers.Event.CreateHandler)

	// Administrative surface
	admin := v1.Group("")
	if cfg.RateLimitEnabled {
		admin.Use(RateLimitMiddleware(cfg.RateLimitRequestsPerSec, cfg.RateLimitBurst, logger))
	}

	admin.GET("/pipeline/status", handlers.Pipeline.StatusHandler)
	admin.POST("/pipeline/flush-buffer", handlers.Pipeline.FlushBufferHandler)

	admin.GET("/dlq", handlers.Dlq.ListHandler)
	admin.GET("/dlq/stats", handlers.Dlq.StatsHandler)
	admin.GET("/dlq/:id", handlers.Dlq.GetHandler)
	admin.POST("/dlq/:id/replay", handlers.Dlq.ReplayHandler)

	admin.GET("/shedding/emergency-mode", handlers.Shedding.GetEmergencyModeHandler)
	admin.PUT("/shedding/emergency-mode", handlers.Shedding.SetEmergencyModeHandler)
	admin.POST("/shedding/cache/invalidate", handlers.Shedding.InvalidateCacheHandler)
	admin.PUT("/shedding/policies", handlers.Shedding.UpsertPolicyHandler)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// GetHandler returns the http.Handler for testing purposes.
func (s *Server) GetHandler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting http server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server. The readiness endpoint
// reports not ready as soon as shutdown begins.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shuttingDown.Store(true)
	s.logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}
