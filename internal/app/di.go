// Package app provides the dependency injection container assembling the
// audit pipeline components.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/allisson/auditpipe/internal/config"
	"github.com/allisson/auditpipe/internal/database"
	"github.com/allisson/auditpipe/internal/http"
	"github.com/allisson/auditpipe/internal/metrics"
)

// Container holds all application dependencies and provides methods to access them.
// It follows the lazy initialization pattern - components are created on first access.
type Container struct {
	// Configuration
	config *config.Config

	// Infrastructure
	logger          *slog.Logger
	db              *sql.DB
	txManager       database.TxManager
	metricsProvider *metrics.Provider
	pipelineMetrics metrics.PipelineMetrics

	// Servers
	httpServer    *http.Server
	metricsServer *http.MetricsServer

	// Feature components, initialized in the di_*.go files
	audit    auditComponents
	outbox   outboxComponents
	dlq      dlqComponents
	shedding sheddingComponents

	// Initialization flags for thread-safety
	loggerInit          sync.Once
	dbInit              sync.Once
	txManagerInit       sync.Once
	metricsProviderInit sync.Once
	pipelineMetricsInit sync.Once
	httpServerInit      sync.Once
	metricsServerInit   sync.Once
	initErrors          map[string]error
	initErrorsMu        sync.Mutex
}

// NewContainer creates a new dependency injection container with the provided configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// storeInitError records a component initialization failure.
func (c *Container) storeInitError(component string, err error) {
	c.initErrorsMu.Lock()
	defer c.initErrorsMu.Unlock()
	c.initErrors[component] = err
}

// initError returns a previously recorded initialization failure.
func (c *Container) initError(component string) error {
	c.initErrorsMu.Lock()
	defer c.initErrorsMu.Unlock()
	return c.initErrors[component]
}

// Logger returns the configured logger instance.
// It creates a new logger on first access based on the log level in configuration.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// initLogger creates the application logger from the configured log level.
func (c *Container) initLogger() *slog.Logger {
	var level slog.Level
	switch c.config.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// DB returns the database connection.
// It creates and configures the database connection on first access.
func (c *Container) DB() (*sql.DB, error) {
	c.dbInit.Do(func() {
		db, err := database.Connect(database.Config{
			Driver:             c.config.DBDriver,
			ConnectionString:   c.config.DBConnectionString,
			MaxOpenConnections: c.config.DBMaxOpenConnections,
			MaxIdleConnections: c.config.DBMaxIdleConnections,
			ConnMaxLifetime:    c.config.DBConnMaxLifetime,
		})
		if err != nil {
			c.storeInitError("db", fmt.Errorf("failed to connect to database: %w", err))
			return
		}
		c.db = db
	})
	if err := c.initError("db"); err != nil {
		return nil, err
	}
	return c.db, nil
}

// TxManager returns the transaction manager.
// It requires a database connection to be initialized first.
func (c *Container) TxManager() (database.TxManager, error) {
	c.txManagerInit.Do(func() {
		db, err := c.DB()
		if err != nil {
			c.storeInitError("txManager", fmt.Errorf("failed to get database for tx manager: %w", err))
			return
		}
		c.txManager = database.NewTxManager(db)
	})
	if err := c.initError("txManager"); err != nil {
		return nil, err
	}
	return c.txManager, nil
}

// MetricsProvider returns the OpenTelemetry metrics provider, or nil when
// metrics are disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	c.metricsProviderInit.Do(func() {
		if !c.config.MetricsEnabled {
			return
		}
		provider, err := metrics.NewProvider(c.config.MetricsNamespace)
		if err != nil {
			c.storeInitError("metricsProvider", fmt.Errorf("failed to create metrics provider: %w", err))
			return
		}
		c.metricsProvider = provider
	})
	if err := c.initError("metricsProvider"); err != nil {
		return nil, err
	}
	return c.metricsProvider, nil
}

// PipelineMetrics returns the pipeline metrics recorder. A no-op
// implementation is returned when metrics are disabled.
func (c *Container) PipelineMetrics() (metrics.PipelineMetrics, error) {
	c.pipelineMetricsInit.Do(func() {
		provider, err := c.MetricsProvider()
		if err != nil {
			c.storeInitError("pipelineMetrics", fmt.Errorf("failed to get metrics provider: %w", err))
			return
		}
		if provider == nil {
			c.pipelineMetrics = metrics.NewNoOpPipelineMetrics()
			return
		}

		pipelineMetrics, err := metrics.NewPipelineMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
		if err != nil {
			c.storeInitError("pipelineMetrics", fmt.Errorf("failed to create pipeline metrics: %w", err))
			return
		}
		c.pipelineMetrics = pipelineMetrics
	})
	if err := c.initError("pipelineMetrics"); err != nil {
		return nil, err
	}
	return c.pipelineMetrics, nil
}

// HTTPServer returns the API server with all routes registered.
func (c *Container) HTTPServer() (*http.Server, error) {
	c.httpServerInit.Do(func() {
		eventHandler, err := c.EventHandler()
		if err != nil {
			c.storeInitError("httpServer", fmt.Errorf("failed to get event handler: %w", err))
			return
		}

		pipelineHandler, err := c.PipelineHandler()
		if err != nil {
			c.storeInitError("httpServer", fmt.Errorf("failed to get pipeline handler: %w", err))
			return
		}

		dlqHandler, err := c.DlqHandler()
		if err != nil {
			c.storeInitError("httpServer", fmt.Errorf("failed to get dlq handler: %w", err))
			return
		}

		sheddingHandler, err := c.SheddingHandler()
		if err != nil {
			c.storeInitError("httpServer", fmt.Errorf("failed to get shedding handler: %w", err))
			return
		}

		metricsProvider, err := c.MetricsProvider()
		if err != nil {
			c.storeInitError("httpServer", fmt.Errorf("failed to get metrics provider: %w", err))
			return
		}

		handlers := http.Handlers{
			Event:    eventHandler,
			Pipeline: pipelineHandler,
			Dlq:      dlqHandler,
			Shedding: sheddingHandler,
		}
		c.httpServer = http.NewServer(c.config, c.Logger(), handlers, metricsProvider)
	})
	if err := c.initError("httpServer"); err != nil {
		return nil, err
	}
	return c.httpServer, nil
}

// MetricsServer returns the Prometheus metrics server, or nil when metrics
// are disabled.
func (c *Container) MetricsServer() (*http.MetricsServer, error) {
	c.metricsServerInit.Do(func() {
		provider, err := c.MetricsProvider()
		if err != nil {
			c.storeInitError("metricsServer", fmt.Errorf("failed to get metrics provider: %w", err))
			return
		}
		if provider == nil {
			return
		}
		c.metricsServer = http.NewMetricsServer(
			c.config.ServerHost,
			c.config.MetricsPort,
			c.Logger(),
			provider,
		)
	})
	if err := c.initError("metricsServer"); err != nil {
		return nil, err
	}
	return c.metricsServer, nil
}

// Shutdown releases container-held resources.
func (c *Container) Shutdown(ctx context.Context) error {
	var errs []error

	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown metrics provider: %w", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}

	return errors.Join(errs...)
}
