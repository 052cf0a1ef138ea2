package app

import (
	"context"
	"fmt"
	"sync"

	auditHTTP "github.com/allisson/auditpipe/internal/audit/http"
	auditRepository "github.com/allisson/auditpipe/internal/audit/repository"
	auditService "github.com/allisson/auditpipe/internal/audit/service"
	auditUsecase "github.com/allisson/auditpipe/internal/audit/usecase"
	"github.com/allisson/auditpipe/internal/breaker"
	outboxUsecase "github.com/allisson/auditpipe/internal/outbox/usecase"
)

// auditComponents holds the audit feature's lazily initialized components.
type auditComponents struct {
	logRepoInit         sync.Once
	redactorInit        sync.Once
	breakerInit         sync.Once
	writerInit          sync.Once
	eventHandlerInit    sync.Once
	pipelineHandlerInit sync.Once

	logRepo         outboxUsecase.AuditLogRepository
	redactor        auditService.Redactor
	breaker         *breaker.CircuitBreaker
	writer          auditUsecase.WriterUseCase
	eventHandler    *auditHTTP.EventHandler
	pipelineHandler *auditHTTP.PipelineHandler
}

// AuditLogRepository returns the durable audit log repository instance.
func (c *Container) AuditLogRepository() (outboxUsecase.AuditLogRepository, error) {
	c.audit.logRepoInit.Do(func() {
		db, err := c.DB()
		if err != nil {
			c.storeInitError("auditLogRepo", fmt.Errorf("failed to get database for audit log repository: %w", err))
			return
		}

		// Select the appropriate repository based on the database driver
		switch c.config.DBDriver {
		case "mysql":
			c.audit.logRepo = auditRepository.NewMySQLAuditLogRepository(db)
		case "postgres":
			c.audit.logRepo = auditRepository.NewPostgreSQLAuditLogRepository(db)
		default:
			c.storeInitError("auditLogRepo", fmt.Errorf("unsupported database driver: %s", c.config.DBDriver))
		}
	})
	if err := c.initError("auditLogRepo"); err != nil {
		return nil, err
	}
	return c.audit.logRepo, nil
}

// Redactor returns the redaction pipeline instance.
func (c *Container) Redactor() auditService.Redactor {
	c.audit.redactorInit.Do(func() {
		c.audit.redactor = auditService.NewRedactor(auditService.NewMasker())
	})
	return c.audit.redactor
}

// CircuitBreaker returns the breaker guarding the outbox enqueue path.
func (c *Container) CircuitBreaker() (*breaker.CircuitBreaker, error) {
	c.audit.breakerInit.Do(func() {
		pipelineMetrics, err := c.PipelineMetrics()
		if err != nil {
			c.storeInitError("circuitBreaker", fmt.Errorf("failed to get pipeline metrics: %w", err))
			return
		}

		config := breaker.Config{
			FailureThreshold: c.config.BreakerFailureThreshold,
			FailureWindow:    c.config.BreakerFailureWindow,
			SuccessThreshold: c.config.BreakerSuccessThreshold,
			RecoveryTimeout:  c.config.BreakerRecoveryTimeout,
		}

		c.audit.breaker = breaker.New("outbox", config, c.Logger(),
			breaker.WithStateChangeHook(func(name string, from, to breaker.State) {
				pipelineMetrics.RecordCircuitState(context.Background(), name, int(to))
			}),
		)
	})
	if err := c.initError("circuitBreaker"); err != nil {
		return nil, err
	}
	return c.audit.breaker, nil
}

// WriterUseCase returns the resilient writer instance.
func (c *Container) WriterUseCase() (auditUsecase.WriterUseCase, error) {
	c.audit.writerInit.Do(func() {
		sheddingUseCase, err := c.SheddingUseCase()
		if err != nil {
			c.storeInitError("writerUseCase", fmt.Errorf("failed to get shedding use case: %w", err))
			return
		}

		circuitBreaker, err := c.CircuitBreaker()
		if err != nil {
			c.storeInitError("writerUseCase", fmt.Errorf("failed to get circuit breaker: %w", err))
			return
		}

		outboxRepo, err := c.OutboxRepository()
		if err != nil {
			c.storeInitError("writerUseCase", fmt.Errorf("failed to get outbox repository: %w", err))
			return
		}

		pipelineMetrics, err := c.PipelineMetrics()
		if err != nil {
			c.storeInitError("writerUseCase", fmt.Errorf("failed to get pipeline metrics: %w", err))
			return
		}

		writerConfig := auditUsecase.WriterConfig{
			MaxBufferSize:     c.config.WriterMaxBufferSize,
			OutboxMaxAttempts: c.config.OutboxMaxAttempts,
		}

		c.audit.writer = auditUsecase.NewResilientWriterUseCase(
			writerConfig,
			sheddingUseCase,
			c.Redactor(),
			circuitBreaker,
			outboxRepo,
			pipelineMetrics,
			c.Logger(),
		)
	})
	if err := c.initError("writerUseCase"); err != nil {
		return nil, err
	}
	return c.audit.writer, nil
}

// EventHandler returns the audit event ingestion handler.
func (c *Container) EventHandler() (*auditHTTP.EventHandler, error) {
	c.audit.eventHandlerInit.Do(func() {
		writer, err := c.WriterUseCase()
		if err != nil {
			c.storeInitError("eventHandler", fmt.Errorf("failed to get writer use case: %w", err))
			return
		}
		c.audit.eventHandler = auditHTTP.NewEventHandler(writer, c.Logger())
	})
	if err := c.initError("eventHandler"); err != nil {
		return nil, err
	}
	return c.audit.eventHandler, nil
}

// PipelineHandler returns the pipeline administration handler.
func (c *Container) PipelineHandler() (*auditHTTP.PipelineHandler, error) {
	c.audit.pipelineHandlerInit.Do(func() {
		writer, err := c.WriterUseCase()
		if err != nil {
			c.storeInitError("pipelineHandler", fmt.Errorf("failed to get writer use case: %w", err))
			return
		}

		circuitBreaker, err := c.CircuitBreaker()
		if err != nil {
			c.storeInitError("pipelineHandler", fmt.Errorf("failed to get circuit breaker: %w", err))
			return
		}

		outboxRepo, err := c.OutboxRepository()
		if err != nil {
			c.storeInitError("pipelineHandler", fmt.Errorf("failed to get outbox repository: %w", err))
			return
		}

		sheddingUseCase, err := c.SheddingUseCase()
		if err != nil {
			c.storeInitError("pipelineHandler", fmt.Errorf("failed to get shedding use case: %w", err))
			return
		}

		c.audit.pipelineHandler = auditHTTP.NewPipelineHandler(
			writer,
			circuitBreaker,
			outboxRepo,
			sheddingUseCase,
			c.Logger(),
		)
	})
	if err := c.initError("pipelineHandler"); err != nil {
		return nil, err
	}
	return c.audit.pipelineHandler, nil
}
