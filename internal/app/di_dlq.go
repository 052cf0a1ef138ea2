package app

import (
	"fmt"
	"sync"

	dlqHTTP "github.com/allisson/auditpipe/internal/dlq/http"
	dlqRepository "github.com/allisson/auditpipe/internal/dlq/repository"
	dlqUsecase "github.com/allisson/auditpipe/internal/dlq/usecase"
)

// dlqComponents holds the dead letter queue feature's lazily initialized
// components.
type dlqComponents struct {
	repoInit    sync.Once
	useCaseInit sync.Once
	handlerInit sync.Once

	repo    dlqUsecase.DlqRepository
	useCase dlqUsecase.DlqUseCase
	handler *dlqHTTP.DlqHandler
}

// DlqRepository returns the DLQ repository instance.
func (c *Container) DlqRepository() (dlqUsecase.DlqRepository, error) {
	c.dlq.repoInit.Do(func() {
		db, err := c.DB()
		if err != nil {
			c.storeInitError("dlqRepo", fmt.Errorf("failed to get database for dlq repository: %w", err))
			return
		}

		// Select the appropriate repository based on the database driver
		switch c.config.DBDriver {
		case "mysql":
			c.dlq.repo = dlqRepository.NewMySQLDlqRepository(db)
		case "postgres":
			c.dlq.repo = dlqRepository.NewPostgreSQLDlqRepository(db)
		default:
			c.storeInitError("dlqRepo", fmt.Errorf("unsupported database driver: %s", c.config.DBDriver))
		}
	})
	if err := c.initError("dlqRepo"); err != nil {
		return nil, err
	}
	return c.dlq.repo, nil
}

// DlqUseCase returns the DLQ use case decorated with metrics recording.
func (c *Container) DlqUseCase() (dlqUsecase.DlqUseCase, error) {
	c.dlq.useCaseInit.Do(func() {
		txManager, err := c.TxManager()
		if err != nil {
			c.storeInitError("dlqUseCase", fmt.Errorf("failed to get tx manager: %w", err))
			return
		}

		dlqRepo, err := c.DlqRepository()
		if err != nil {
			c.storeInitError("dlqUseCase", fmt.Errorf("failed to get dlq repository: %w", err))
			return
		}

		outboxRepo, err := c.OutboxRepository()
		if err != nil {
			c.storeInitError("dlqUseCase", fmt.Errorf("failed to get outbox repository: %w", err))
			return
		}

		pipelineMetrics, err := c.PipelineMetrics()
		if err != nil {
			c.storeInitError("dlqUseCase", fmt.Errorf("failed to get pipeline metrics: %w", err))
			return
		}

		useCaseConfig := dlqUsecase.Config{
			OutboxMaxAttempts: c.config.OutboxMaxAttempts,
		}

		useCase := dlqUsecase.NewDlqEntryUseCase(useCaseConfig, txManager, dlqRepo, outboxRepo, c.Logger())
		c.dlq.useCase = dlqUsecase.NewDlqUseCaseWithMetrics(useCase, pipelineMetrics)
	})
	if err := c.initError("dlqUseCase"); err != nil {
		return nil, err
	}
	return c.dlq.useCase, nil
}

// DlqHandler returns the DLQ administration handler.
func (c *Container) DlqHandler() (*dlqHTTP.DlqHandler, error) {
	c.dlq.handlerInit.Do(func() {
		useCase, err := c.DlqUseCase()
		if err != nil {
			c.storeInitError("dlqHandler", fmt.Errorf("failed to get dlq use case: %w", err))
			return
		}
		c.dlq.handler = dlqHTTP.NewDlqHandler(useCase, c.Logger())
	})
	if err := c.initError("dlqHandler"); err != nil {
		return nil, err
	}
	return c.dlq.handler, nil
}
