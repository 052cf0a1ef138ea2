package app

import (
	"fmt"
	"sync"

	outboxRepository "github.com/allisson/auditpipe/internal/outbox/repository"
	outboxUsecase "github.com/allisson/auditpipe/internal/outbox/usecase"
)

// outboxComponents holds the outbox feature's lazily initialized components.
type outboxComponents struct {
	repoInit     sync.Once
	drainInit    sync.Once
	repo         outboxUsecase.OutboxRepository
	drainUseCase outboxUsecase.DrainUseCase
}

// OutboxRepository returns the outbox repository instance.
func (c *Container) OutboxRepository() (outboxUsecase.OutboxRepository, error) {
	c.outbox.repoInit.Do(func() {
		db, err := c.DB()
		if err != nil {
			c.storeInitError("outboxRepo", fmt.Errorf("failed to get database for outbox repository: %w", err))
			return
		}

		repoConfig := outboxRepository.Config{
			BaseDelay:    c.config.OutboxBaseDelay,
			MaxDelay:     c.config.OutboxMaxDelay,
			LeaseTimeout: c.config.OutboxLeaseTimeout,
		}

		// Select the appropriate repository based on the database driver
		switch c.config.DBDriver {
		case "mysql":
			c.outbox.repo = outboxRepository.NewMySQLOutboxRepository(db, repoConfig)
		case "postgres":
			c.outbox.repo = outboxRepository.NewPostgreSQLOutboxRepository(db, repoConfig)
		default:
			c.storeInitError("outboxRepo", fmt.Errorf("unsupported database driver: %s", c.config.DBDriver))
		}
	})
	if err := c.initError("outboxRepo"); err != nil {
		return nil, err
	}
	return c.outbox.repo, nil
}

// DrainUseCase returns the drain worker instance.
func (c *Container) DrainUseCase() (outboxUsecase.DrainUseCase, error) {
	c.outbox.drainInit.Do(func() {
		txManager, err := c.TxManager()
		if err != nil {
			c.storeInitError("drainUseCase", fmt.Errorf("failed to get tx manager: %w", err))
			return
		}

		outboxRepo, err := c.OutboxRepository()
		if err != nil {
			c.storeInitError("drainUseCase", fmt.Errorf("failed to get outbox repository: %w", err))
			return
		}

		auditLogRepo, err := c.AuditLogRepository()
		if err != nil {
			c.storeInitError("drainUseCase", fmt.Errorf("failed to get audit log repository: %w", err))
			return
		}

		dlqRepo, err := c.DlqRepository()
		if err != nil {
			c.storeInitError("drainUseCase", fmt.Errorf("failed to get dlq repository: %w", err))
			return
		}

		pipelineMetrics, err := c.PipelineMetrics()
		if err != nil {
			c.storeInitError("drainUseCase", fmt.Errorf("failed to get pipeline metrics: %w", err))
			return
		}

		drainConfig := outboxUsecase.Config{
			Interval:    c.config.DrainInterval,
			BatchSize:   c.config.DrainBatchSize,
			ItemTimeout: c.config.DrainItemTimeout,
		}

		c.outbox.drainUseCase = outboxUsecase.NewDrainWorkerUseCase(
			drainConfig,
			txManager,
			outboxRepo,
			auditLogRepo,
			dlqRepo,
			pipelineMetrics,
			c.Logger(),
		)
	})
	if err := c.initError("drainUseCase"); err != nil {
		return nil, err
	}
	return c.outbox.drainUseCase, nil
}
