package app

import (
	"fmt"
	"sync"

	sheddingHTTP "github.com/allisson/auditpipe/internal/shedding/http"
	sheddingRepository "github.com/allisson/auditpipe/internal/shedding/repository"
	sheddingUsecase "github.com/allisson/auditpipe/internal/shedding/usecase"
)

// sheddingComponents holds the load shedding feature's lazily initialized
// components.
type sheddingComponents struct {
	repoInit    sync.Once
	useCaseInit sync.Once
	handlerInit sync.Once

	repo    sheddingUsecase.SheddingRepository
	useCase *sheddingUsecase.SheddingUseCase
	handler *sheddingHTTP.SheddingHandler
}

// SheddingRepository returns the shedding repository instance.
func (c *Container) SheddingRepository() (sheddingUsecase.SheddingRepository, error) {
	c.shedding.repoInit.Do(func() {
		db, err := c.DB()
		if err != nil {
			c.storeInitError("sheddingRepo", fmt.Errorf("failed to get database for shedding repository: %w", err))
			return
		}

		// Select the appropriate repository based on the database driver
		switch c.config.DBDriver {
		case "mysql":
			c.shedding.repo = sheddingRepository.NewMySQLSheddingRepository(db)
		case "postgres":
			c.shedding.repo = sheddingRepository.NewPostgreSQLSheddingRepository(db)
		default:
			c.storeInitError("sheddingRepo", fmt.Errorf("unsupported database driver: %s", c.config.DBDriver))
		}
	})
	if err := c.initError("sheddingRepo"); err != nil {
		return nil, err
	}
	return c.shedding.repo, nil
}

// SheddingUseCase returns the load shedding use case instance.
func (c *Container) SheddingUseCase() (*sheddingUsecase.SheddingUseCase, error) {
	c.shedding.useCaseInit.Do(func() {
		repo, err := c.SheddingRepository()
		if err != nil {
			c.storeInitError("sheddingUseCase", fmt.Errorf("failed to get shedding repository: %w", err))
			return
		}

		useCaseConfig := sheddingUsecase.Config{
			CacheTTL:              c.config.SheddingCacheTTL,
			EmergencySyncInterval: c.config.SheddingSyncInterval,
		}

		c.shedding.useCase = sheddingUsecase.NewSheddingUseCase(useCaseConfig, repo, c.Logger())
	})
	if err := c.initError("sheddingUseCase"); err != nil {
		return nil, err
	}
	return c.shedding.useCase, nil
}

// SheddingHandler returns the shedding administration handler.
func (c *Container) SheddingHandler() (*sheddingHTTP.SheddingHandler, error) {
	c.shedding.handlerInit.Do(func() {
		useCase, err := c.SheddingUseCase()
		if err != nil {
			c.storeInitError("sheddingHandler", fmt.Errorf("failed to get shedding use case: %w", err))
			return
		}
		c.shedding.handler = sheddingHTTP.NewSheddingHandler(useCase, c.Logger())
	})
	if err := c.initError("sheddingHandler"); err != nil {
		return nil, err
	}
	return c.shedding.handler, nil
}
