package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/allisson/auditpipe/internal/app"
	"github.com/allisson/auditpipe/internal/config"
)

// RunDrain leases a batch from the outbox and persists it to the durable
// audit log. With loop enabled it runs on the configured interval until
// interrupted, mirroring an external scheduler.
func RunDrain(ctx context.Context, loop bool) error {
	cfg := config.Load()

	container := app.NewContainer(cfg)
	logger := container.Logger()
	defer closeContainer(container, logger)

	drainUseCase, err := container.DrainUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize drain use case: %w", err)
	}

	if loop {
		ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := drainUseCase.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("drain loop failed: %w", err)
		}
		return nil
	}

	if err := drainUseCase.DrainOnce(ctx); err != nil {
		return fmt.Errorf("drain run failed: %w", err)
	}

	logger.Info("drain run completed", slog.Bool("loop", false))
	return nil
}
