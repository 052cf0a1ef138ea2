package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/allisson/auditpipe/internal/app"
	"github.com/allisson/auditpipe/internal/config"
)

// RunCleanupOutbox purges terminal outbox rows older than the given number of
// days. A zero days value falls back to the configured retention window.
func RunCleanupOutbox(ctx context.Context, days int) error {
	if days < 0 {
		return fmt.Errorf("invalid days value: %d (must be non-negative)", days)
	}

	cfg := config.Load()
	if days == 0 {
		days = cfg.OutboxRetentionDays
	}

	container := app.NewContainer(cfg)
	logger := container.Logger()
	defer closeContainer(container, logger)

	drainUseCase, err := container.DrainUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize drain use case: %w", err)
	}

	retention := time.Duration(days) * 24 * time.Hour
	purged, err := drainUseCase.Cleanup(ctx, retention)
	if err != nil {
		return fmt.Errorf("failed to cleanup outbox: %w", err)
	}

	logger.Info("outbox cleanup completed",
		slog.Int("retention_days", days),
		slog.Int64("purged", purged),
	)
	return nil
}
