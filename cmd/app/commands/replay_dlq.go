package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/allisson/auditpipe/internal/app"
	"github.com/allisson/auditpipe/internal/config"
)

// RunReplayDlq replays a single dead letter entry back into the outbox. The
// id must be a valid UUID, the entry must belong to the given tenant, and the
// operator identifier must be non-empty.
func RunReplayDlq(ctx context.Context, io IOTuple, tenantID, id, operator string) error {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return fmt.Errorf("tenant id is required")
	}
	entryID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid dlq entry id %q: %w", id, err)
	}
	operator = strings.TrimSpace(operator)
	if operator == "" {
		return fmt.Errorf("operator is required")
	}

	cfg := config.Load()
	container := app.NewContainer(cfg)
	logger := container.Logger()
	defer closeContainer(container, logger)

	dlqUseCase, err := container.DlqUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize dlq use case: %w", err)
	}

	item, err := dlqUseCase.Replay(ctx, tenantID, entryID, operator)
	if err != nil {
		return fmt.Errorf("failed to replay dlq entry: %w", err)
	}

	fmt.Fprintf(io.Writer, "replayed dlq entry %s as outbox item %s\n", entryID, item.ID)
	return nil
}
