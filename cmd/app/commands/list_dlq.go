package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/allisson/auditpipe/internal/app"
	"github.com/allisson/auditpipe/internal/config"
)

// RunListDlq prints dead letter queue entries to the given writer.
func RunListDlq(ctx context.Context, io IOTuple, tenantID string, unreplayedOnly bool, offset, limit int) error {
	if offset < 0 {
		return fmt.Errorf("invalid offset: %d (must be non-negative)", offset)
	}
	if limit <= 0 || limit > 100 {
		return fmt.Errorf("invalid limit: %d (must be between 1 and 100)", limit)
	}

	cfg := config.Load()
	container := app.NewContainer(cfg)
	logger := container.Logger()
	defer closeContainer(container, logger)

	dlqUseCase, err := container.DlqUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize dlq use case: %w", err)
	}

	entries, err := dlqUseCase.List(ctx, tenantID, unreplayedOnly, offset, limit)
	if err != nil {
		return fmt.Errorf("failed to list dlq entries: %w", err)
	}

	w := tabwriter.NewWriter(io.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTENANT\tEVENT_TYPE\tCATEGORY\tATTEMPTS\tDEAD_AT\tREPLAYED")
	for _, entry := range entries {
		replayed := "no"
		if entry.ReplayedAt != nil && entry.ReplayedBy != nil {
			replayed = fmt.Sprintf("yes (%s)", *entry.ReplayedBy)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			entry.ID,
			entry.TenantID,
			entry.EventType,
			entry.ErrorCategory,
			entry.Attempts,
			entry.DeadAt.Format(time.RFC3339),
			replayed,
		)
	}
	return w.Flush()
}
