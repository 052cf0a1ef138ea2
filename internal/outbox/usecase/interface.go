// Package usecase implements the outbox drain worker that delivers queued
// audit events to the durable audit log and promotes exhausted items to the
// dead letter queue.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	auditDomain "github.com/allisson/auditpipe/internal/audit/domain"
	dlqDomain "github.com/allisson/auditpipe/internal/dlq/domain"
	"github.com/allisson/auditpipe/internal/outbox/domain"
)

// OutboxRepository defines the interface for outbox item persistence operations.
type OutboxRepository interface {
	Enqueue(ctx context.Context, item *domain.OutboxItem) error
	Pick(ctx context.Context, limit int, lockOwner string) ([]*domain.OutboxItem, error)
	MarkPersisted(ctx context.Context, ids []uuid.UUID) error
	MarkFailed(ctx context.Context, item *domain.OutboxItem, errMsg string) error
	MarkDead(ctx context.Context, id uuid.UUID) error
	CountPending(ctx context.Context) (int64, error)
	CountDead(ctx context.Context) (int64, error)
	Cleanup(ctx context.Context, olderThan time.Time) (int64, error)
}

// AuditLogRepository defines the durable audit log write used per drained item.
type AuditLogRepository interface {
	Create(ctx context.Context, log *auditDomain.AuditLog) error
}

// DlqEntryCreator archives exhausted outbox items.
type DlqEntryCreator interface {
	Create(ctx context.Context, entry *dlqDomain.DlqEntry) error
}

// DrainUseCase defines the interface for the outbox drain worker.
type DrainUseCase interface {
	// Start runs the periodic drain loop until the context is canceled.
	Start(ctx context.Context) error
	// DrainOnce leases one batch and delivers it. Returns an error only when
	// every item in the batch failed, so the scheduler can alert.
	DrainOnce(ctx context.Context) error
	// Cleanup purges terminal outbox rows older than the retention window.
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
}
