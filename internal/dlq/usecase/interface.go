// Package usecase implements dead letter queue business logic: inspecting dead
// events and replaying them back through the outbox.
package usecase

import (
	"context"

	"github.com/google/uuid"

	"github.com/allisson/auditpipe/internal/dlq/domain"
	outboxDomain "github.com/allisson/auditpipe/internal/outbox/domain"
)

// DlqRepository defines the interface for DLQ entry persistence operations.
type DlqRepository interface {
	Create(ctx context.Context, entry *domain.DlqEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.DlqEntry, error)
	List(ctx context.Context, tenantID string, unreplayedOnly bool, offset, limit int) ([]*domain.DlqEntry, error)
	MarkReplayed(ctx context.Context, tenantID string, id uuid.UUID, operator string) error
	CountUnreplayed(ctx context.Context, tenantID string) (int64, error)
}

// OutboxEnqueuer defines the interface for enqueueing replayed events back
// into the outbox.
type OutboxEnqueuer interface {
	Enqueue(ctx context.Context, item *outboxDomain.OutboxItem) error
}

// DlqUseCase defines the interface for dead letter queue operations.
type DlqUseCase interface {
	List(ctx context.Context, tenantID string, unreplayedOnly bool, offset, limit int) ([]*domain.DlqEntry, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.DlqEntry, error)
	Replay(ctx context.Context, tenantID string, id uuid.UUID, operator string) (*outboxDomain.OutboxItem, error)
	CountUnreplayed(ctx context.Context, tenantID string) (int64, error)
}
