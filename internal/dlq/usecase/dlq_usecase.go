package usecase

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/allisson/auditpipe/internal/database"
	"github.com/allisson/auditpipe/internal/dlq/domain"
	apperrors "github.com/allisson/auditpipe/internal/errors"
	outboxDomain "github.com/allisson/auditpipe/internal/outbox/domain"
)

// Config holds dead letter queue use case configuration.
type Config struct {
	// OutboxMaxAttempts is the delivery budget given to replayed items.
	OutboxMaxAttempts int
}

// DlqEntryUseCase implements inspection and replay of dead audit events.
type DlqEntryUseCase struct {
	config    Config
	txManager database.TxManager
	dlqRepo   DlqRepository
	outbox    OutboxEnqueuer
	logger    *slog.Logger
}

// NewDlqEntryUseCase creates a new DLQ use case instance.
func NewDlqEntryUseCase(
	config Config,
	txManager database.TxManager,
	dlqRepo DlqRepository,
	outbox OutboxEnqueuer,
	logger *slog.Logger,
) *DlqEntryUseCase {
	return &DlqEntryUseCase{
		config:    config,
		txManager: txManager,
		dlqRepo:   dlqRepo,
		outbox:    outbox,
		logger:    logger,
	}
}

// List retrieves DLQ entries, optionally filtered by tenant and replay state.
func (uc *DlqEntryUseCase) List(
	ctx context.Context,
	tenantID string,
	unreplayedOnly bool,
	offset, limit int,
) ([]*domain.DlqEntry, error) {
	return uc.dlqRepo.List(ctx, tenantID, unreplayedOnly, offset, limit)
}

// GetByID retrieves a single DLQ entry.
func (uc *DlqEntryUseCase) GetByID(ctx context.Context, id uuid.UUID) (*domain.DlqEntry, error) {
	return uc.dlqRepo.GetByID(ctx, id)
}

// Replay re-enqueues a dead event as a fresh outbox item with a reset attempt
// budget and stamps replay metadata on the entry. Both writes happen in a
// single transaction. The entry must belong to the given tenant; a mismatch
// reads as not found. An entry may be replayed more than once; each replay
// increments its replay count.
func (uc *DlqEntryUseCase) Replay(
	ctx context.Context,
	tenantID string,
	id uuid.UUID,
	operator string,
) (*outboxDomain.OutboxItem, error) {
	if tenantID == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "tenant id is required")
	}
	if operator == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "operator is required")
	}

	entry, err := uc.dlqRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.TenantID != tenantID {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, "dlq entry does not belong to tenant")
	}

	item := outboxDomain.NewOutboxItem(entry.TenantID, entry.EventType, entry.Payload, uc.config.OutboxMaxAttempts)

	err = uc.txManager.WithTx(ctx, func(txCtx context.Context) error {
		if err := uc.outbox.Enqueue(txCtx, item); err != nil {
			return err
		}
		return uc.dlqRepo.MarkReplayed(txCtx, tenantID, id, operator)
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to replay dlq entry")
	}

	if uc.logger != nil {
		uc.logger.Info("dlq entry replayed",
			slog.String("dlq_entry_id", id.String()),
			slog.String("outbox_item_id", item.ID.String()),
			slog.String("tenant_id", entry.TenantID),
			slog.String("operator", operator),
			slog.Int("replay_count", entry.ReplayCount+1),
		)
	}
	return item, nil
}

// CountUnreplayed counts entries awaiting replay, optionally scoped to a tenant.
func (uc *DlqEntryUseCase) CountUnreplayed(ctx context.Context, tenantID string) (int64, error) {
	return uc.dlqRepo.CountUnreplayed(ctx, tenantID)
}
