package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	auditDomain "github.com/allisson/auditpipe/internal/audit/domain"
	"github.com/allisson/auditpipe/internal/database"
	dlqDomain "github.com/allisson/auditpipe/internal/dlq/domain"
	apperrors "github.com/allisson/auditpipe/internal/errors"
	"github.com/allisson/auditpipe/internal/metrics"
	"github.com/allisson/auditpipe/internal/outbox/domain"
)

// Config holds drain worker configuration.
type Config struct {
	Interval    time.Duration
	BatchSize   int
	ItemTimeout time.Duration
	WorkerID    string
}

// DrainWorkerUseCase implements the scheduled outbox consumer. It is
// stateless between runs; the pick lease is the sole concurrency-control
// point, so multiple workers may run in parallel.
type DrainWorkerUseCase struct {
	config       Config
	txManager    database.TxManager
	outboxRepo   OutboxRepository
	auditLogRepo AuditLogRepository
	dlqRepo      DlqEntryCreator
	metrics      metrics.PipelineMetrics
	logger       *slog.Logger
}

// NewDrainWorkerUseCase creates a new DrainWorkerUseCase.
func NewDrainWorkerUseCase(
	config Config,
	txManager database.TxManager,
	outboxRepo OutboxRepository,
	auditLogRepo AuditLogRepository,
	dlqRepo DlqEntryCreator,
	pipelineMetrics metrics.PipelineMetrics,
	logger *slog.Logger,
) *DrainWorkerUseCase {
	if config.WorkerID == "" {
		config.WorkerID = fmt.Sprintf("drain-%s", uuid.Must(uuid.NewV7()))
	}
	return &DrainWorkerUseCase{
		config:       config,
		txManager:    txManager,
		outboxRepo:   outboxRepo,
		auditLogRepo: auditLogRepo,
		dlqRepo:      dlqRepo,
		metrics:      pipelineMetrics,
		logger:       logger,
	}
}

// Start runs the drain loop until the context is canceled.
func (uc *DrainWorkerUseCase) Start(ctx context.Context) error {
	if uc.logger != nil {
		uc.logger.Info("starting outbox drain worker",
			slog.Duration("interval", uc.config.Interval),
			slog.Int("batch_size", uc.config.BatchSize),
			slog.String("worker_id", uc.config.WorkerID),
		)
	}

	ticker := time.NewTicker(uc.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if uc.logger != nil {
				uc.logger.Info("stopping outbox drain worker")
			}
			return ctx.Err()
		case <-ticker.C:
			if err := uc.DrainOnce(ctx); err != nil {
				if uc.logger != nil {
					uc.logger.Error("drain run failed", slog.Any("error", err))
				}
			}
		}
	}
}

// DrainOnce leases a batch and delivers each item to the audit log under a
// per-item timeout. Succeeded ids are marked persisted in one call; each
// failure is marked individually so one bad item never blocks its siblings.
// Items on their last attempt are promoted to the DLQ instead of retried.
// Returns an error only when every item in the batch failed.
func (uc *DrainWorkerUseCase) DrainOnce(ctx context.Context) error {
	items, err := uc.outboxRepo.Pick(ctx, uc.config.BatchSize, uc.config.WorkerID)
	if err != nil {
		return apperrors.Wrap(err, "failed to pick outbox batch")
	}
	if len(items) == 0 {
		return nil
	}

	var succeeded []uuid.UUID
	failed := 0

	for _, item := range items {
		persistErr := uc.persistItem(ctx, item)
		if persistErr == nil {
			succeeded = append(succeeded, item.ID)
			uc.metrics.RecordOperation(ctx, "outbox", "drain_item", "success")
			continue
		}

		failed++
		uc.metrics.RecordOperation(ctx, "outbox", "drain_item", "error")
		if uc.logger != nil {
			uc.logger.Error("failed to persist outbox item",
				slog.String("item_id", item.ID.String()),
				slog.String("tenant_id", item.TenantID),
				slog.String("event_type", item.EventType),
				slog.Int("attempts", item.Attempts),
				slog.Any("error", persistErr),
			)
		}

		if item.Attempts+1 >= item.MaxAttempts {
			if err := uc.promoteToDLQ(ctx, item, persistErr); err != nil && uc.logger != nil {
				uc.logger.Error("failed to promote outbox item to dlq",
					slog.String("item_id", item.ID.String()),
					slog.Any("error", err),
				)
			}
			continue
		}

		if err := uc.outboxRepo.MarkFailed(ctx, item, persistErr.Error()); err != nil && uc.logger != nil {
			uc.logger.Error("failed to mark outbox item failed",
				slog.String("item_id", item.ID.String()),
				slog.Any("error", err),
			)
		}
	}

	if len(succeeded) > 0 {
		if err := uc.outboxRepo.MarkPersisted(ctx, succeeded); err != nil {
			return apperrors.Wrap(err, "failed to mark outbox items persisted")
		}
	}

	if failed == len(items) {
		return apperrors.New(fmt.Sprintf("all %d outbox items failed", len(items)))
	}
	return nil
}

// Cleanup purges terminal outbox rows older than the retention window.
func (uc *DrainWorkerUseCase) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	deleted, err := uc.outboxRepo.Cleanup(ctx, cutoff)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to cleanup outbox")
	}

	if uc.logger != nil {
		uc.logger.Info("outbox cleanup finished",
			slog.Int64("deleted", deleted),
			slog.Time("cutoff", cutoff),
		)
	}
	return deleted, nil
}

// persistItem writes one outbox payload to the durable audit log under the
// per-item timeout.
func (uc *DrainWorkerUseCase) persistItem(ctx context.Context, item *domain.OutboxItem) error {
	if uc.config.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.config.ItemTimeout)
		defer cancel()
	}

	redacted, payload, err := decodePayload(item)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	log := &auditDomain.AuditLog{
		ID:               uuid.Must(uuid.NewV7()),
		TenantID:         item.TenantID,
		EventType:        item.EventType,
		Severity:         redacted.Severity,
		Payload:          payload,
		RedactionVersion: redacted.RedactionVersion,
		OccurredAt:       redacted.OccurredAt,
		CreatedAt:        now,
	}

	return uc.auditLogRepo.Create(ctx, log)
}

// promoteToDLQ marks an exhausted item dead and archives it, atomically.
func (uc *DrainWorkerUseCase) promoteToDLQ(ctx context.Context, item *domain.OutboxItem, cause error) error {
	entry := dlqDomain.NewDlqEntry(
		item.ID,
		item.TenantID,
		item.EventType,
		item.Payload,
		cause.Error(),
		categorize(cause),
		item.Attempts+1,
	)

	err := uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := uc.outboxRepo.MarkDead(ctx, item.ID); err != nil {
			return err
		}
		return uc.dlqRepo.Create(ctx, entry)
	})
	if err != nil {
		return apperrors.Wrap(err, "failed to promote outbox item to dlq")
	}

	uc.metrics.RecordOperation(ctx, "outbox", "promote_dlq", "success")
	if uc.logger != nil {
		uc.logger.Warn("outbox item promoted to dlq",
			slog.String("item_id", item.ID.String()),
			slog.String("tenant_id", item.TenantID),
			slog.String("event_type", item.EventType),
			slog.Int("attempts", item.Attempts+1),
		)
	}
	return nil
}

// decodePayload deserializes the redacted event carried by an outbox item.
// The typed form feeds the audit log columns; the raw map becomes the payload
// so the durable record keeps the event whole, entity and actor included.
func decodePayload(item *domain.OutboxItem) (*auditDomain.RedactedEvent, map[string]any, error) {
	var redacted auditDomain.RedactedEvent
	if err := json.Unmarshal(item.Payload, &redacted); err != nil {
		return nil, nil, apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
	}

	var payload map[string]any
	if err := json.Unmarshal(item.Payload, &payload); err != nil {
		return nil, nil, apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
	}
	return &redacted, payload, nil
}

// categorize maps a persistence failure to a DLQ error category.
func categorize(err error) dlqDomain.ErrorCategory {
	switch {
	case apperrors.Is(err, context.DeadlineExceeded):
		return dlqDomain.CategoryTimeout
	case apperrors.Is(err, apperrors.ErrInvalidInput):
		return dlqDomain.CategoryUnknown
	default:
		return dlqDomain.CategoryPersistence
	}
}
