package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/auditpipe/internal/dlq/domain"
	"github.com/allisson/auditpipe/internal/metrics"
	outboxDomain "github.com/allisson/auditpipe/internal/outbox/domain"
)

// dlqUseCaseWithMetrics decorates DlqUseCase with metrics instrumentation.
type dlqUseCaseWithMetrics struct {
	next    DlqUseCase
	metrics metrics.PipelineMetrics
}

// NewDlqUseCaseWithMetrics wraps a DlqUseCase with metrics recording.
func NewDlqUseCaseWithMetrics(useCase DlqUseCase, m metrics.PipelineMetrics) DlqUseCase {
	return &dlqUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// List records metrics for DLQ listing operations.
func (d *dlqUseCaseWithMetrics) List(
	ctx context.Context,
	tenantID string,
	unreplayedOnly bool,
	offset, limit int,
) ([]*domain.DlqEntry, error) {
	start := time.Now()
	entries, err := d.next.List(ctx, tenantID, unreplayedOnly, offset, limit)

	status := "success"
	if err != nil {
		status = "error"
	}

	d.metrics.RecordOperation(ctx, "dlq", "dlq_list", status)
	d.metrics.RecordDuration(ctx, "dlq", "dlq_list", time.Since(start), status)

	return entries, err
}

// GetByID records metrics for DLQ entry retrieval operations.
func (d *dlqUseCaseWithMetrics) GetByID(ctx context.Context, id uuid.UUID) (*domain.DlqEntry, error) {
	start := time.Now()
	entry, err := d.next.GetByID(ctx, id)

	status := "success"
	if err != nil {
		status = "error"
	}

	d.metrics.RecordOperation(ctx, "dlq", "dlq_get", status)
	d.metrics.RecordDuration(ctx, "dlq", "dlq_get", time.Since(start), status)

	return entry, err
}

// Replay records metrics for DLQ replay operations.
func (d *dlqUseCaseWithMetrics) Replay(
	ctx context.Context,
	tenantID string,
	id uuid.UUID,
	operator string,
) (*outboxDomain.OutboxItem, error) {
	start := time.Now()
	item, err := d.next.Replay(ctx, tenantID, id, operator)

	status := "success"
	if err != nil {
		status = "error"
	}

	d.metrics.RecordOperation(ctx, "dlq", "dlq_replay", status)
	d.metrics.RecordDuration(ctx, "dlq", "dlq_replay", time.Since(start), status)

	return item, err
}

// CountUnreplayed records metrics for DLQ count operations.
func (d *dlqUseCaseWithMetrics) CountUnreplayed(ctx context.Context, tenantID string) (int64, error) {
	start := time.Now()
	count, err := d.next.CountUnreplayed(ctx, tenantID)

	status := "success"
	if err != nil {
		status = "error"
	}

	d.metrics.RecordOperation(ctx, "dlq", "dlq_count_unreplayed", status)
	d.metrics.RecordDuration(ctx, "dlq", "dlq_count_unreplayed", time.Since(start), status)

	return count, err
}
