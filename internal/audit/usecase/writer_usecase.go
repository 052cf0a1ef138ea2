package usecase

import (
	"context"
	"encoding/json"
	"log/slog"

	auditDomain "github.com/allisson/auditpipe/internal/audit/domain"
	auditService "github.com/allisson/auditpipe/internal/audit/service"
	"github.com/allisson/auditpipe/internal/breaker"
	apperrors "github.com/allisson/auditpipe/internal/errors"
	"github.com/allisson/auditpipe/internal/metrics"
	outboxDomain "github.com/allisson/auditpipe/internal/outbox/domain"
)

// WriterConfig holds resilient writer configuration.
type WriterConfig struct {
	// MaxBufferSize bounds the overflow buffer; the oldest entry is evicted
	// when the buffer is full.
	MaxBufferSize int
	// OutboxMaxAttempts is stamped into enqueued items as their retry budget.
	OutboxMaxAttempts int
}

// ResilientWriterUseCase implements the never-failing audit write path.
type ResilientWriterUseCase struct {
	config   WriterConfig
	shedding SheddingEvaluator
	redactor auditService.Redactor
	breaker  *breaker.CircuitBreaker
	outbox   OutboxEnqueuer
	buffer   *ringBuffer
	metrics  metrics.PipelineMetrics
	logger   *slog.Logger
}

// NewResilientWriterUseCase creates a new ResilientWriterUseCase.
func NewResilientWriterUseCase(
	config WriterConfig,
	shedding SheddingEvaluator,
	redactor auditService.Redactor,
	circuitBreaker *breaker.CircuitBreaker,
	outbox OutboxEnqueuer,
	pipelineMetrics metrics.PipelineMetrics,
	logger *slog.Logger,
) *ResilientWriterUseCase {
	return &ResilientWriterUseCase{
		config:   config,
		shedding: shedding,
		redactor: redactor,
		breaker:  circuitBreaker,
		outbox:   outbox,
		buffer:   newRingBuffer(config.MaxBufferSize),
		metrics:  pipelineMetrics,
		logger:   logger,
	}
}

// Write accepts an audit event and never returns an error. Rejected events
// are shed with their reason; accepted events are redacted and enqueued
// through the circuit breaker; events that cannot reach the outbox land in
// the overflow buffer, evicting the oldest entry when full.
func (uc *ResilientWriterUseCase) Write(ctx context.Context, event *auditDomain.AuditEvent) {
	decision := uc.shedding.Evaluate(ctx, event.TenantID, event.EventType, event.Severity)
	if !decision.Accepted {
		uc.metrics.RecordEvent(ctx, metrics.OutcomeShed, string(decision.Reason))
		if uc.logger != nil {
			uc.logger.Info("audit event shed",
				slog.String("tenant_id", event.TenantID),
				slog.String("event_type", event.EventType),
				slog.String("reason", string(decision.Reason)),
			)
		}
		return
	}

	result := uc.redactor.Redact(event)

	item, err := uc.newOutboxItem(result)
	if err != nil {
		uc.metrics.RecordEvent(ctx, metrics.OutcomeDropped, "encode_error")
		if uc.logger != nil {
			uc.logger.Error("failed to encode audit event",
				slog.String("tenant_id", event.TenantID),
				slog.String("event_type", event.EventType),
				slog.Any("error", err),
			)
		}
		return
	}

	err = uc.breaker.Execute(ctx, func(ctx context.Context) error {
		return uc.outbox.Enqueue(ctx, item)
	})
	if err != nil {
		uc.bufferItem(ctx, item, err)
		return
	}

	uc.metrics.RecordEvent(ctx, metrics.OutcomeIngested, "")
}

// BufferDepth reports the number of events waiting in the overflow buffer.
func (uc *ResilientWriterUseCase) BufferDepth() int {
	return uc.buffer.Len()
}

// FlushBuffer drains buffered events oldest-first directly into the outbox,
// bypassing the circuit breaker since it is invoked when connectivity is
// believed restored. Stops at the first failure and leaves the remainder
// buffered.
func (uc *ResilientWriterUseCase) FlushBuffer(ctx context.Context) (int, error) {
	flushed := 0
	for {
		item, ok := uc.buffer.PeekOldest()
		if !ok {
			break
		}

		if err := uc.outbox.Enqueue(ctx, item); err != nil {
			uc.metrics.RecordBufferDepth(ctx, uc.buffer.Len())
			return flushed, apperrors.Wrap(err, "failed to flush buffered audit event")
		}

		// The head may have been evicted by a concurrent Write while we held
		// no lock; in that case this item already left the buffer.
		if uc.buffer.RemoveIfOldest(item) {
			flushed++
			uc.metrics.RecordEvent(ctx, metrics.OutcomeIngested, "buffer_flush")
		}
	}

	uc.metrics.RecordBufferDepth(ctx, uc.buffer.Len())
	if uc.logger != nil && flushed > 0 {
		uc.logger.Info("flushed overflow buffer", slog.Int("count", flushed))
	}
	return flushed, nil
}

// newOutboxItem serializes the redacted event into a pending outbox item.
func (uc *ResilientWriterUseCase) newOutboxItem(result auditService.RedactionResult) (*outboxDomain.OutboxItem, error) {
	event := result.Event
	payload, err := json.Marshal(auditDomain.RedactedEvent{
		TenantID:         event.TenantID,
		EventType:        event.EventType,
		Severity:         event.Severity,
		Entity:           event.Entity,
		Actor:            event.Actor,
		Details:          event.Details,
		RedactionVersion: result.RedactionVersion,
		OccurredAt:       event.OccurredAt,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal redacted event")
	}

	return outboxDomain.NewOutboxItem(event.TenantID, event.EventType, payload, uc.config.OutboxMaxAttempts), nil
}

// bufferItem pushes an undeliverable item into the overflow buffer, evicting
// the oldest entry when full.
func (uc *ResilientWriterUseCase) bufferItem(ctx context.Context, item *outboxDomain.OutboxItem, cause error) {
	reason := "enqueue_error"
	var openErr *breaker.OpenError
	if apperrors.As(cause, &openErr) {
		reason = "circuit_open"
	}

	evicted := uc.buffer.Push(item)
	uc.metrics.RecordEvent(ctx, metrics.OutcomeBuffered, reason)
	if uc.logger != nil {
		uc.logger.Warn("audit event buffered",
			slog.String("tenant_id", item.TenantID),
			slog.String("event_type", item.EventType),
			slog.String("reason", reason),
			slog.Any("error", cause),
		)
	}

	if evicted != nil {
		uc.metrics.RecordEvent(ctx, metrics.OutcomeDropped, "buffer_overflow")
		if uc.logger != nil {
			uc.logger.Warn("overflow buffer full, dropped oldest event",
				slog.String("tenant_id", evicted.TenantID),
				slog.String("event_type", evicted.EventType),
			)
		}
	}

	uc.metrics.RecordBufferDepth(ctx, uc.buffer.Len())
}
