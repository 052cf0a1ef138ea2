// Package usecase implements the resilient write path for audit events:
// load shedding, redaction, the circuit-breaker-guarded outbox enqueue, and
// the bounded overflow buffer used while the outbox is unreachable.
package usecase

import (
	"context"

	auditDomain "github.com/allisson/auditpipe/internal/audit/domain"
	outboxDomain "github.com/allisson/auditpipe/internal/outbox/domain"
	sheddingDomain "github.com/allisson/auditpipe/internal/shedding/domain"
)

// SheddingEvaluator is the load shedding gate consulted before any event is
// accepted.
type SheddingEvaluator interface {
	Evaluate(ctx context.Context, tenantID, eventType string, severity auditDomain.Severity) sheddingDomain.Decision
}

// OutboxEnqueuer persists redacted events into the durable retry queue.
type OutboxEnqueuer interface {
	Enqueue(ctx context.Context, item *outboxDomain.OutboxItem) error
}

// WriterUseCase defines the interface for the resilient audit write path.
type WriterUseCase interface {
	// Write accepts an audit event and never returns an error: rejected
	// events are shed, and events that cannot reach the outbox are buffered.
	Write(ctx context.Context, event *auditDomain.AuditEvent)
	// BufferDepth reports the number of events in the overflow buffer.
	BufferDepth() int
	// FlushBuffer drains buffered events oldest-first into the outbox,
	// stopping at the first failure. Returns the number flushed.
	FlushBuffer(ctx context.Context) (int, error)
}
