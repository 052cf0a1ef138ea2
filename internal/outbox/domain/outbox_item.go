// Package domain defines the durable outbox queue entities.
package domain

import (
	"encoding/json"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	validation "github.com/jellydator/validation"

	customValidation "github.com/allisson/auditpipe/internal/validation"
)

// Status is the lifecycle state of an outbox item.
type Status string

const (
	// StatusPending marks an item waiting to be picked.
	StatusPending Status = "pending"
	// StatusProcessing marks an item leased by a drain worker.
	StatusProcessing Status = "processing"
	// StatusPersisted marks terminal success.
	StatusPersisted Status = "persisted"
	// StatusFailed marks a retryable failure waiting for its backoff delay.
	StatusFailed Status = "failed"
	// StatusDead marks terminal failure after exhausting all attempts.
	StatusDead Status = "dead"
)

// IsTerminal reports whether the status ends the item lifecycle.
func (s Status) IsTerminal() bool {
	return s == StatusPersisted || s == StatusDead
}

// OutboxItem is a durable queue row holding one redacted audit event awaiting
// delivery to the audit log. An item is eligible for pick only when its status
// is pending or failed, its available_at has passed, and no unexpired lease
// holds it.
type OutboxItem struct {
	ID          uuid.UUID
	TenantID    string
	EventType   string
	Payload     json.RawMessage
	Status      Status
	Attempts    int
	MaxAttempts int
	AvailableAt time.Time
	LockOwner   *string
	LockedAt    *time.Time
	LastError   *string
	CreatedAt   time.Time
}

// NewOutboxItem creates a pending outbox item immediately available for pick.
func NewOutboxItem(tenantID, eventType string, payload json.RawMessage, maxAttempts int) *OutboxItem {
	now := time.Now().UTC()
	return &OutboxItem{
		ID:          uuid.Must(uuid.NewV7()),
		TenantID:    tenantID,
		EventType:   eventType,
		Payload:     payload,
		Status:      StatusPending,
		Attempts:    0,
		MaxAttempts: maxAttempts,
		AvailableAt: now,
		CreatedAt:   now,
	}
}

// Validate checks if the outbox item is well formed.
func (i *OutboxItem) Validate() error {
	err := validation.ValidateStruct(i,
		validation.Field(&i.TenantID,
			validation.Required,
			customValidation.NotBlank,
			validation.Length(1, 255),
		),
		validation.Field(&i.EventType,
			validation.Required,
			customValidation.EventType,
		),
		validation.Field(&i.Payload, validation.Required),
		validation.Field(&i.MaxAttempts, validation.Min(1)),
	)
	return customValidation.WrapValidationError(err)
}

// BackoffDelay computes the wait before a failed item becomes eligible again:
// base doubled per prior attempt, capped at max, plus random jitter of at most
// 25% of the capped delay. Jitter spreads retries from items that failed
// together.
func BackoffDelay(base, max time.Duration, attempts int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempts < 0 {
		attempts = 0
	}

	delay := base
	for i := 0; i < attempts; i++ {
		delay *= 2
		if delay >= max {
			delay = max
			break
		}
	}
	if delay > max {
		delay = max
	}

	jitter := time.Duration(rand.Int64N(int64(delay)/4 + 1))
	return delay + jitter
}
