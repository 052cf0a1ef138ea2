package domain

import (
	"time"

	"github.com/google/uuid"
)

// RedactedEvent is the envelope serialized into outbox payloads: the
// sanitized event plus the redaction version stamped at enqueue time.
type RedactedEvent struct {
	TenantID         string         `json:"tenant_id"`
	EventType        string         `json:"event_type"`
	Severity         Severity       `json:"severity"`
	Entity           EntityRef      `json:"entity"`
	Actor            ActorRef       `json:"actor"`
	Details          map[string]any `json:"details,omitempty"`
	RedactionVersion int            `json:"redaction_version"`
	OccurredAt       time.Time      `json:"occurred_at"`
}

// AuditLog is the durable record written by the drain worker once an outbox
// item is successfully persisted. The payload is the redacted event exactly as
// it was enqueued, including its redaction version.
type AuditLog struct {
	ID               uuid.UUID
	TenantID         string
	EventType        string
	Severity         Severity
	Payload          map[string]any
	RedactionVersion int
	OccurredAt       time.Time
	CreatedAt        time.Time
}
