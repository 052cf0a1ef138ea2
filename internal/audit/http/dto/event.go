// Package dto provides data transfer objects for HTTP request and response handling.
package dto

import (
	"time"

	validation "github.com/jellydator/validation"

	auditDomain "github.com/allisson/auditpipe/internal/audit/domain"
)

// EntityRefRequest identifies the business entity an event is about.
type EntityRefRequest struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// ActorRefRequest identifies who performed the audited action.
type ActorRefRequest struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// EventRequest contains the parameters for reporting an audit event.
type EventRequest struct {
	TenantID   string           `json:"tenant_id"`
	EventType  string           `json:"event_type"`
	Severity   string           `json:"severity"`
	Entity     EntityRefRequest `json:"entity"`
	Actor      ActorRefRequest  `json:"actor"`
	Details    map[string]any   `json:"details,omitempty"`
	OccurredAt *time.Time       `json:"occurred_at,omitempty"`
}

// Validate checks if the request contains the minimum required fields.
// Full domain validation happens on the mapped event.
func (r EventRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.TenantID, validation.Required),
		validation.Field(&r.EventType, validation.Required),
		validation.Field(&r.Severity, validation.Required),
	)
}

// ToDomain maps the request to a domain audit event. A missing occurred_at
// defaults to the time of receipt.
func (r EventRequest) ToDomain() *auditDomain.AuditEvent {
	occurredAt := time.Now().UTC()
	if r.OccurredAt != nil {
		occurredAt = r.OccurredAt.UTC()
	}

	return &auditDomain.AuditEvent{
		TenantID:   r.TenantID,
		EventType:  r.EventType,
		Severity:   auditDomain.Severity(r.Severity),
		Entity:     auditDomain.EntityRef{Type: r.Entity.Type, ID: r.Entity.ID},
		Actor:      auditDomain.ActorRef{Type: r.Actor.Type, ID: r.Actor.ID},
		Details:    r.Details,
		OccurredAt: occurredAt,
	}
}

// AcceptedResponse acknowledges an accepted audit event.
type AcceptedResponse struct {
	Status string `json:"status"`
}

// FlushBufferResponse reports how many buffered events were flushed.
type FlushBufferResponse struct {
	Flushed int `json:"flushed"`
}

// BreakerStatusResponse is a snapshot of the outbox circuit breaker.
type BreakerStatusResponse struct {
	Name           string     `json:"name"`
	State          string     `json:"state"`
	WindowFailures int        `json:"window_failures"`
	NextAttemptAt  *time.Time `json:"next_attempt_at,omitempty"`
}

// PipelineStatusResponse is the operational snapshot of the whole pipeline.
type PipelineStatusResponse struct {
	Breaker       BreakerStatusResponse `json:"breaker"`
	BufferDepth   int                   `json:"buffer_depth"`
	OutboxPending int64                 `json:"outbox_pending"`
	OutboxDead    int64                 `json:"outbox_dead"`
	EmergencyMode bool                  `json:"emergency_mode"`
}
