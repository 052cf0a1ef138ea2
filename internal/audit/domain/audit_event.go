// Package domain defines the core audit event entities and types.
package domain

import (
	"time"

	validation "github.com/jellydator/validation"

	customValidation "github.com/allisson/auditpipe/internal/validation"
)

// Severity classifies how governance-relevant an audit event is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// IsValid reports whether the severity is one of the known values.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

// EntityRef identifies the business entity an event is about.
type EntityRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// ActorRef identifies who performed the audited action.
type ActorRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// AuditEvent is a governance-relevant action reported by a caller. Events are
// immutable once constructed; the redaction pass returns a sanitized copy and
// never mutates the original.
type AuditEvent struct {
	TenantID   string         `json:"tenant_id"`
	EventType  string         `json:"event_type"`
	Severity   Severity       `json:"severity"`
	Entity     EntityRef      `json:"entity"`
	Actor      ActorRef       `json:"actor"`
	Details    map[string]any `json:"details,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Validate checks if the audit event is well formed.
func (e *AuditEvent) Validate() error {
	err := validation.ValidateStruct(e,
		validation.Field(&e.TenantID,
			validation.Required,
			customValidation.NotBlank,
			validation.Length(1, 255),
		),
		validation.Field(&e.EventType,
			validation.Required,
			customValidation.EventType,
		),
		validation.Field(&e.Severity,
			validation.Required,
			validation.By(validateSeverity),
		),
		validation.Field(&e.OccurredAt, validation.Required),
	)
	return customValidation.WrapValidationError(err)
}

// validateSeverity validates a severity value.
func validateSeverity(value interface{}) error {
	severity, ok := value.(Severity)
	if !ok {
		return validation.NewError("validation_severity", "must be a severity")
	}
	if !severity.IsValid() {
		return validation.NewError("validation_severity", "must be one of: info, warning, critical")
	}
	return nil
}
