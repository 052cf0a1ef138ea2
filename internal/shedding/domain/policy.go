// Package domain defines the load shedding policy entities and decisions.
package domain

import (
	"time"

	"github.com/google/uuid"

	validation "github.com/jellydator/validation"

	customValidation "github.com/allisson/auditpipe/internal/validation"
)

// Reason explains a load shedding decision.
type Reason string

const (
	// ReasonNeverDrop marks events on the fixed allowlist that are always
	// accepted, emergency mode included.
	ReasonNeverDrop Reason = "never_drop"
	// ReasonRequired marks events accepted because their policy (or the
	// fail-open default) requires them.
	ReasonRequired Reason = "required"
	// ReasonSampled marks events decided by a sampling policy.
	ReasonSampled Reason = "sampled"
	// ReasonDisabled marks events rejected by a disabled policy.
	ReasonDisabled Reason = "disabled"
	// ReasonEmergencyDrop marks events rejected because emergency mode is on.
	ReasonEmergencyDrop Reason = "emergency_drop"
)

// Decision is the outcome of a load shedding evaluation, computed fresh per
// call.
type Decision struct {
	Accepted bool   `json:"accepted"`
	Reason   Reason `json:"reason"`
}

// Mode is the disposition a policy applies to matching events.
type Mode string

const (
	// ModeRequired always accepts matching events.
	ModeRequired Mode = "required"
	// ModeSampled accepts matching events with probability SampleRate.
	ModeSampled Mode = "sampled"
	// ModeDisabled always rejects matching events.
	ModeDisabled Mode = "disabled"
)

// IsValid reports whether the mode is one of the known values.
func (m Mode) IsValid() bool {
	switch m {
	case ModeRequired, ModeSampled, ModeDisabled:
		return true
	}
	return false
}

// Policy is a durable per-tenant shedding rule for one event type. A tenant's
// policies are cached together; event types without a policy row default to
// required.
type Policy struct {
	ID         uuid.UUID
	TenantID   string
	EventType  string
	Mode       Mode
	SampleRate float64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Validate checks if the policy is well formed.
func (p *Policy) Validate() error {
	err := validation.ValidateStruct(p,
		validation.Field(&p.TenantID,
			validation.Required,
			customValidation.NotBlank,
			validation.Length(1, 255),
		),
		validation.Field(&p.EventType,
			validation.Required,
			customValidation.EventType,
		),
		validation.Field(&p.Mode,
			validation.Required,
			validation.By(validateMode),
		),
		validation.Field(&p.SampleRate, validation.Min(0.0), validation.Max(1.0)),
	)
	return customValidation.WrapValidationError(err)
}

// validateMode validates a mode value.
func validateMode(value interface{}) error {
	mode, ok := value.(Mode)
	if !ok {
		return validation.NewError("validation_mode", "must be a mode")
	}
	if !mode.IsValid() {
		return validation.NewError("validation_mode", "must be one of: required, sampled, disabled")
	}
	return nil
}
