// Package dto provides data transfer objects for load shedding HTTP requests
// and responses.
package dto

import (
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	"github.com/allisson/auditpipe/internal/shedding/domain"
)

// EmergencyModeRequest represents a request to change the emergency mode flag.
type EmergencyModeRequest struct {
	Enabled *bool `json:"enabled"`
}

// Validate checks that the request carries an explicit flag value.
func (r EmergencyModeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Enabled, validation.NotNil),
	)
}

// EmergencyModeResponse represents the current emergency mode flag.
type EmergencyModeResponse struct {
	Enabled bool `json:"enabled"`
}

// InvalidateCacheRequest represents a cache invalidation request. An empty
// tenant id invalidates every tenant.
type InvalidateCacheRequest struct {
	TenantID string `json:"tenant_id"`
}

// PolicyRequest represents a request to create or update a shedding policy.
type PolicyRequest struct {
	TenantID   string  `json:"tenant_id"`
	EventType  string  `json:"event_type"`
	Mode       string  `json:"mode"`
	SampleRate float64 `json:"sample_rate"`
}

// ToDomain converts the request to a domain policy with a fresh id and
// timestamps. Validation happens on the domain entity.
func (r PolicyRequest) ToDomain() *domain.Policy {
	now := time.Now().UTC()
	return &domain.Policy{
		ID:         uuid.Must(uuid.NewV7()),
		TenantID:   r.TenantID,
		EventType:  r.EventType,
		Mode:       domain.Mode(r.Mode),
		SampleRate: r.SampleRate,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// PolicyResponse represents a shedding policy in API responses.
type PolicyResponse struct {
	ID         string  `json:"id"`
	TenantID   string  `json:"tenant_id"`
	EventType  string  `json:"event_type"`
	Mode       string  `json:"mode"`
	SampleRate float64 `json:"sample_rate"`
}

// NewPolicyResponse converts a domain policy to a response DTO.
func NewPolicyResponse(policy *domain.Policy) PolicyResponse {
	return PolicyResponse{
		ID:         policy.ID.String(),
		TenantID:   policy.TenantID,
		EventType:  policy.EventType,
		Mode:       string(policy.Mode),
		SampleRate: policy.SampleRate,
	}
}
