// Package usecase implements the load shedding decision function and the
// emergency mode lifecycle.
package usecase

import (
	"context"

	"github.com/allisson/auditpipe/internal/shedding/domain"
)

// SheddingRepository defines the interface for shedding policy and settings
// persistence operations.
type SheddingRepository interface {
	GetPoliciesByTenant(ctx context.Context, tenantID string) ([]*domain.Policy, error)
	UpsertPolicy(ctx context.Context, policy *domain.Policy) error
	GetEmergencyMode(ctx context.Context) (bool, error)
	SetEmergencyMode(ctx context.Context, enabled bool) error
}
