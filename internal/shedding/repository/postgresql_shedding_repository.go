// Package repository implements load shedding policy and settings persistence.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/allisson/auditpipe/internal/database"
	apperrors "github.com/allisson/auditpipe/internal/errors"
	"github.com/allisson/auditpipe/internal/shedding/domain"
)

// PostgreSQLSheddingRepository implements shedding policy persistence for
// PostgreSQL databases. It also owns the single durable settings row that
// backs the process-wide emergency mode flag.
type PostgreSQLSheddingRepository struct {
	db *sql.DB
}

// NewPostgreSQLSheddingRepository creates a new PostgreSQL shedding repository instance.
func NewPostgreSQLSheddingRepository(db *sql.DB) *PostgreSQLSheddingRepository {
	return &PostgreSQLSheddingRepository{db: db}
}

// GetPoliciesByTenant retrieves all shedding policies for a tenant.
func (p *PostgreSQLSheddingRepository) GetPoliciesByTenant(
	ctx context.Context,
	tenantID string,
) ([]*domain.Policy, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, tenant_id, event_type, mode, sample_rate, created_at, updated_at
			  FROM shedding_policies
			  WHERE tenant_id = $1
			  ORDER BY event_type ASC`

	rows, err := querier.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list shedding policies")
	}
	defer rows.Close() //nolint:errcheck

	var policies []*domain.Policy
	for rows.Next() {
		var policy domain.Policy
		err := rows.Scan(
			&policy.ID,
			&policy.TenantID,
			&policy.EventType,
			&policy.Mode,
			&policy.SampleRate,
			&policy.CreatedAt,
			&policy.UpdatedAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan shedding policy")
		}
		policies = append(policies, &policy)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate shedding policies")
	}
	return policies, nil
}

// UpsertPolicy inserts a policy or updates the existing row for the same
// tenant and event type.
func (p *PostgreSQLSheddingRepository) UpsertPolicy(ctx context.Context, policy *domain.Policy) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO shedding_policies (id, tenant_id, event_type, mode, sample_rate, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)
			  ON CONFLICT (tenant_id, event_type)
			  DO UPDATE SET mode = EXCLUDED.mode, sample_rate = EXCLUDED.sample_rate, updated_at = EXCLUDED.updated_at`

	_, err := querier.ExecContext(
		ctx,
		query,
		policy.ID,
		policy.TenantID,
		policy.EventType,
		policy.Mode,
		policy.SampleRate,
		policy.CreatedAt,
		policy.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to upsert shedding policy")
	}
	return nil
}

// GetEmergencyMode reads the durable emergency mode flag. A missing settings
// row reads as disabled.
func (p *PostgreSQLSheddingRepository) GetEmergencyMode(ctx context.Context) (bool, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT emergency_mode FROM shedding_settings WHERE id = 1`

	var enabled bool
	err := querier.QueryRowContext(ctx, query).Scan(&enabled)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, apperrors.Wrap(err, "failed to get emergency mode")
	}
	return enabled, nil
}

// SetEmergencyMode persists the emergency mode flag.
func (p *PostgreSQLSheddingRepository) SetEmergencyMode(ctx context.Context, enabled bool) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO shedding_settings (id, emergency_mode, updated_at)
			  VALUES (1, $1, $2)
			  ON CONFLICT (id)
			  DO UPDATE SET emergency_mode = EXCLUDED.emergency_mode, updated_at = EXCLUDED.updated_at`

	_, err := querier.ExecContext(ctx, query, enabled, time.Now().UTC())
	if err != nil {
		return apperrors.Wrap(err, "failed to set emergency mode")
	}
	return nil
}
