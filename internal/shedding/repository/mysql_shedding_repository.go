package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/allisson/auditpipe/internal/database"
	apperrors "github.com/allisson/auditpipe/internal/errors"
	"github.com/allisson/auditpipe/internal/shedding/domain"
)

// MySQLSheddingRepository implements shedding policy persistence for MySQL
// databases.
type MySQLSheddingRepository struct {
	db *sql.DB
}

// NewMySQLSheddingRepository creates a new MySQL shedding repository instance.
func NewMySQLSheddingRepository(db *sql.DB) *MySQLSheddingRepository {
	return &MySQLSheddingRepository{db: db}
}

// GetPoliciesByTenant retrieves all shedding policies for a tenant.
func (m *MySQLSheddingRepository) GetPoliciesByTenant(
	ctx context.Context,
	tenantID string,
) ([]*domain.Policy, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT id, tenant_id, event_type, mode, sample_rate, created_at, updated_at
			  FROM shedding_policies
			  WHERE tenant_id = ?
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
func (m *MySQLSheddingRepository) UpsertPolicy(ctx context.Context, policy *domain.Policy) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO shedding_policies (id, tenant_id, event_type, mode, sample_rate, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE mode = VALUES(mode), sample_rate = VALUES(sample_rate), updated_at = VALUES(updated_at)`

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
func (m *MySQLSheddingRepository) GetEmergencyMode(ctx context.Context) (bool, error) {
	querier := database.GetTx(ctx, m.db)

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
func (m *MySQLSheddingRepository) SetEmergencyMode(ctx context.Context, enabled bool) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO shedding_settings (id, emergency_mode, updated_at)
			  VALUES (1, ?, ?)
			  ON DUPLICATE KEY UPDATE emergency_mode = VALUES(emergency_mode), updated_at = VALUES(updated_at)`

	_, err := querier.ExecContext(ctx, query, enabled, time.Now().UTC())
	if err != nil {
		return apperrors.Wrap(err, "failed to set emergency mode")
	}
	return nil
}
