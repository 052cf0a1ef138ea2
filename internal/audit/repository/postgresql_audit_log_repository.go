// Package repository implements durable audit log persistence.
// Repositories support both PostgreSQL and MySQL; payloads are stored as JSON
// exactly as they were redacted, together with the redaction version.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	auditDomain "github.com/allisson/auditpipe/internal/audit/domain"
	"github.com/allisson/auditpipe/internal/database"
	apperrors "github.com/allisson/auditpipe/internal/errors"
)

// PostgreSQLAuditLogRepository implements AuditLog persistence for PostgreSQL databases.
type PostgreSQLAuditLogRepository struct {
	db *sql.DB
}

// Create inserts a new audit log record into the PostgreSQL database.
func (p *PostgreSQLAuditLogRepository) Create(ctx context.Context, log *auditDomain.AuditLog) error {
	querier := database.GetTx(ctx, p.db)

	payload, err := json.Marshal(log.Payload)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal audit log payload")
	}

	query := `INSERT INTO audit_logs (id, tenant_id, event_type, severity, payload, redaction_version, occurred_at, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = querier.ExecContext(
		ctx,
		query,
		log.ID,
		log.TenantID,
		log.EventType,
		log.Severity,
		payload,
		log.RedactionVersion,
		log.OccurredAt,
		log.CreatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create audit log")
	}
	return nil
}

// NewPostgreSQLAuditLogRepository creates a new PostgreSQL AuditLog repository instance.
func NewPostgreSQLAuditLogRepository(db *sql.DB) *PostgreSQLAuditLogRepository {
	return &PostgreSQLAuditLogRepository{db: db}
}
