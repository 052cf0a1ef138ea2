package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	auditDomain "github.com/allisson/auditpipe/internal/audit/domain"
	"github.com/allisson/auditpipe/internal/database"
	apperrors "github.com/allisson/auditpipe/internal/errors"
)

// MySQLAuditLogRepository implements AuditLog persistence for MySQL databases.
type MySQLAuditLogRepository struct {
	db *sql.DB
}

// Create inserts a new audit log record into the MySQL database.
func (m *MySQLAuditLogRepository) Create(ctx context.Context, log *auditDomain.AuditLog) error {
	querier := database.GetTx(ctx, m.db)

	payload, err := json.Marshal(log.Payload)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal audit log payload")
	}

	query := `INSERT INTO audit_logs (id, tenant_id, event_type, severity, payload, redaction_version, occurred_at, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

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

// NewMySQLAuditLogRepository creates a new MySQL AuditLog repository instance.
func NewMySQLAuditLogRepository(db *sql.DB) *MySQLAuditLogRepository {
	return &MySQLAuditLogRepository{db: db}
}
