// Package repository implements dead letter queue persistence.
// Entries are append-only: replay stamps metadata on the original row, and no
// code path deletes from the table.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/auditpipe/internal/database"
	"github.com/allisson/auditpipe/internal/dlq/domain"
	apperrors "github.com/allisson/auditpipe/internal/errors"
)

const dlqColumns = "id, tenant_id, source_id, event_type, payload, last_error, error_category, attempts, dead_at, replayed_at, replayed_by, replay_count"

// PostgreSQLDlqRepository implements DlqEntry persistence for PostgreSQL databases.
type PostgreSQLDlqRepository struct {
	db *sql.DB
}

// NewPostgreSQLDlqRepository creates a new PostgreSQL DLQ repository instance.
func NewPostgreSQLDlqRepository(db *sql.DB) *PostgreSQLDlqRepository {
	return &PostgreSQLDlqRepository{db: db}
}

// Create inserts a new DLQ entry into the PostgreSQL database.
func (p *PostgreSQLDlqRepository) Create(ctx context.Context, entry *domain.DlqEntry) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO dlq_entries (` + dlqColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := querier.ExecContext(
		ctx,
		query,
		entry.ID,
		entry.TenantID,
		entry.SourceID,
		entry.EventType,
		[]byte(entry.Payload),
		entry.LastError,
		entry.ErrorCategory,
		entry.Attempts,
		entry.DeadAt,
		entry.ReplayedAt,
		entry.ReplayedBy,
		entry.ReplayCount,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create dlq entry")
	}
	return nil
}

// GetByID retrieves a DLQ entry by its id.
func (p *PostgreSQLDlqRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.DlqEntry, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + dlqColumns + ` FROM dlq_entries WHERE id = $1`

	entry, err := scanDlqEntry(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get dlq entry")
	}
	return entry, nil
}

// List retrieves DLQ entries newest-dead-first, optionally filtered by tenant
// and replay state.
func (p *PostgreSQLDlqRepository) List(
	ctx context.Context,
	tenantID string,
	unreplayedOnly bool,
	offset, limit int,
) ([]*domain.DlqEntry, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + dlqColumns + ` FROM dlq_entries WHERE 1=1`
	var args []any
	if tenantID != "" {
		args = append(args, tenantID)
		query += fmt.Sprintf(" AND tenant_id = $%d", len(args))
	}
	if unreplayedOnly {
		query += " AND replayed_at IS NULL"
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY dead_at DESC LIMIT $%d", len(args))
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list dlq entries")
	}
	defer rows.Close() //nolint:errcheck

	var entries []*domain.DlqEntry
	for rows.Next() {
		entry, err := scanDlqEntry(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan dlq entry")
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate dlq entries")
	}
	return entries, nil
}

// MarkReplayed stamps replay metadata on an entry, incrementing the replay
// count. The update is tenant scoped; a tenant mismatch reads as not found.
// The row itself is retained for forensic history.
func (p *PostgreSQLDlqRepository) MarkReplayed(ctx context.Context, tenantID string, id uuid.UUID, operator string) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE dlq_entries
			  SET replayed_at = $1, replayed_by = $2, replay_count = replay_count + 1
			  WHERE id = $3 AND tenant_id = $4`

	result, err := querier.ExecContext(ctx, query, time.Now().UTC(), operator, id, tenantID)
	if err != nil {
		return apperrors.Wrap(err, "failed to mark dlq entry replayed")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to read replay row count")
	}
	if affected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// CountUnreplayed counts entries never replayed, optionally scoped to a tenant.
func (p *PostgreSQLDlqRepository) CountUnreplayed(ctx context.Context, tenantID string) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	var count int64
	var err error
	if tenantID != "" {
		query := `SELECT COUNT(*) FROM dlq_entries WHERE replayed_at IS NULL AND tenant_id = $1`
		err = querier.QueryRowContext(ctx, query, tenantID).Scan(&count)
	} else {
		query := `SELECT COUNT(*) FROM dlq_entries WHERE replayed_at IS NULL`
		err = querier.QueryRowContext(ctx, query).Scan(&count)
	}
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to count unreplayed dlq entries")
	}
	return count, nil
}

// rowScanner abstracts sql.Row and sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDlqEntry reads one DLQ row into a domain entry.
func scanDlqEntry(row rowScanner) (*domain.DlqEntry, error) {
	var entry domain.DlqEntry
	var payload []byte

	err := row.Scan(
		&entry.ID,
		&entry.TenantID,
		&entry.SourceID,
		&entry.EventType,
		&payload,
		&entry.LastError,
		&entry.ErrorCategory,
		&entry.Attempts,
		&entry.DeadAt,
		&entry.ReplayedAt,
		&entry.ReplayedBy,
		&entry.ReplayCount,
	)
	if err != nil {
		return nil, err
	}
	entry.Payload = payload
	return &entry, nil
}
