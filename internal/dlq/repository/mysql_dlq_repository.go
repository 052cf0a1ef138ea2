package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/auditpipe/internal/database"
	"github.com/allisson/auditpipe/internal/dlq/domain"
	apperrors "github.com/allisson/auditpipe/internal/errors"
)

// MySQLDlqRepository implements DlqEntry persistence for MySQL databases.
type MySQLDlqRepository struct {
	db *sql.DB
}

// NewMySQLDlqRepository creates a new MySQL DLQ repository instance.
func NewMySQLDlqRepository(db *sql.DB) *MySQLDlqRepository {
	return &MySQLDlqRepository{db: db}
}

// Create inserts a new DLQ entry into the MySQL database.
func (m *MySQLDlqRepository) Create(ctx context.Context, entry *domain.DlqEntry) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO dlq_entries (` + dlqColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

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
func (m *MySQLDlqRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.DlqEntry, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + dlqColumns + ` FROM dlq_entries WHERE id = ?`

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
func (m *MySQLDlqRepository) List(
	ctx context.Context,
	tenantID string,
	unreplayedOnly bool,
	offset, limit int,
) ([]*domain.DlqEntry, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + dlqColumns + ` FROM dlq_entries WHERE 1=1`
	var args []any
	if tenantID != "" {
		query += " AND tenant_id = ?"
		args = append(args, tenantID)
	}
	if unreplayedOnly {
		query += " AND replayed_at IS NULL"
	}
	query += " ORDER BY dead_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

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
func (m *MySQLDlqRepository) MarkReplayed(ctx context.Context, tenantID string, id uuid.UUID, operator string) error {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE dlq_entries
			  SET replayed_at = ?, replayed_by = ?, replay_count = replay_count + 1
			  WHERE id = ? AND tenant_id = ?`

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
func (m *MySQLDlqRepository) CountUnreplayed(ctx context.Context, tenantID string) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	var count int64
	var err error
	if tenantID != "" {
		query := `SELECT COUNT(*) FROM dlq_entries WHERE replayed_at IS NULL AND tenant_id = ?`
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
