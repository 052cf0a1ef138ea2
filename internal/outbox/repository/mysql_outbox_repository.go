package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/auditpipe/internal/database"
	apperrors "github.com/allisson/auditpipe/internal/errors"
	"github.com/allisson/auditpipe/internal/outbox/domain"
)

// MySQLOutboxRepository implements OutboxItem persistence for MySQL databases.
type MySQLOutboxRepository struct {
	db     *sql.DB
	config Config
}

// NewMySQLOutboxRepository creates a new MySQL outbox repository instance.
func NewMySQLOutboxRepository(db *sql.DB, config Config) *MySQLOutboxRepository {
	return &MySQLOutboxRepository{db: db, config: config}
}

// Enqueue inserts a new outbox item into the MySQL database.
func (m *MySQLOutboxRepository) Enqueue(ctx context.Context, item *domain.OutboxItem) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO outbox_items (id, tenant_id, event_type, payload, status, attempts, max_attempts, available_at, lock_owner, locked_at, last_error, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := querier.ExecContext(
		ctx,
		query,
		item.ID,
		item.TenantID,
		item.EventType,
		[]byte(item.Payload),
		item.Status,
		item.Attempts,
		item.MaxAttempts,
		item.AvailableAt,
		item.LockOwner,
		item.LockedAt,
		item.LastError,
		item.CreatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to enqueue outbox item")
	}
	return nil
}

// Pick atomically leases up to limit eligible items to lockOwner. MySQL has
// no UPDATE ... RETURNING, so the lease runs as select-for-update plus update
// inside a single transaction.
func (m *MySQLOutboxRepository) Pick(ctx context.Context, limit int, lockOwner string) ([]*domain.OutboxItem, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to begin pick transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	query := `SELECT id, tenant_id, event_type, payload, status, attempts, max_attempts, available_at, lock_owner, locked_at, last_error, created_at
			  FROM outbox_items
			  WHERE (status IN ('pending', 'failed') AND available_at <= NOW())
				 OR (status = 'processing' AND locked_at < NOW() - INTERVAL ? SECOND)
			  ORDER BY available_at ASC
			  LIMIT ?
			  FOR UPDATE SKIP LOCKED`

	rows, err := tx.QueryContext(ctx, query, int64(m.config.LeaseTimeout.Seconds()), limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to pick outbox items")
	}

	items, err := scanOutboxItems(rows)
	rows.Close() //nolint:errcheck
	if err != nil {
		return nil, err
	}

	if len(items) == 0 {
		if err := tx.Commit(); err != nil {
			return nil, apperrors.Wrap(err, "failed to commit pick transaction")
		}
		return nil, nil
	}

	lockedAt := time.Now().UTC()
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}

	update := `UPDATE outbox_items SET status = 'processing', lock_owner = ?, locked_at = ? WHERE id IN (` +
		placeholders(len(ids)) + `)`
	args := make([]any, 0, len(ids)+2)
	args = append(args, lockOwner, lockedAt)
	for _, id := range ids {
		args = append(args, id)
	}

	if _, err := tx.ExecContext(ctx, update, args...); err != nil {
		return nil, apperrors.Wrap(err, "failed to lease outbox items")
	}
	if err := tx.Commit(); err != nil {
		return nil, apperrors.Wrap(err, "failed to commit pick transaction")
	}

	owner := lockOwner
	for _, item := range items {
		item.Status = domain.StatusProcessing
		item.LockOwner = &owner
		item.LockedAt = &lockedAt
	}
	return items, nil
}

// MarkPersisted marks the given items as terminally delivered and releases
// their leases.
func (m *MySQLOutboxRepository) MarkPersisted(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE outbox_items SET status = 'persisted', lock_owner = NULL, locked_at = NULL WHERE id IN (` +
		placeholders(len(ids)) + `)`
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}

	if _, err := querier.ExecContext(ctx, query, args...); err != nil {
		return apperrors.Wrap(err, "failed to mark outbox items persisted")
	}
	return nil
}

// MarkFailed increments the item's attempt count and schedules the retry with
// exponential backoff, releasing the lease. The item is mutated to reflect the
// new state.
func (m *MySQLOutboxRepository) MarkFailed(ctx context.Context, item *domain.OutboxItem, errMsg string) error {
	querier := database.GetTx(ctx, m.db)

	delay := domain.BackoffDelay(m.config.BaseDelay, m.config.MaxDelay, item.Attempts)
	item.Attempts++
	item.Status = domain.StatusFailed
	item.AvailableAt = time.Now().UTC().Add(delay)
	item.LastError = &errMsg
	item.LockOwner = nil
	item.LockedAt = nil

	query := `UPDATE outbox_items
			  SET status = 'failed', attempts = ?, available_at = ?, last_error = ?, lock_owner = NULL, locked_at = NULL
			  WHERE id = ?`

	if _, err := querier.ExecContext(ctx, query, item.Attempts, item.AvailableAt, errMsg, item.ID); err != nil {
		return apperrors.Wrap(err, "failed to mark outbox item failed")
	}
	return nil
}

// MarkDead marks an item as terminally failed and releases its lease.
func (m *MySQLOutboxRepository) MarkDead(ctx context.Context, id uuid.UUID) error {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE outbox_items SET status = 'dead', lock_owner = NULL, locked_at = NULL WHERE id = ?`

	if _, err := querier.ExecContext(ctx, query, id); err != nil {
		return apperrors.Wrap(err, "failed to mark outbox item dead")
	}
	return nil
}

// CountPending counts items still awaiting delivery (pending or retryable).
func (m *MySQLOutboxRepository) CountPending(ctx context.Context) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	var count int64
	query := `SELECT COUNT(*) FROM outbox_items WHERE status IN ('pending', 'failed', 'processing')`
	if err := querier.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, apperrors.Wrap(err, "failed to count pending outbox items")
	}
	return count, nil
}

// CountDead counts terminally failed items.
func (m *MySQLOutboxRepository) CountDead(ctx context.Context) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	var count int64
	query := `SELECT COUNT(*) FROM outbox_items WHERE status = 'dead'`
	if err := querier.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, apperrors.Wrap(err, "failed to count dead outbox items")
	}
	return count, nil
}

// Cleanup purges terminal rows created before the cutoff. Pending, processing,
// and failed rows are never touched.
func (m *MySQLOutboxRepository) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	query := `DELETE FROM outbox_items WHERE status IN ('persisted', 'dead') AND created_at < ?`

	result, err := querier.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to cleanup outbox items")
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to read cleanup row count")
	}
	return deleted, nil
}

// placeholders builds a comma-separated list of n question marks.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
