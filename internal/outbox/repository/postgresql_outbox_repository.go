// Package repository implements durable outbox queue persistence.
// Repositories support both PostgreSQL and MySQL; the pick operation is the
// sole concurrency-control point and leases rows atomically so concurrent
// drain workers never process the same row twice.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/allisson/auditpipe/internal/database"
	apperrors "github.com/allisson/auditpipe/internal/errors"
	"github.com/allisson/auditpipe/internal/outbox/domain"
)

// Config holds outbox repository configuration.
type Config struct {
	// BaseDelay seeds the exponential retry backoff.
	BaseDelay time.Duration
	// MaxDelay caps the retry backoff.
	MaxDelay time.Duration
	// LeaseTimeout bounds how long a processing lease blocks re-delivery
	// after a worker crash.
	LeaseTimeout time.Duration
}

// PostgreSQLOutboxRepository implements OutboxItem persistence for PostgreSQL databases.
type PostgreSQLOutboxRepository struct {
	db     *sql.DB
	config Config
}

// NewPostgreSQLOutboxRepository creates a new PostgreSQL outbox repository instance.
func NewPostgreSQLOutboxRepository(db *sql.DB, config Config) *PostgreSQLOutboxRepository {
	return &PostgreSQLOutboxRepository{db: db, config: config}
}

// Enqueue inserts a new outbox item into the PostgreSQL database.
func (p *PostgreSQLOutboxRepository) Enqueue(ctx context.Context, item *domain.OutboxItem) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO outbox_items (id, tenant_id, event_type, payload, status, attempts, max_attempts, available_at, lock_owner, locked_at, last_error, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

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

// Pick atomically leases up to limit eligible items to lockOwner, flipping
// their status to processing in the same statement. Eligible rows are pending
// or failed rows whose available_at has passed, plus processing rows whose
// lease expired (crashed worker).
func (p *PostgreSQLOutboxRepository) Pick(ctx context.Context, limit int, lockOwner string) ([]*domain.OutboxItem, error) {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE outbox_items
			  SET status = 'processing', lock_owner = $1, locked_at = NOW()
			  WHERE id IN (
				  SELECT id FROM outbox_items
				  WHERE (status IN ('pending', 'failed') AND available_at <= NOW())
					 OR (status = 'processing' AND locked_at < NOW() - make_interval(secs => $2))
				  ORDER BY available_at ASC
				  LIMIT $3
				  FOR UPDATE SKIP LOCKED
			  )
			  RETURNING id, tenant_id, event_type, payload, status, attempts, max_attempts, available_at, lock_owner, locked_at, last_error, created_at`

	rows, err := querier.QueryContext(ctx, query, lockOwner, p.config.LeaseTimeout.Seconds(), limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to pick outbox items")
	}
	defer rows.Close() //nolint:errcheck

	items, err := scanOutboxItems(rows)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// MarkPersisted marks the given items as terminally delivered and releases
// their leases.
func (p *PostgreSQLOutboxRepository) MarkPersisted(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE outbox_items
			  SET status = 'persisted', lock_owner = NULL, locked_at = NULL
			  WHERE id = ANY($1)`

	_, err := querier.ExecContext(ctx, query, pq.Array(ids))
	if err != nil {
		return apperrors.Wrap(err, "failed to mark outbox items persisted")
	}
	return nil
}

// MarkFailed increments the item's attempt count and schedules the retry with
// exponential backoff, releasing the lease. The item is mutated to reflect the
// new state.
func (p *PostgreSQLOutboxRepository) MarkFailed(ctx context.Context, item *domain.OutboxItem, errMsg string) error {
	querier := database.GetTx(ctx, p.db)

	delay := domain.BackoffDelay(p.config.BaseDelay, p.config.MaxDelay, item.Attempts)
	item.Attempts++
	item.Status = domain.StatusFailed
	item.AvailableAt = time.Now().UTC().Add(delay)
	item.LastError = &errMsg
	item.LockOwner = nil
	item.LockedAt = nil

	query := `UPDATE outbox_items
			  SET status = 'failed', attempts = $1, available_at = $2, last_error = $3, lock_owner = NULL, locked_at = NULL
			  WHERE id = $4`

	_, err := querier.ExecContext(ctx, query, item.Attempts, item.AvailableAt, errMsg, item.ID)
	if err != nil {
		return apperrors.Wrap(err, "failed to mark outbox item failed")
	}
	return nil
}

// MarkDead marks an item as terminally failed and releases its lease.
func (p *PostgreSQLOutboxRepository) MarkDead(ctx context.Context, id uuid.UUID) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE outbox_items
			  SET status = 'dead', lock_owner = NULL, locked_at = NULL
			  WHERE id = $1`

	_, err := querier.ExecContext(ctx, query, id)
	if err != nil {
		return apperrors.Wrap(err, "failed to mark outbox item dead")
	}
	return nil
}

// CountPending counts items still awaiting delivery (pending or retryable).
func (p *PostgreSQLOutboxRepository) CountPending(ctx context.Context) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	var count int64
	query := `SELECT COUNT(*) FROM outbox_items WHERE status IN ('pending', 'failed', 'processing')`
	if err := querier.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, apperrors.Wrap(err, "failed to count pending outbox items")
	}
	return count, nil
}

// CountDead counts terminally failed items.
func (p *PostgreSQLOutboxRepository) CountDead(ctx context.Context) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	var count int64
	query := `SELECT COUNT(*) FROM outbox_items WHERE status = 'dead'`
	if err := querier.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, apperrors.Wrap(err, "failed to count dead outbox items")
	}
	return count, nil
}

// Cleanup purges terminal rows created before the cutoff. Pending, processing,
// and failed rows are never touched.
func (p *PostgreSQLOutboxRepository) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	query := `DELETE FROM outbox_items
			  WHERE status IN ('persisted', 'dead') AND created_at < $1`

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

// scanOutboxItems reads outbox rows into domain items.
func scanOutboxItems(rows *sql.Rows) ([]*domain.OutboxItem, error) {
	var items []*domain.OutboxItem
	for rows.Next() {
		var item domain.OutboxItem
		var payload []byte

		err := rows.Scan(
			&item.ID,
			&item.TenantID,
			&item.EventType,
			&payload,
			&item.Status,
			&item.Attempts,
			&item.MaxAttempts,
			&item.AvailableAt,
			&item.LockOwner,
			&item.LockedAt,
			&item.LastError,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan outbox item")
		}
		item.Payload = payload
		items = append(items, &item)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate outbox items")
	}
	return items, nil
}
