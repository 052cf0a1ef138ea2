// Package domain defines the dead letter queue entities.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ErrorCategory classifies why an item exhausted its delivery attempts.
type ErrorCategory string

const (
	// CategoryPersistence marks repeated audit log write failures.
	CategoryPersistence ErrorCategory = "persistence"
	// CategoryTimeout marks repeated per-item deadline expirations.
	CategoryTimeout ErrorCategory = "timeout"
	// CategoryUnknown marks failures that fit no known category.
	CategoryUnknown ErrorCategory = "unknown"
)

// DlqEntry archives a permanently failed outbox item for forensic history and
// manual replay. Entries are never deleted; replay stamps metadata and
// re-enqueues the payload, keeping the original row.
type DlqEntry struct {
	ID            uuid.UUID
	TenantID      string
	SourceID      uuid.UUID
	EventType     string
	Payload       json.RawMessage
	LastError     string
	ErrorCategory ErrorCategory
	Attempts      int
	DeadAt        time.Time
	ReplayedAt    *time.Time
	ReplayedBy    *string
	ReplayCount   int
}

// NewDlqEntry archives a dead outbox item carrying its full payload and the
// error that exhausted it.
func NewDlqEntry(
	sourceID uuid.UUID,
	tenantID, eventType string,
	payload json.RawMessage,
	lastError string,
	category ErrorCategory,
	attempts int,
) *DlqEntry {
	return &DlqEntry{
		ID:            uuid.Must(uuid.NewV7()),
		TenantID:      tenantID,
		SourceID:      sourceID,
		EventType:     eventType,
		Payload:       payload,
		LastError:     lastError,
		ErrorCategory: category,
		Attempts:      attempts,
		DeadAt:        time.Now().UTC(),
	}
}

// IsReplayed reports whether the entry has been replayed at least once.
func (e *DlqEntry) IsReplayed() bool {
	return e.ReplayedAt != nil
}
