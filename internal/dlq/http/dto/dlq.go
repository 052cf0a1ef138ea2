// Package dto provides data transfer objects for dead letter queue HTTP
// requests and responses.
package dto

import (
	"encoding/json"
	"time"

	validation "github.com/jellydator/validation"

	"github.com/allisson/auditpipe/internal/dlq/domain"
	outboxDomain "github.com/allisson/auditpipe/internal/outbox/domain"
)

// DlqEntryResponse represents a dead letter queue entry in API responses.
type DlqEntryResponse struct {
	ID            string          `json:"id"`
	TenantID      string          `json:"tenant_id"`
	SourceID      string          `json:"source_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	LastError     string          `json:"last_error"`
	ErrorCategory string          `json:"error_category"`
	Attempts      int             `json:"attempts"`
	DeadAt        time.Time       `json:"dead_at"`
	ReplayedAt    *time.Time      `json:"replayed_at,omitempty"`
	ReplayedBy    *string         `json:"replayed_by,omitempty"`
	ReplayCount   int             `json:"replay_count"`
}

// FromDomain converts a domain DLQ entry to a response DTO.
func FromDomain(entry *domain.DlqEntry) DlqEntryResponse {
	return DlqEntryResponse{
		ID:            entry.ID.String(),
		TenantID:      entry.TenantID,
		SourceID:      entry.SourceID.String(),
		EventType:     entry.EventType,
		Payload:       entry.Payload,
		LastError:     entry.LastError,
		ErrorCategory: string(entry.ErrorCategory),
		Attempts:      entry.Attempts,
		DeadAt:        entry.DeadAt,
		ReplayedAt:    entry.ReplayedAt,
		ReplayedBy:    entry.ReplayedBy,
		ReplayCount:   entry.ReplayCount,
	}
}

// ListResponse represents a paginated list of DLQ entries.
type ListResponse struct {
	Entries []DlqEntryResponse `json:"entries"`
	Offset  int                `json:"offset"`
	Limit   int                `json:"limit"`
}

// NewListResponse converts a slice of domain entries to a list response.
func NewListResponse(entries []*domain.DlqEntry, offset, limit int) ListResponse {
	out := ListResponse{
		Entries: make([]DlqEntryResponse, 0, len(entries)),
		Offset:  offset,
		Limit:   limit,
	}
	for _, entry := range entries {
		out.Entries = append(out.Entries, FromDomain(entry))
	}
	return out
}

// ReplayRequest represents a request to replay a dead event.
type ReplayRequest struct {
	TenantID   string `json:"tenant_id"`
	OperatorID string `json:"operator_id"`
}

// Validate checks that the replay request names the owning tenant and a valid operator.
func (r ReplayRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.TenantID, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.OperatorID, validation.Required, validation.Length(1, 255)),
	)
}

// ReplayResponse represents the outcome of a replay operation.
type ReplayResponse struct {
	OutboxItemID string `json:"outbox_item_id"`
	Status       string `json:"status"`
}

// NewReplayResponse builds a replay response from the enqueued outbox item.
func NewReplayResponse(item *outboxDomain.OutboxItem) ReplayResponse {
	return ReplayResponse{
		OutboxItemID: item.ID.String(),
		Status:       string(item.Status),
	}
}
