// Package http provides HTTP handlers for dead letter queue inspection and
// replay.
package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/allisson/auditpipe/internal/dlq/http/dto"
	"github.com/allisson/auditpipe/internal/dlq/usecase"
	apperrors "github.com/allisson/auditpipe/internal/errors"
	"github.com/allisson/auditpipe/internal/httputil"
)

// DlqHandler handles HTTP requests for dead letter queue operations.
type DlqHandler struct {
	useCase usecase.DlqUseCase
	logger  *slog.Logger
}

// NewDlqHandler creates a new DLQ handler instance.
func NewDlqHandler(useCase usecase.DlqUseCase, logger *slog.Logger) *DlqHandler {
	return &DlqHandler{
		useCase: useCase,
		logger:  logger,
	}
}

// ListHandler handles GET requests to list DLQ entries. Supports tenant_id
// and unreplayed_only query filters plus offset/limit pagination.
func (h *DlqHandler) ListHandler(c *gin.Context) {
	offset, limit, err := httputil.ParsePagination(c)
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	tenantID := c.Query("tenant_id")
	unreplayedOnly := false
	if raw := c.Query("unreplayed_only"); raw != "" {
		unreplayedOnly, err = strconv.ParseBool(raw)
		if err != nil {
			httputil.HandleBadRequestGin(c, err, h.logger)
			return
		}
	}

	entries, err := h.useCase.List(c.Request.Context(), tenantID, unreplayedOnly, offset, limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.NewListResponse(entries, offset, limit))
}

// GetHandler handles GET requests for a single DLQ entry.
func (h *DlqHandler) GetHandler(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	entry, err := h.useCase.GetByID(c.Request.Context(), id)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.FromDomain(entry))
}

// ReplayHandler handles POST requests to replay a dead event back through the
// outbox.
func (h *DlqHandler) ReplayHandler(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	var req dto.ReplayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, apperrors.Wrap(apperrors.ErrInvalidInput, err.Error()), h.logger)
		return
	}

	item, err := h.useCase.Replay(c.Request.Context(), req.TenantID, id, req.OperatorID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.NewReplayResponse(item))
}

// StatsHandler handles GET requests for DLQ backlog counts.
func (h *DlqHandler) StatsHandler(c *gin.Context) {
	count, err := h.useCase.CountUnreplayed(c.Request.Context(), c.Query("tenant_id"))
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, gin.H{"unreplayed": count})
}
