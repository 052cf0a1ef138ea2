// Package http provides HTTP handlers for load shedding administration.
package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/allisson/auditpipe/internal/errors"
	"github.com/allisson/auditpipe/internal/httputil"
	"github.com/allisson/auditpipe/internal/shedding/domain"
	"github.com/allisson/auditpipe/internal/shedding/http/dto"
)

// SheddingAdmin defines the administrative load shedding operations exposed
// over HTTP.
type SheddingAdmin interface {
	SetEmergencyMode(ctx context.Context, enabled bool) error
	IsEmergencyMode() bool
	InvalidateCache(tenantID string)
	UpsertPolicy(ctx context.Context, policy *domain.Policy) error
}

// SheddingHandler handles HTTP requests for load shedding administration.
type SheddingHandler struct {
	admin  SheddingAdmin
	logger *slog.Logger
}

// NewSheddingHandler creates a new shedding handler instance.
func NewSheddingHandler(admin SheddingAdmin, logger *slog.Logger) *SheddingHandler {
	return &SheddingHandler{
		admin:  admin,
		logger: logger,
	}
}

// GetEmergencyModeHandler handles GET requests for the emergency mode flag.
func (h *SheddingHandler) GetEmergencyModeHandler(c *gin.Context) {
	c.JSON(http.StatusOK, dto.EmergencyModeResponse{Enabled: h.admin.IsEmergencyMode()})
}

// SetEmergencyModeHandler handles PUT requests to change the emergency mode
// flag.
func (h *SheddingHandler) SetEmergencyModeHandler(c *gin.Context) {
	var req dto.EmergencyModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, apperrors.Wrap(apperrors.ErrInvalidInput, err.Error()), h.logger)
		return
	}

	if err := h.admin.SetEmergencyMode(c.Request.Context(), *req.Enabled); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.EmergencyModeResponse{Enabled: *req.Enabled})
}

// InvalidateCacheHandler handles POST requests to drop cached shedding
// policies, for one tenant or globally.
func (h *SheddingHandler) InvalidateCacheHandler(c *gin.Context) {
	var req dto.InvalidateCacheRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	h.admin.InvalidateCache(req.TenantID)

	scope := req.TenantID
	if scope == "" {
		scope = "all"
	}
	c.JSON(http.StatusOK, gin.H{"invalidated": scope})
}

// UpsertPolicyHandler handles PUT requests to create or update a shedding
// policy.
func (h *SheddingHandler) UpsertPolicyHandler(c *gin.Context) {
	var req dto.PolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	policy := req.ToDomain()
	if err := h.admin.UpsertPolicy(c.Request.Context(), policy); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.NewPolicyResponse(policy))
}
