// Package http provides HTTP handlers for audit event ingestion and pipeline
// administration.
package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/allisson/auditpipe/internal/audit/http/dto"
	auditUseCase "github.com/allisson/auditpipe/internal/audit/usecase"
	"github.com/allisson/auditpipe/internal/breaker"
	"github.com/allisson/auditpipe/internal/httputil"
	customValidation "github.com/allisson/auditpipe/internal/validation"
)

// EventHandler handles HTTP requests for audit event ingestion.
type EventHandler struct {
	writer auditUseCase.WriterUseCase
	logger *slog.Logger
}

// NewEventHandler creates a new event handler with required dependencies.
func NewEventHandler(writer auditUseCase.WriterUseCase, logger *slog.Logger) *EventHandler {
	return &EventHandler{writer: writer, logger: logger}
}

// CreateHandler accepts an audit event for asynchronous delivery.
// POST /v1/events
// Returns 202 Accepted for every well-formed request: delivery degradation
// (shedding, buffering) is absorbed by the writer and never surfaces here.
func (h *EventHandler) CreateHandler(c *gin.Context) {
	var req dto.EventRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	event := req.ToDomain()
	if err := event.Validate(); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	h.writer.Write(c.Request.Context(), event)
	c.JSON(http.StatusAccepted, dto.AcceptedResponse{Status: "accepted"})
}

// OutboxCounter reports outbox queue depths for the status endpoint.
type OutboxCounter interface {
	CountPending(ctx context.Context) (int64, error)
	CountDead(ctx context.Context) (int64, error)
}

// EmergencyReader reports whether emergency load shedding is active.
type EmergencyReader interface {
	IsEmergencyMode() bool
}

// PipelineHandler handles HTTP requests for pipeline administration.
type PipelineHandler struct {
	writer    auditUseCase.WriterUseCase
	breaker   *breaker.CircuitBreaker
	outbox    OutboxCounter
	emergency EmergencyReader
	logger    *slog.Logger
}

// NewPipelineHandler creates a new pipeline administration handler.
func NewPipelineHandler(
	writer auditUseCase.WriterUseCase,
	circuitBreaker *breaker.CircuitBreaker,
	outbox OutboxCounter,
	emergency EmergencyReader,
	logger *slog.Logger,
) *PipelineHandler {
	return &PipelineHandler{
		writer:    writer,
		breaker:   circuitBreaker,
		outbox:    outbox,
		emergency: emergency,
		logger:    logger,
	}
}

// StatusHandler reports an operational snapshot of the pipeline.
// GET /v1/pipeline/status
func (h *PipelineHandler) StatusHandler(c *gin.Context) {
	ctx := c.Request.Context()

	pending, err := h.outbox.CountPending(ctx)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}
	dead, err := h.outbox.CountDead(ctx)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	stats := h.breaker.Stats()
	breakerStatus := dto.BreakerStatusResponse{
		Name:           stats.Name,
		State:          stats.State.String(),
		WindowFailures: stats.WindowFailures,
	}
	if !stats.NextAttemptAt.IsZero() {
		nextAttempt := stats.NextAttemptAt
		breakerStatus.NextAttemptAt = &nextAttempt
	}

	c.JSON(http.StatusOK, dto.PipelineStatusResponse{
		Breaker:       breakerStatus,
		BufferDepth:   h.writer.BufferDepth(),
		OutboxPending: pending,
		OutboxDead:    dead,
		EmergencyMode: h.emergency.IsEmergencyMode(),
	})
}

// FlushBufferHandler drains the overflow buffer into the outbox.
// POST /v1/pipeline/flush-buffer
func (h *PipelineHandler) FlushBufferHandler(c *gin.Context) {
	flushed, err := h.writer.FlushBuffer(c.Request.Context())
	if err != nil {
		if h.logger != nil {
			h.logger.Warn("buffer flush stopped early",
				slog.Int("flushed", flushed),
				slog.Any("error", err),
			)
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "buffer flush stopped early",
			"flushed": flushed,
		})
		return
	}

	c.JSON(http.StatusOK, dto.FlushBufferResponse{Flushed: flushed})
}
