package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timmy/examwatch/internal/api/middleware"
	"github.com/timmy/examwatch/internal/domain"
	"github.com/timmy/examwatch/internal/logger"
	"github.com/timmy/examwatch/internal/repository"
	"github.com/timmy/examwatch/internal/service"
)

// EventSubmitter queues an event for asynchronous handling.
type EventSubmitter interface {
	Submit(eventID string) bool
}

// PipelineHandler exposes the extraction pipeline entry point and its
// operator endpoints.
type PipelineHandler struct {
	pipeline *service.PipelineService
	queue    EventSubmitter
}

// NewPipelineHandler creates a new pipeline handler.
func NewPipelineHandler(pipeline *service.PipelineService, queue EventSubmitter) *PipelineHandler {
	return &PipelineHandler{pipeline: pipeline, queue: queue}
}

// Handoff handles POST /api/v1/pipeline/handoff.
func (h *PipelineHandler) Handoff(c *gin.Context) {
	ctx := c.Request.Context()

	var req service.HandoffPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.IngestionEventID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ingestion_event_id is required"})
		return
	}
	ctx = logger.SetEventID(ctx, req.IngestionEventID)

	if _, err := h.pipeline.GetEvent(ctx, req.IngestionEventID); err != nil {
		h.writeLookupError(c, err)
		return
	}

	if !h.queue.Submit(req.IngestionEventID) {
		logger.CtxWarn(ctx, "Pipeline queue full, handoff rejected")
		c.Header("Retry-After", "30")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "pipeline busy"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"ingestion_event_id": req.IngestionEventID,
		"status":             "accepted",
	})
}

// RetryEvent handles POST /api/v1/pipeline/events/:id/retry.
func (h *PipelineHandler) RetryEvent(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	event, err := h.pipeline.RetryEvent(ctx, id)
	if errors.Is(err, repository.ErrStaleTransition) {
		c.JSON(http.StatusConflict, gin.H{"error": "only failed events can be retried"})
		return
	}
	if err != nil {
		h.writeLookupError(c, err)
		return
	}

	if !h.queue.Submit(event.ID) {
		// The event stays queued; the recovery sweep will pick it up.
		c.JSON(http.StatusAccepted, gin.H{"event": event, "scheduled": false})
		return
	}
	logger.CtxInfo(ctx, "Event %s requeued for retry", event.ID)
	c.JSON(http.StatusAccepted, gin.H{"event": event, "scheduled": true})
}

// ListEvents handles GET /api/v1/pipeline/events.
func (h *PipelineHandler) ListEvents(c *gin.Context) {
	status := domain.EventStatus(c.Query("status"))
	switch status {
	case "", domain.EventStatusQueued, domain.EventStatusProcessing, domain.EventStatusDone,
		domain.EventStatusFailed, domain.EventStatusSkipped:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status: " + string(status)})
		return
	}

	limit := boundedInt(c.DefaultQuery("limit", "50"), 50, 200)
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}

	events, err := h.pipeline.ListEvents(c.Request.Context(), status, limit, offset)
	if err != nil {
		middleware.GetLogger(c).WithError(err).Error("Failed to list events")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *PipelineHandler) writeLookupError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrEventNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	middleware.GetLogger(c).WithError(err).Error("Event lookup failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// boundedInt parses a positive integer, falling back to def and capping at max.
func boundedInt(raw string, def, max int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
