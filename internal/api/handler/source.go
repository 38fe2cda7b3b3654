package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/examwatch/internal/api/middleware"
	"github.com/timmy/examwatch/internal/repository"
)

// SourceHandler serves change-detection history.
type SourceHandler struct {
	runRepo *repository.RunRepository
}

// NewSourceHandler creates a new source handler.
func NewSourceHandler(runRepo *repository.RunRepository) *SourceHandler {
	return &SourceHandler{runRepo: runRepo}
}

// ListRuns handles GET /api/v1/sources/:id/runs.
func (h *SourceHandler) ListRuns(c *gin.Context) {
	sourceID := c.Param("id")
	limit := boundedInt(c.DefaultQuery("limit", "20"), 20, 200)

	runs, err := h.runRepo.ListBySource(c.Request.Context(), sourceID, limit)
	if err != nil {
		middleware.GetLogger(c).WithError(err).Error("Failed to list runs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"source_id": sourceID,
		"runs":      runs,
	})
}
