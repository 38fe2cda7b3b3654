package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/examwatch/internal/api/middleware"
	"github.com/timmy/examwatch/internal/logger"
	"github.com/timmy/examwatch/internal/service"
)

// Drainer drains the notification queue once.
type Drainer interface {
	Drain(ctx context.Context, requestID string) (*service.DrainStats, error)
}

// NotificationHandler triggers notification delivery.
type NotificationHandler struct {
	drainer Drainer
}

// NewNotificationHandler creates a new notification handler.
func NewNotificationHandler(drainer Drainer) *NotificationHandler {
	return &NotificationHandler{drainer: drainer}
}

// Drain handles POST /api/v1/notifications/drain. The drain runs in the
// background; the response only acknowledges the request.
func (h *NotificationHandler) Drain(c *gin.Context) {
	requestID := middleware.GetRequestID(c)
	ctx := context.WithoutCancel(c.Request.Context())

	go func() {
		if _, err := h.drainer.Drain(ctx, requestID); err != nil {
			logger.FromContext(ctx).WithError(err).Error("Notification drain failed")
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"request_id": requestID})
}
