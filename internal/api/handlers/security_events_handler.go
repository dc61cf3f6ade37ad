package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/labscribe/labscribe/backend/internal/services"
)

type SecurityEventsHandler struct {
	events *services.SecurityEventService
}

func NewSecurityEventsHandler(events *services.SecurityEventService) *SecurityEventsHandler {
	return &SecurityEventsHandler{events: events}
}

// List returns recent security events for the admin dashboard.
func (h *SecurityEventsHandler) List(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	events, err := h.events.ListRecent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list security events"})
		return
	}
	c.JSON(http.StatusOK, events)
}
