package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/labscribe/labscribe/backend/internal/models"
	"github.com/labscribe/labscribe/backend/internal/services"
	"github.com/labscribe/labscribe/backend/internal/util"
)

type ClientErrorHandler struct {
	events *services.SecurityEventService
}

func NewClientErrorHandler(events *services.SecurityEventService) *ClientErrorHandler {
	return &ClientErrorHandler{events: events}
}

type ClientErrorReport struct {
	Error     string `json:"error" binding:"required"`
	ErrorInfo string `json:"errorInfo"`
	Timestamp string `json:"timestamp"`
	UserAgent string `json:"userAgent"`
	URL       string `json:"url"`
}

// Report accepts browser-side error reports. This endpoint is deliberately
// unauthenticated: crash reporting must work when the session is broken.
func (h *ClientErrorHandler) Report(c *gin.Context) {
	var req ClientErrorReport
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	e := &models.SecurityEvent{
		Type:      models.EventClientError,
		Severity:  models.SeverityLow,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	e.SetMetadata(map[string]interface{}{
		"error":      util.Truncate(util.SanitizeForLog(req.Error), 500),
		"error_info": util.Truncate(util.SanitizeForLog(req.ErrorInfo), 1000),
		"timestamp":  req.Timestamp,
		"user_agent": util.Truncate(util.SanitizeForLog(req.UserAgent), 200),
		"url":        util.Truncate(util.SanitizeForLog(req.URL), 500),
	})
	h.events.Log(e)

	c.JSON(http.StatusAccepted, gin.H{"status": "recorded"})
}
