package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/labscribe/labscribe/backend/internal/api/middleware"
	"github.com/labscribe/labscribe/backend/internal/models"
	"github.com/labscribe/labscribe/backend/internal/services"
	"github.com/labscribe/labscribe/backend/internal/validation"
)

type ReportHandler struct {
	reports *services.ReportService
	events  *services.SecurityEventService
}

func NewReportHandler(reports *services.ReportService, events *services.SecurityEventService) *ReportHandler {
	return &ReportHandler{reports: reports, events: events}
}

type GenerateRequest struct {
	Title      string `json:"title" binding:"required"`
	Prompt     string `json:"prompt" binding:"required"`
	DocumentID *uint  `json:"document_id"`
}

// Generate validates the prompt and streams the generated report as
// server-sent events. Closing the client connection cancels the upstream
// producer through the request context.
func (h *ReportHandler) Generate(c *gin.Context) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := validation.ValidatePrompt(req.Prompt)
	if !result.IsValid {
		e := &models.SecurityEvent{
			Type:      models.EventInvalidInput,
			Severity:  models.SeverityMedium,
			UserID:    &p.UserID,
			Email:     p.Email,
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}
		e.SetMetadata(map[string]interface{}{
			"reason":    "prompt_rejected",
			"errors":    result.Errors,
			"sanitized": result.Sanitized,
		})
		h.events.Log(e)
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompt rejected", "details": result.Errors})
		return
	}

	report, stream, err := h.reports.Generate(c.Request.Context(), p.UserID, validation.SanitizeText(req.Title), result.Sanitized, req.DocumentID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "report generation unavailable"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.SSEvent("report", gin.H{"uuid": report.UUID})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		chunk, open := <-stream
		if !open {
			c.SSEvent("done", gin.H{"uuid": report.UUID})
			return false
		}
		c.SSEvent("chunk", chunk)
		return true
	})
}

// List returns the caller's reports, newest first.
func (h *ReportHandler) List(c *gin.Context) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	reports, err := h.reports.ListForUser(p.UserID, 50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list reports"})
		return
	}
	c.JSON(http.StatusOK, reports)
}
