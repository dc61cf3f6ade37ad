package handlers

import (
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/labscribe/labscribe/backend/internal/api/middleware"
	"github.com/labscribe/labscribe/backend/internal/models"
	"github.com/labscribe/labscribe/backend/internal/services"
	"github.com/labscribe/labscribe/backend/internal/validation"
)

type UploadHandler struct {
	db        *gorm.DB
	events    *services.SecurityEventService
	uploadDir string
}

func NewUploadHandler(db *gorm.DB, events *services.SecurityEventService, uploadDir string) *UploadHandler {
	return &UploadHandler{db: db, events: events, uploadDir: uploadDir}
}

// Upload accepts a lab manual or data file, validates its metadata against
// the allow-list, and stores it under a generated name so the original
// filename never reaches the filesystem.
func (h *UploadHandler) Upload(c *gin.Context) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}

	info := validation.FileInfo{
		Name:        file.Filename,
		Size:        file.Size,
		ContentType: file.Header.Get("Content-Type"),
	}
	result := validation.ValidateFileUpload(info)
	if !result.IsValid {
		e := &models.SecurityEvent{
			Type:      models.EventMaliciousFileUpload,
			Severity:  models.SeverityCritical,
			UserID:    &p.UserID,
			Email:     p.Email,
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}
		e.SetMetadata(map[string]interface{}{
			"filename": middleware.SanitizePath(file.Filename),
			"size":     file.Size,
			"type":     info.ContentType,
			"errors":   result.Errors,
		})
		h.events.Log(e)
		c.JSON(http.StatusBadRequest, gin.H{"error": "file rejected", "details": result.Errors})
		return
	}

	doc := &models.Document{
		UUID:        uuid.NewString(),
		UserID:      p.UserID,
		Filename:    file.Filename,
		Size:        file.Size,
		ContentType: info.ContentType,
	}
	doc.StoragePath = filepath.Join(h.uploadDir, doc.UUID+filepath.Ext(file.Filename))

	if err := c.SaveUploadedFile(file, doc.StoragePath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store file"})
		return
	}
	if err := h.db.Create(doc).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record upload"})
		return
	}

	c.JSON(http.StatusCreated, doc)
}

// List returns the caller's uploaded documents, newest first.
func (h *UploadHandler) List(c *gin.Context) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var docs []models.Document
	if err := h.db.Where("user_id = ?", p.UserID).Order("created_at desc").Find(&docs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list documents"})
		return
	}
	c.JSON(http.StatusOK, docs)
}
