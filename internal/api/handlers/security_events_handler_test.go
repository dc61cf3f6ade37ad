package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/labscribe/labscribe/backend/internal/models"
	"github.com/labscribe/labscribe/backend/internal/services"
)

func setupEventsHandlerTest(t *testing.T) (*services.SecurityEventService, *gin.Engine) {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&models.SecurityEvent{}))

	events := services.NewSecurityEventService(db)
	handler := NewSecurityEventsHandler(events)

	router := gin.New()
	router.GET("/admin/security-events", handler.List)
	return events, router
}

func TestSecurityEventsHandler_ListHonorsLimit(t *testing.T) {
	events, router := setupEventsHandlerTest(t)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 10; i++ {
		events.Log(&models.SecurityEvent{
			Type:      models.EventAPIAccess,
			IPAddress: fmt.Sprintf("10.0.0.%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/security-events?limit=3", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	// Newest events only.
	assert.Contains(t, w.Body.String(), "10.0.0.9")
	assert.NotContains(t, w.Body.String(), "10.0.0.1\"")

	// Nonsense limits fall back to the default.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/security-events?limit=-5", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "10.0.0.0")
}
