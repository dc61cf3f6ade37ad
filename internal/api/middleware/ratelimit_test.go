package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/labscribe/labscribe/backend/internal/models"
	"github.com/labscribe/labscribe/backend/internal/ratelimit"
)

func TestGlobalRateLimit_PerIPAndClass(t *testing.T) {
	db, events := setupEdgeTest(t)

	limiter := ratelimit.New(ratelimit.NewMemoryStore(), map[string]ratelimit.Rule{
		ratelimit.ClassAPI:     {Requests: 2, Window: time.Minute},
		ratelimit.ClassDefault: {Requests: 100, Window: time.Minute},
	})

	router := gin.New()
	router.Use(GlobalRateLimit(limiter, events))
	router.GET("/api/v1/reports", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/about", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/reports", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/reports", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// The default class carries its own bucket, so other paths still pass.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/about", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var n int64
	assert.NoError(t, db.Model(&models.SecurityEvent{}).Where("type = ?", models.EventRateLimitExceeded).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestGlobalRateLimit_BypassesAuthPaths(t *testing.T) {
	_, events := setupEdgeTest(t)

	// A one-request allowance that would trip instantly if applied.
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), map[string]ratelimit.Rule{
		ratelimit.ClassAuth:    {Requests: 1, Window: time.Minute},
		ratelimit.ClassDefault: {Requests: 1, Window: time.Minute},
	})

	router := gin.New()
	router.Use(GlobalRateLimit(limiter, events))
	router.POST("/api/v1/auth/login", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRouteClass(t *testing.T) {
	assert.Equal(t, ratelimit.ClassUpload, routeClass("/api/v1/uploads"))
	assert.Equal(t, ratelimit.ClassAuth, routeClass("/api/v1/auth/login"))
	assert.Equal(t, ratelimit.ClassAPI, routeClass("/api/v1/reports"))
	assert.Equal(t, ratelimit.ClassDefault, routeClass("/app/reports"))
}
