package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/labscribe/labscribe/backend/internal/metrics"
	"github.com/labscribe/labscribe/backend/internal/models"
	"github.com/labscribe/labscribe/backend/internal/ratelimit"
	"github.com/labscribe/labscribe/backend/internal/services"
)

// GlobalRateLimit applies the per-(IP, route class) edge limit that runs in
// addition to the per-route guard limiter. Defense in depth: this bucket is
// keyed by client IP regardless of authentication.
func GlobalRateLimit(limiter *ratelimit.Limiter, events *services.SecurityEventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if isBypassed(path) {
			c.Next()
			return
		}

		class := routeClass(path)
		decision := limiter.Check("ip:"+c.ClientIP(), class)
		SetRateLimitHeaders(c, decision)
		if !decision.Allowed {
			metrics.IncRateLimitRejected()
			e := &models.SecurityEvent{
				Type:      models.EventRateLimitExceeded,
				Severity:  models.SeverityMedium,
				IPAddress: c.ClientIP(),
				UserAgent: c.Request.UserAgent(),
			}
			e.SetMetadata(map[string]interface{}{
				"scope": "edge",
				"class": class,
				"path":  SanitizePath(path),
			})
			events.Log(e)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// SetRateLimitHeaders attaches the standard X-RateLimit-* headers plus
// Retry-After when the request was rejected.
func SetRateLimitHeaders(c *gin.Context, d ratelimit.Decision) {
	if d.Limit <= 0 {
		return
	}
	c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	if !d.Reset.IsZero() {
		c.Header("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
	}
	if !d.Allowed {
		c.Header("Retry-After", strconv.Itoa(int(d.RetryAfter.Seconds())))
	}
}

// routeClass maps a request path to its rate-limit class.
func routeClass(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/v1/uploads"):
		return ratelimit.ClassUpload
	case strings.HasPrefix(path, "/api/v1/auth/"):
		return ratelimit.ClassAuth
	case strings.HasPrefix(path, "/api/"):
		return ratelimit.ClassAPI
	default:
		return ratelimit.ClassDefault
	}
}
