package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/labscribe/labscribe/backend/internal/metrics"
	"github.com/labscribe/labscribe/backend/internal/models"
	"github.com/labscribe/labscribe/backend/internal/services"
)

// Paths exempt from edge checks: the auth endpoints carry their own
// protections (lockout, tight limiter class) and payment webhooks are
// verified by signature.
var bypassPrefixes = []string{
	"/api/v1/auth/",
	"/api/v1/webhooks/",
}

// EdgeMaxUploadBytes is the cheap Content-Length ceiling applied before the
// application-level 20MB check ever sees the body.
const EdgeMaxUploadBytes = 25 * 1024 * 1024

// suspiciousPaths is a deny-list of probes for secrets and CMS admin panels.
// Matches are answered 404, not 403, to avoid confirming existence.
var suspiciousPaths = []string{
	".env",
	".git",
	".htaccess",
	".htpasswd",
	".aws",
	".ssh",
	"id_rsa",
	"wp-admin",
	"wp-login.php",
	"wp-content",
	"phpmyadmin",
	"config.php",
	"xmlrpc.php",
	"server-status",
}

func isBypassed(path string) bool {
	for _, prefix := range bypassPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// BlockSuspiciousPaths rejects requests to known-sensitive paths with 404
// and records the probe.
func BlockSuspiciousPaths(events *services.SecurityEventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := strings.ToLower(c.Request.URL.Path)
		for _, probe := range suspiciousPaths {
			if strings.Contains(path, probe) {
				metrics.IncBlockedPath()
				e := &models.SecurityEvent{
					Type:      models.EventSuspiciousActivity,
					Severity:  models.SeverityMedium,
					IPAddress: c.ClientIP(),
					UserAgent: c.Request.UserAgent(),
				}
				e.SetMetadata(map[string]interface{}{
					"reason": "suspicious_path",
					"path":   SanitizePath(c.Request.URL.Path),
				})
				events.Log(e)
				c.AbortWithStatus(http.StatusNotFound)
				return
			}
		}
		c.Next()
	}
}

// AdminGate restricts admin-prefixed paths, including the security event
// log, to principals carrying the admin role. Authorization rides on the
// roles claim, never on email string matching.
func AdminGate(events *services.SecurityEventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if !strings.HasPrefix(path, "/api/v1/admin") {
			c.Next()
			return
		}

		p, ok := GetPrincipal(c)
		if !ok || !p.IsAdmin() {
			e := &models.SecurityEvent{
				Type:      models.EventUnauthorizedAccess,
				Severity:  models.SeverityHigh,
				IPAddress: c.ClientIP(),
				UserAgent: c.Request.UserAgent(),
			}
			if ok {
				e.UserID = &p.UserID
				e.Email = p.Email
			}
			e.SetMetadata(map[string]interface{}{
				"reason": "admin_area_denied",
				"path":   SanitizePath(path),
			})
			events.Log(e)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		c.Next()
	}
}

// UploadGuard rejects oversized upload bodies by Content-Length before any
// byte is read, and refuses content types an upload endpoint never accepts.
func UploadGuard(uploadPrefix string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.HasPrefix(c.Request.URL.Path, uploadPrefix) || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		if c.Request.ContentLength > EdgeMaxUploadBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload exceeds maximum size"})
			return
		}

		ct := strings.ToLower(c.ContentType())
		if ct != "" && !strings.HasPrefix(ct, "multipart/form-data") {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unsupported content type for upload"})
			return
		}
		c.Next()
	}
}

// RequireSession protects page-navigation areas: without a valid session the
// browser is redirected to sign-in instead of receiving a bare 401.
func RequireSession(appPrefix string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.HasPrefix(c.Request.URL.Path, appPrefix) {
			c.Next()
			return
		}
		if _, ok := GetPrincipal(c); !ok {
			c.Redirect(http.StatusFound, "/login?error=session_expired")
			c.Abort()
			return
		}
		c.Next()
	}
}

// OriginCheck validates Origin (falling back to Referer) against the
// configured allow-list for mutating API requests. CSRF defense for
// cookie-authenticated browsers.
func OriginCheck(allowedOrigins []string, events *services.SecurityEventService) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimSuffix(o, "/")] = struct{}{}
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if !strings.HasPrefix(path, "/api/") || isBypassed(path) {
			c.Next()
			return
		}
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			c.Next()
			return
		}

		origin := c.GetHeader("Origin")
		if origin == "" {
			if ref := c.GetHeader("Referer"); ref != "" {
				origin = refererOrigin(ref)
			}
		}
		// Non-browser clients send neither header; CSRF does not apply to
		// them because they do not attach cookies ambiently.
		if origin == "" {
			c.Next()
			return
		}

		if _, ok := allowed[strings.TrimSuffix(origin, "/")]; !ok {
			e := &models.SecurityEvent{
				Type:      models.EventSecurityPolicyViolation,
				Severity:  models.SeverityMedium,
				IPAddress: c.ClientIP(),
				UserAgent: c.Request.UserAgent(),
			}
			e.SetMetadata(map[string]interface{}{
				"reason": "origin_mismatch",
				"origin": origin,
				"path":   SanitizePath(path),
			})
			events.Log(e)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
			return
		}
		c.Next()
	}
}

// refererOrigin reduces a Referer URL to scheme://host[:port].
func refererOrigin(ref string) string {
	rest := ref
	scheme := ""
	if i := strings.Index(rest, "://"); i != -1 {
		scheme = rest[:i+3]
		rest = rest[i+3:]
	}
	if i := strings.IndexByte(rest, '/'); i != -1 {
		rest = rest[:i]
	}
	return scheme + rest
}
