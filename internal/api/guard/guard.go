// Package guard implements the composable request-security envelope applied
// to every API route: method gating, authentication, session-anomaly
// checks, input validation, rate limiting, and audit logging around the
// wrapped business handler.
package guard

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/labscribe/labscribe/backend/internal/api/middleware"
	"github.com/labscribe/labscribe/backend/internal/metrics"
	"github.com/labscribe/labscribe/backend/internal/models"
	"github.com/labscribe/labscribe/backend/internal/ratelimit"
	"github.com/labscribe/labscribe/backend/internal/services"
	"github.com/labscribe/labscribe/backend/internal/validation"
)

// FailurePolicy makes each check's behavior on internal error explicit and
// auditable instead of scattering implicit defaults across components.
type FailurePolicy int

const (
	// FailOpen lets the request through when the check itself breaks.
	FailOpen FailurePolicy = iota
	// FailClosed rejects the request when the check itself breaks.
	FailClosed
)

// Failure posture per stage. Authentication is the only stage where
// availability loses to strictness.
const (
	AuthPolicy      = FailClosed
	AnomalyPolicy   = FailOpen
	RateLimitPolicy = FailOpen
)

// MaxBodyBytes is the default serialized-body cap applied before handlers
// run. Upload routes override it; the edge middleware has its own ceiling.
const MaxBodyBytes = 1 << 20

// RouteConfig declares the protection profile of a single route. It is
// validated when the route is registered, not per request.
type RouteConfig struct {
	// RequireAuth rejects requests without a resolved principal.
	RequireAuth bool
	// AllowedMethods is the accepted HTTP verb set. Mandatory.
	AllowedMethods []string
	// RateLimit is the per-route sliding-window limit. Nil disables the
	// per-route check (the edge limiter still applies).
	RateLimit *ratelimit.Rule
	// Sensitive enables the session-anomaly check before the handler runs.
	Sensitive bool
	// SkipBodyScan bypasses the serialized-body injection scan, for routes
	// that accept multipart uploads validated by their own rules.
	SkipBodyScan bool
	// MaxBodyBytes overrides the default body cap when positive.
	MaxBodyBytes int64
}

// Guard wires the security services into route wrappers.
type Guard struct {
	events     *services.SecurityEventService
	limiter    *ratelimit.Limiter
	detector   *services.AnomalyDetector
	production bool
}

// New creates a Guard. production selects generic 500 bodies.
func New(events *services.SecurityEventService, limiter *ratelimit.Limiter, detector *services.AnomalyDetector, production bool) *Guard {
	return &Guard{events: events, limiter: limiter, detector: detector, production: production}
}

// Protect wraps handler with the declared protection profile. It panics at
// registration time on an invalid config so misdeclared routes never ship.
func (g *Guard) Protect(cfg RouteConfig, handler gin.HandlerFunc) gin.HandlerFunc {
	if len(cfg.AllowedMethods) == 0 {
		panic("guard: route config must declare at least one allowed method")
	}
	methods := make(map[string]struct{}, len(cfg.AllowedMethods))
	for _, m := range cfg.AllowedMethods {
		methods[strings.ToUpper(m)] = struct{}{}
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = MaxBodyBytes
	}

	return func(c *gin.Context) {
		start := time.Now()

		// Stage 1: method gate.
		if _, ok := methods[c.Request.Method]; !ok {
			g.reject(c, models.EventSecurityPolicyViolation, models.SeverityMedium, "method", map[string]interface{}{
				"reason": "method_not_allowed",
				"method": c.Request.Method,
			})
			c.AbortWithStatusJSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
			return
		}

		// Stage 2: authentication. The principal was resolved (or not) by
		// the Authenticate middleware; absence here is terminal.
		principal, authed := middleware.GetPrincipal(c)
		if cfg.RequireAuth && !authed {
			g.reject(c, models.EventUnauthorizedAccess, models.SeverityMedium, "auth", map[string]interface{}{
				"reason": "missing_or_invalid_session",
			})
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		// Stage 3: session-anomaly check for sensitive operations.
		if cfg.Sensitive && authed {
			result := g.detector.Detect(principal.UserID, principal.SessionID, services.RequestContext{
				IPAddress: c.ClientIP(),
				UserAgent: c.Request.UserAgent(),
			})
			if result.Anomalous {
				metrics.IncAnomaly()
				g.rejectAs(c, principal, models.EventSessionAnomaly, anomalySeverity(result.Reasons), "anomaly", map[string]interface{}{
					"reasons": reasonStrings(result.Reasons),
				})
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "session anomaly detected",
					"code":  "reauthentication_required",
				})
				return
			}
		}

		// Stage 4: input validation over the serialized body.
		if !cfg.SkipBodyScan && c.Request.Body != nil && c.Request.ContentLength != 0 {
			body, tooLarge, err := readBody(c, maxBody)
			if err != nil {
				g.rejectAs(c, principal, models.EventInvalidInput, models.SeverityMedium, "input", map[string]interface{}{
					"reason": "unreadable_body",
				})
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
				return
			}
			if tooLarge {
				g.rejectAs(c, principal, models.EventInvalidInput, models.SeverityMedium, "input", map[string]interface{}{
					"reason":    "body_too_large",
					"max_bytes": maxBody,
				})
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "request body too large"})
				return
			}
			if errs := validation.ScanBody(body); len(errs) > 0 {
				g.rejectAs(c, principal, models.EventInvalidInput, models.SeverityMedium, "input", map[string]interface{}{
					"reason": "injection_patterns",
					"errors": errs,
				})
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": errs})
				return
			}
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}

		// Stage 5: per-route rate limit. Authenticated traffic is limited
		// per user so shared IPs do not starve each other; anonymous
		// traffic falls back to per-IP limiting.
		if cfg.RateLimit != nil {
			identifier := "ip:" + c.ClientIP()
			if authed {
				identifier = fmt.Sprintf("user:%d", principal.UserID)
			}
			decision := g.limiter.CheckRule(identifier+":"+c.FullPath(), *cfg.RateLimit)
			middleware.SetRateLimitHeaders(c, decision)
			if !decision.Allowed {
				metrics.IncRateLimitRejected()
				g.rejectAs(c, principal, models.EventRateLimitExceeded, models.SeverityMedium, "rate_limit", map[string]interface{}{
					"limit":  decision.Limit,
					"window": cfg.RateLimit.Window.String(),
				})
				c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
				return
			}
		}

		// Stage 6/7: run the handler; convert panics to a generic 500 and
		// audit every invocation exactly once.
		g.invoke(c, principal, handler, start)
	}
}

// invoke runs the business handler and writes the audit event.
func (g *Guard) invoke(c *gin.Context, principal *middleware.Principal, handler gin.HandlerFunc, start time.Time) {
	defer func() {
		if r := recover(); r != nil {
			elapsed := time.Since(start)
			metrics.IncGuardRequest("error")
			g.audit(c, principal, false, elapsed, fmt.Sprintf("%v", r))

			message := "internal server error"
			if !g.production {
				// Real failure detail is only surfaced outside production.
				message = fmt.Sprintf("handler error: %v", r)
			}
			if !c.Writer.Written() {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": message})
			} else {
				c.Abort()
			}
			return
		}

		metrics.IncGuardRequest("allowed")
		g.audit(c, principal, true, time.Since(start), "")
	}()

	handler(c)
}

// audit records the per-invocation access event. Exactly one per request
// that reaches stage 6.
func (g *Guard) audit(c *gin.Context, principal *middleware.Principal, success bool, elapsed time.Duration, errMsg string) {
	severity := models.SeverityLow
	if !success {
		severity = models.SeverityHigh
	}
	e := &models.SecurityEvent{
		Type:      models.EventAPIAccess,
		Severity:  severity,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	if principal != nil {
		e.UserID = &principal.UserID
		e.Email = principal.Email
	}
	meta := map[string]interface{}{
		"success":    success,
		"method":     c.Request.Method,
		"path":       middleware.SanitizePath(c.Request.URL.Path),
		"status":     c.Writer.Status(),
		"elapsed_ms": elapsed.Milliseconds(),
	}
	if errMsg != "" {
		meta["error"] = errMsg
	}
	e.SetMetadata(meta)
	g.events.Log(e)
}

func (g *Guard) reject(c *gin.Context, t models.EventType, sev models.Severity, outcome string, meta map[string]interface{}) {
	g.rejectAs(c, nil, t, sev, outcome, meta)
}

func (g *Guard) rejectAs(c *gin.Context, principal *middleware.Principal, t models.EventType, sev models.Severity, outcome string, meta map[string]interface{}) {
	metrics.IncGuardRequest(outcome)
	e := &models.SecurityEvent{
		Type:      t,
		Severity:  sev,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	if principal != nil {
		e.UserID = &principal.UserID
		e.Email = principal.Email
	}
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["path"] = middleware.SanitizePath(c.Request.URL.Path)
	e.SetMetadata(meta)
	g.events.Log(e)
}

// readBody drains up to max+1 bytes; exceeding max reports tooLarge without
// reading the remainder.
func readBody(c *gin.Context, max int64) (body []byte, tooLarge bool, err error) {
	body, err = io.ReadAll(io.LimitReader(c.Request.Body, max+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(body)) > max {
		return nil, true, nil
	}
	return body, false, nil
}

func anomalySeverity(reasons []services.ReasonCode) models.Severity {
	for _, r := range reasons {
		if r == services.ReasonSessionNotFound || r == services.ReasonImpossibleTravel {
			return models.SeverityHigh
		}
	}
	return models.SeverityMedium
}

func reasonStrings(reasons []services.ReasonCode) []string {
	out := make([]string, len(reasons))
	for i, r := range reasons {
		out[i] = string(r)
	}
	return out
}
