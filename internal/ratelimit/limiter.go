package ratelimit

import (
	"time"

	"github.com/labscribe/labscribe/backend/internal/logger"
)

// Rule configures a sliding-window limit for one route class.
type Rule struct {
	Requests int
	Window   time.Duration
}

// Route classes carry distinct limits: uploads are expensive, generic API
// calls are not.
const (
	ClassUpload  = "upload"
	ClassAPI     = "api"
	ClassAuth    = "auth"
	ClassDefault = "default"
)

// DefaultRules returns the per-class limits applied at the edge.
func DefaultRules() map[string]Rule {
	return map[string]Rule{
		ClassUpload:  {Requests: 10, Window: time.Minute},
		ClassAPI:     {Requests: 100, Window: time.Minute},
		ClassAuth:    {Requests: 10, Window: time.Minute},
		ClassDefault: {Requests: 60, Window: time.Minute},
	}
}

// Decision is the limiter's verdict for a single request.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	Reset      time.Time
}

// Limiter checks (identifier, route class) pairs against configured rules.
// Store failures fail open: availability is favored over strict limiting.
type Limiter struct {
	store Store
	rules map[string]Rule
}

// New creates a limiter over the given store with the given class rules.
// Unknown classes fall back to ClassDefault.
func New(store Store, rules map[string]Rule) *Limiter {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Limiter{store: store, rules: rules}
}

// Check applies the class rule for the identifier.
func (l *Limiter) Check(identifier, class string) Decision {
	rule, ok := l.rules[class]
	if !ok {
		rule = l.rules[ClassDefault]
	}
	return l.CheckRule(identifier+":"+class, rule)
}

// CheckRule applies an explicit rule, used by guarded routes carrying their
// own limit configuration.
func (l *Limiter) CheckRule(key string, rule Rule) Decision {
	if rule.Requests <= 0 || rule.Window <= 0 {
		return Decision{Allowed: true, Limit: rule.Requests, Remaining: rule.Requests}
	}

	count, err := l.store.Increment(key, rule.Window)
	if err != nil {
		// Fail open: a broken counter store must not take the API down.
		logger.WithComponent("ratelimit").WithError(err).Warn("counter store failed, allowing request")
		return Decision{Allowed: true, Limit: rule.Requests, Remaining: rule.Requests}
	}

	remaining := rule.Requests - count
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:    count <= rule.Requests,
		Limit:      rule.Requests,
		Remaining:  remaining,
		RetryAfter: rule.Window,
		Reset:      time.Now().Add(rule.Window),
	}
}
