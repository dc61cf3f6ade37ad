package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	guardRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "labscribe_guard_requests_total",
		Help: "Total number of requests evaluated by the request guard, by outcome",
	}, []string{"outcome"})
	rateLimitRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "labscribe_rate_limit_rejected_total",
		Help: "Total number of requests rejected by rate limiting",
	})
	anomaliesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "labscribe_session_anomalies_total",
		Help: "Total number of requests flagged by the session anomaly detector",
	})
	blockedPathsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "labscribe_blocked_paths_total",
		Help: "Total number of requests to deny-listed sensitive paths",
	})
)

// Register registers Prometheus collectors. Call once at startup.
func Register(registry *prometheus.Registry) {
	registry.MustRegister(guardRequestsTotal, rateLimitRejectedTotal, anomaliesTotal, blockedPathsTotal)
}

// IncGuardRequest increments the guard outcome counter. Outcome is one of
// "allowed", "method", "auth", "anomaly", "input", "rate_limit", "error".
func IncGuardRequest(outcome string) { guardRequestsTotal.WithLabelValues(outcome).Inc() }

// IncRateLimitRejected increments the rate-limit rejection counter.
func IncRateLimitRejected() { rateLimitRejectedTotal.Inc() }

// IncAnomaly increments the anomaly counter.
func IncAnomaly() { anomaliesTotal.Inc() }

// IncBlockedPath increments the deny-listed path counter.
func IncBlockedPath() { blockedPathsTotal.Inc() }
