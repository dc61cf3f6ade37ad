package services

import (
	"fmt"

	"github.com/containrrr/shoutrrr"

	"github.com/labscribe/labscribe/backend/internal/logger"
	"github.com/labscribe/labscribe/backend/internal/models"
)

// AlertNotifier forwards CRITICAL security events to an operator channel
// (Discord, Slack, email, ...) via a shoutrrr URL. Delivery is best-effort.
type AlertNotifier struct {
	url string
}

// NewAlertNotifier creates a notifier. An empty URL disables delivery.
func NewAlertNotifier(url string) *AlertNotifier {
	return &AlertNotifier{url: url}
}

// Alert sends a single event notification. Errors are logged, never returned:
// alerting must not interfere with request handling.
func (n *AlertNotifier) Alert(e *models.SecurityEvent) {
	if n.url == "" || e == nil {
		return
	}

	msg := fmt.Sprintf("[%s] %s from %s", e.Severity, e.Type, e.IPAddress)
	if e.Email != "" {
		msg += fmt.Sprintf(" (account %s)", e.Email)
	}
	if e.Metadata != "" {
		msg += "\n" + e.Metadata
	}

	if err := shoutrrr.Send(n.url, msg); err != nil {
		logger.WithComponent("alerts").WithError(err).Warn("failed to deliver security alert")
	}
}
