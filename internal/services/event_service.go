package services

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/labscribe/labscribe/backend/internal/logger"
	"github.com/labscribe/labscribe/backend/internal/models"
)

// Alerter receives events severe enough to page a human.
type Alerter interface {
	Alert(e *models.SecurityEvent)
}

// SecurityEventService is the append-only sink for security events. Writes
// are fire-and-forget: a failed insert is reported to the logger, never to
// the caller, so the primary request flow is unaffected.
type SecurityEventService struct {
	db      *gorm.DB
	alerter Alerter
}

// NewSecurityEventService returns a SecurityEventService using the provided DB.
func NewSecurityEventService(db *gorm.DB) *SecurityEventService {
	return &SecurityEventService{db: db}
}

// WithAlerter attaches a notifier for CRITICAL events.
func (s *SecurityEventService) WithAlerter(a Alerter) *SecurityEventService {
	s.alerter = a
	return s
}

// Log records an event. Insertion is synchronous so events keep their
// arrival order for recent-activity queries; failures are swallowed after a
// warning. CRITICAL events additionally fan out to the alerter off the
// request path.
func (s *SecurityEventService) Log(e *models.SecurityEvent) {
	if e == nil {
		return
	}
	if e.UUID == "" {
		e.UUID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.Severity == "" {
		e.Severity = models.SeverityLow
	}

	if err := s.db.Create(e).Error; err != nil {
		logger.WithComponent("events").WithError(err).WithField("type", e.Type).
			Warn("failed to write security event")
		return
	}

	if s.alerter != nil && e.Severity == models.SeverityCritical {
		go s.alerter.Alert(e)
	}
}

// ListRecent returns the newest events for the admin dashboard.
func (s *SecurityEventService) ListRecent(limit int) ([]models.SecurityEvent, error) {
	var res []models.SecurityEvent
	q := s.db.Order("created_at desc, id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&res).Error; err != nil {
		return nil, err
	}
	return res, nil
}

// RecentLogins returns SUCCESSFUL_LOGIN events for a user since the given
// time, oldest first, as consumed by the session anomaly detector.
func (s *SecurityEventService) RecentLogins(userID uint, since time.Time) ([]models.SecurityEvent, error) {
	var res []models.SecurityEvent
	err := s.db.
		Where("type = ? AND user_id = ? AND created_at > ?", models.EventSuccessfulLogin, userID, since).
		Order("created_at asc, id asc").
		Find(&res).Error
	if err != nil {
		return nil, err
	}
	return res, nil
}
