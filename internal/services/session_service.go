package services

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/labscribe/labscribe/backend/internal/models"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionService owns the session lifecycle: creation at sign-in, activity
// tracking, and soft invalidation. Rows are never deleted.
type SessionService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewSessionService returns a SessionService using the provided DB.
func NewSessionService(db *gorm.DB) *SessionService {
	return &SessionService{db: db, now: time.Now}
}

// Create opens a new active session for the user.
func (s *SessionService) Create(userID uint, ip, userAgent string) (*models.Session, error) {
	session := &models.Session{
		UserID:       userID,
		SessionID:    uuid.NewString(),
		IPAddress:    ip,
		UserAgent:    userAgent,
		IsActive:     true,
		LastActivity: s.now(),
	}
	if err := s.db.Create(session).Error; err != nil {
		return nil, err
	}
	return session, nil
}

// FindActive looks up the active session matching (userID, sessionID).
func (s *SessionService) FindActive(userID uint, sessionID string) (*models.Session, error) {
	var session models.Session
	err := s.db.
		Where("user_id = ? AND session_id = ? AND is_active = ?", userID, sessionID, true).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

// Touch updates the session's last-activity timestamp.
func (s *SessionService) Touch(sessionID string) error {
	return s.db.Model(&models.Session{}).
		Where("session_id = ? AND is_active = ?", sessionID, true).
		Update("last_activity", s.now()).Error
}

// Invalidate soft-deletes a session.
func (s *SessionService) Invalidate(sessionID string) error {
	now := s.now()
	return s.db.Model(&models.Session{}).
		Where("session_id = ? AND is_active = ?", sessionID, true).
		Updates(map[string]interface{}{"is_active": false, "ended_at": now}).Error
}

// InvalidateAllForUser ends every active session for the user, used when an
// account is locked or an anomaly demands re-authentication everywhere.
func (s *SessionService) InvalidateAllForUser(userID uint) (int64, error) {
	now := s.now()
	res := s.db.Model(&models.Session{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Updates(map[string]interface{}{"is_active": false, "ended_at": now})
	return res.RowsAffected, res.Error
}

// SweepStale deactivates active sessions created more than maxAge ago.
// Called on a schedule by the session sweeper job.
func (s *SessionService) SweepStale(maxAge time.Duration) (int64, error) {
	now := s.now()
	cutoff := now.Add(-maxAge)
	res := s.db.Model(&models.Session{}).
		Where("is_active = ? AND created_at < ?", true, cutoff).
		Updates(map[string]interface{}{"is_active": false, "ended_at": now})
	return res.RowsAffected, res.Error
}
