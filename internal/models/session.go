package models

import (
	"time"
)

// Session tracks an issued login session. Sessions are soft-deleted: on
// sign-out, anomaly detection, or concurrent-session eviction they are
// marked inactive and stamped with EndedAt, never removed.
type Session struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	UserID       uint       `json:"user_id" gorm:"index"`
	SessionID    string     `json:"session_id" gorm:"uniqueIndex"`
	IPAddress    string     `json:"ip_address"`
	UserAgent    string     `json:"user_agent"`
	IsActive     bool       `json:"is_active" gorm:"index;default:true"`
	LastActivity time.Time  `json:"last_activity"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Age returns the elapsed time since the session was created.
func (s *Session) Age(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}
