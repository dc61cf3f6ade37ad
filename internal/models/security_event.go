package models

import (
	"encoding/json"
	"time"
)

// EventType enumerates the kinds of security-relevant occurrences recorded
// in the event log.
type EventType string

const (
	EventFailedLogin             EventType = "FAILED_LOGIN"
	EventSuccessfulLogin         EventType = "SUCCESSFUL_LOGIN"
	EventUnauthorizedAccess      EventType = "UNAUTHORIZED_ACCESS"
	EventMaliciousFileUpload     EventType = "MALICIOUS_FILE_UPLOAD"
	EventRateLimitExceeded       EventType = "RATE_LIMIT_EXCEEDED"
	EventSuspiciousActivity      EventType = "SUSPICIOUS_ACTIVITY"
	EventSessionAnomaly          EventType = "SESSION_ANOMALY"
	EventSecurityPolicyViolation EventType = "SECURITY_POLICY_VIOLATION"
	EventInvalidInput            EventType = "INVALID_INPUT"
	EventAPIAccess               EventType = "API_ACCESS"
	EventAPIAbuse                EventType = "API_ABUSE"
	EventClientError             EventType = "CLIENT_ERROR"
)

// Severity grades how alarming an event is.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// SecurityEvent is an immutable, append-only record of a security-relevant
// occurrence. The application only ever inserts rows; retention is an
// external data-lifecycle concern.
type SecurityEvent struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UUID      string    `json:"uuid" gorm:"uniqueIndex"`
	Type      EventType `json:"type" gorm:"index"`
	Severity  Severity  `json:"severity" gorm:"index"`
	UserID    *uint     `json:"user_id,omitempty" gorm:"index"`
	Email     string    `json:"email,omitempty"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	Metadata  string    `json:"metadata" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// SetMetadata serializes the map into the Metadata column. Marshal failures
// leave the column empty rather than blocking event creation.
func (e *SecurityEvent) SetMetadata(m map[string]interface{}) {
	if len(m) == 0 {
		return
	}
	if b, err := json.Marshal(m); err == nil {
		e.Metadata = string(b)
	}
}

// MetadataMap decodes the Metadata column for consumers such as the admin view.
func (e *SecurityEvent) MetadataMap() map[string]interface{} {
	if e.Metadata == "" {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(e.Metadata), &m); err != nil {
		return nil
	}
	return m
}
