package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/labscribe/labscribe/backend/internal/models"
)

func setupAnomalyTest(t *testing.T) (*gorm.DB, *SecurityEventService, *SessionService, *AnomalyDetector) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	assert.NoError(t, err)

	err = db.AutoMigrate(&models.SecurityEvent{}, &models.Session{})
	assert.NoError(t, err)

	events := NewSecurityEventService(db)
	sessions := NewSessionService(db)
	detector := NewAnomalyDetector(db, events, sessions)

	return db, events, sessions, detector
}

func logLogin(events *SecurityEventService, userID uint, ip, userAgent string, at time.Time) {
	events.Log(&models.SecurityEvent{
		Type:      models.EventSuccessfulLogin,
		Severity:  models.SeverityLow,
		UserID:    &userID,
		IPAddress: ip,
		UserAgent: userAgent,
		CreatedAt: at,
	})
}

func TestAnomalyDetector_CleanSessionPasses(t *testing.T) {
	_, events, sessions, detector := setupAnomalyTest(t)

	session, err := sessions.Create(1, "10.0.0.1", "agent-a")
	assert.NoError(t, err)
	logLogin(events, 1, "10.0.0.1", "agent-a", time.Now().Add(-time.Minute))

	result := detector.Detect(1, session.SessionID, RequestContext{IPAddress: "10.0.0.1", UserAgent: "agent-a"})
	assert.False(t, result.Anomalous)
	assert.Empty(t, result.Reasons)
}

func TestAnomalyDetector_MissingSessionShortCircuits(t *testing.T) {
	_, _, _, detector := setupAnomalyTest(t)

	result := detector.Detect(1, "no-such-session", RequestContext{IPAddress: "10.0.0.1", UserAgent: "agent-a"})
	assert.True(t, result.Anomalous)
	assert.Equal(t, []ReasonCode{ReasonSessionNotFound}, result.Reasons)
}

func TestAnomalyDetector_TooManyIPsInOneHour(t *testing.T) {
	_, events, sessions, detector := setupAnomalyTest(t)

	session, err := sessions.Create(1, "10.0.0.1", "agent-a")
	assert.NoError(t, err)

	now := time.Now()
	for i, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4"} {
		logLogin(events, 1, ip, "agent-a", now.Add(-time.Duration(40-i)*time.Minute))
	}

	result := detector.Detect(1, session.SessionID, RequestContext{IPAddress: "10.0.0.4", UserAgent: "agent-a"})
	assert.True(t, result.Anomalous)
	assert.Contains(t, result.Reasons, ReasonMultipleIPAddresses)
}

func TestAnomalyDetector_ThreeIPsAreFine(t *testing.T) {
	_, events, sessions, detector := setupAnomalyTest(t)

	session, err := sessions.Create(1, "10.0.0.1", "agent-a")
	assert.NoError(t, err)

	now := time.Now()
	for i, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		logLogin(events, 1, ip, "agent-a", now.Add(-time.Duration(30-i)*time.Minute))
	}

	result := detector.Detect(1, session.SessionID, RequestContext{IPAddress: "10.0.0.3", UserAgent: "agent-a"})
	assert.NotContains(t, result.Reasons, ReasonMultipleIPAddresses)
}

func TestAnomalyDetector_UserAgentMismatch(t *testing.T) {
	_, events, sessions, detector := setupAnomalyTest(t)

	session, err := sessions.Create(1, "10.0.0.1", "agent-a")
	assert.NoError(t, err)
	logLogin(events, 1, "10.0.0.1", "agent-a", time.Now().Add(-time.Hour))

	result := detector.Detect(1, session.SessionID, RequestContext{IPAddress: "10.0.0.1", UserAgent: "agent-b"})
	assert.True(t, result.Anomalous)
	assert.Contains(t, result.Reasons, ReasonUserAgentMismatch)

	// The agent seen at login never flags.
	result = detector.Detect(1, session.SessionID, RequestContext{IPAddress: "10.0.0.1", UserAgent: "agent-a"})
	assert.NotContains(t, result.Reasons, ReasonUserAgentMismatch)
}

func TestAnomalyDetector_SessionTooOld(t *testing.T) {
	db, _, _, detector := setupAnomalyTest(t)

	old := &models.Session{
		UserID:    1,
		SessionID: "old-session",
		IsActive:  true,
		CreatedAt: time.Now().Add(-9 * time.Hour),
	}
	assert.NoError(t, db.Create(old).Error)

	result := detector.Detect(1, "old-session", RequestContext{IPAddress: "10.0.0.1", UserAgent: "agent-a"})
	assert.True(t, result.Anomalous)
	assert.Contains(t, result.Reasons, ReasonSessionTooOld)
}

type stubGeo struct {
	points map[string]GeoPoint
}

func (g stubGeo) Locate(ip string) (GeoPoint, bool) {
	p, ok := g.points[ip]
	return p, ok
}

func TestAnomalyDetector_ImpossibleTravel(t *testing.T) {
	_, events, sessions, detector := setupAnomalyTest(t)
	detector.WithGeoResolver(stubGeo{points: map[string]GeoPoint{
		"198.51.100.1": {Lat: 40.7128, Lon: -74.0060}, // New York
		"203.0.113.1":  {Lat: 51.5074, Lon: -0.1278},  // London
	}}, 1000)

	session, err := sessions.Create(1, "198.51.100.1", "agent-a")
	assert.NoError(t, err)

	now := time.Now()
	logLogin(events, 1, "198.51.100.1", "agent-a", now.Add(-30*time.Minute))
	logLogin(events, 1, "203.0.113.1", "agent-a", now.Add(-10*time.Minute))

	result := detector.Detect(1, session.SessionID, RequestContext{IPAddress: "203.0.113.1", UserAgent: "agent-a"})
	assert.True(t, result.Anomalous)
	assert.Contains(t, result.Reasons, ReasonImpossibleTravel)
}

func TestAnomalyDetector_TravelCheckDisabledWithoutResolver(t *testing.T) {
	_, events, sessions, detector := setupAnomalyTest(t)

	session, err := sessions.Create(1, "198.51.100.1", "agent-a")
	assert.NoError(t, err)

	now := time.Now()
	logLogin(events, 1, "198.51.100.1", "agent-a", now.Add(-30*time.Minute))
	logLogin(events, 1, "203.0.113.1", "agent-a", now.Add(-10*time.Minute))

	result := detector.Detect(1, session.SessionID, RequestContext{IPAddress: "203.0.113.1", UserAgent: "agent-a"})
	assert.NotContains(t, result.Reasons, ReasonImpossibleTravel)
}

func TestAnomalyDetector_EnforceConcurrentSessionLimit(t *testing.T) {
	db, _, _, detector := setupAnomalyTest(t)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		s := &models.Session{
			UserID:    1,
			SessionID: fmt.Sprintf("session-%d", i),
			IsActive:  true,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		assert.NoError(t, db.Create(s).Error)
	}

	assert.NoError(t, detector.EnforceConcurrentSessionLimit(1, 3))

	var active []models.Session
	assert.NoError(t, db.Where("user_id = ? AND is_active = ?", 1, true).Find(&active).Error)
	assert.Len(t, active, 3)

	// The two oldest sessions were the ones evicted.
	var evicted []models.Session
	assert.NoError(t, db.Where("user_id = ? AND is_active = ?", 1, false).Order("created_at asc").Find(&evicted).Error)
	assert.Len(t, evicted, 2)
	assert.Equal(t, "session-0", evicted[0].SessionID)
	assert.Equal(t, "session-1", evicted[1].SessionID)

	// Exactly one SUSPICIOUS_ACTIVITY event carrying the eviction count.
	var logged []models.SecurityEvent
	assert.NoError(t, db.Where("type = ?", models.EventSuspiciousActivity).Find(&logged).Error)
	assert.Len(t, logged, 1)
	meta := logged[0].MetadataMap()
	assert.EqualValues(t, 2, meta["deactivated_sessions"])

	// Re-running under the limit changes nothing.
	assert.NoError(t, detector.EnforceConcurrentSessionLimit(1, 3))
	assert.NoError(t, db.Where("type = ?", models.EventSuspiciousActivity).Find(&logged).Error)
	assert.Len(t, logged, 1)
}
