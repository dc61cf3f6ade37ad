package services

import (
	"errors"
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/labscribe/labscribe/backend/internal/logger"
	"github.com/labscribe/labscribe/backend/internal/models"
)

// ReasonCode identifies which anomaly check fired.
type ReasonCode string

const (
	ReasonSessionNotFound     ReasonCode = "SESSION_NOT_FOUND"
	ReasonMultipleIPAddresses ReasonCode = "MULTIPLE_IP_ADDRESSES"
	ReasonImpossibleTravel    ReasonCode = "IMPOSSIBLE_TRAVEL"
	ReasonUserAgentMismatch   ReasonCode = "USER_AGENT_MISMATCH"
	ReasonSessionTooOld       ReasonCode = "SESSION_TOO_OLD"
)

// RequestContext carries the per-request attributes the detector inspects.
type RequestContext struct {
	IPAddress string
	UserAgent string
}

// AnomalyResult lists every reason that fired, in check order.
type AnomalyResult struct {
	Anomalous bool
	Reasons   []ReasonCode
}

// GeoPoint is a resolved IP location.
type GeoPoint struct {
	Lat float64
	Lon float64
}

// GeoResolver maps an IP address to a location. It is an injected capability:
// without one, the impossible-travel check is disabled rather than guessed at.
type GeoResolver interface {
	Locate(ip string) (GeoPoint, bool)
}

const (
	ipChurnWindow     = time.Hour
	ipChurnLimit      = 3
	userAgentWindow   = 24 * time.Hour
	defaultMaxSession = 8 * time.Hour
)

// AnomalyDetector flags session-hijacking indicators from recent login and
// session history. Every internal failure degrades to "not anomalous": the
// detector is availability-biased, matching the rate limiter's posture.
type AnomalyDetector struct {
	db       *gorm.DB
	events   *SecurityEventService
	sessions *SessionService

	geo            GeoResolver
	travelSpeedKmh float64
	maxSessionAge  time.Duration
	now            func() time.Time
}

// NewAnomalyDetector wires the detector over the session store and event log.
func NewAnomalyDetector(db *gorm.DB, events *SecurityEventService, sessions *SessionService) *AnomalyDetector {
	return &AnomalyDetector{
		db:            db,
		events:        events,
		sessions:      sessions,
		maxSessionAge: defaultMaxSession,
		now:           time.Now,
	}
}

// WithGeoResolver enables the impossible-travel check. maxSpeedKmh is the
// travel speed above which consecutive logins are considered impossible.
func (d *AnomalyDetector) WithGeoResolver(geo GeoResolver, maxSpeedKmh float64) *AnomalyDetector {
	d.geo = geo
	d.travelSpeedKmh = maxSpeedKmh
	return d
}

// Detect runs every check independently and accumulates reason codes.
// A missing session short-circuits: the remaining checks depend on history
// that cannot be trusted without one.
func (d *AnomalyDetector) Detect(userID uint, sessionID string, req RequestContext) AnomalyResult {
	var reasons []ReasonCode

	session, err := d.sessions.FindActive(userID, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return AnomalyResult{Anomalous: true, Reasons: []ReasonCode{ReasonSessionNotFound}}
		}
		// Fail open on store errors.
		logger.WithComponent("anomaly").WithError(err).Warn("session lookup failed, skipping detection")
		return AnomalyResult{}
	}

	now := d.now()

	logins, err := d.events.RecentLogins(userID, now.Add(-userAgentWindow))
	if err != nil {
		logger.WithComponent("anomaly").WithError(err).Warn("login history lookup failed, skipping history checks")
		logins = nil
	}

	if logins != nil {
		if d.tooManyIPs(logins, now) {
			reasons = append(reasons, ReasonMultipleIPAddresses)
		}
		if d.impossibleTravel(logins, now) {
			reasons = append(reasons, ReasonImpossibleTravel)
		}
		if d.userAgentMismatch(logins, req.UserAgent) {
			reasons = append(reasons, ReasonUserAgentMismatch)
		}
	}

	if session.Age(now) > d.maxSessionAge {
		reasons = append(reasons, ReasonSessionTooOld)
	}

	return AnomalyResult{Anomalous: len(reasons) > 0, Reasons: reasons}
}

// tooManyIPs counts distinct login IPs in the trailing hour.
func (d *AnomalyDetector) tooManyIPs(logins []models.SecurityEvent, now time.Time) bool {
	cutoff := now.Add(-ipChurnWindow)
	distinct := make(map[string]struct{})
	for _, e := range logins {
		if e.CreatedAt.After(cutoff) && e.IPAddress != "" {
			distinct[e.IPAddress] = struct{}{}
		}
	}
	return len(distinct) > ipChurnLimit
}

// impossibleTravel flags consecutive logins whose implied travel speed
// exceeds the configured ceiling. Disabled without a GeoResolver.
func (d *AnomalyDetector) impossibleTravel(logins []models.SecurityEvent, now time.Time) bool {
	if d.geo == nil || d.travelSpeedKmh <= 0 {
		return false
	}
	cutoff := now.Add(-ipChurnWindow)
	var prev *models.SecurityEvent
	for i := range logins {
		e := &logins[i]
		if !e.CreatedAt.After(cutoff) || e.IPAddress == "" {
			continue
		}
		if prev != nil && prev.IPAddress != e.IPAddress {
			from, okFrom := d.geo.Locate(prev.IPAddress)
			to, okTo := d.geo.Locate(e.IPAddress)
			if okFrom && okTo {
				hours := e.CreatedAt.Sub(prev.CreatedAt).Hours()
				if hours <= 0 {
					hours = 1.0 / 3600 // clamp to one second
				}
				if haversineKm(from, to)/hours > d.travelSpeedKmh {
					return true
				}
			}
		}
		prev = e
	}
	return false
}

// userAgentMismatch checks the current user agent against those seen at
// login over the trailing day. An empty history set never flags.
func (d *AnomalyDetector) userAgentMismatch(logins []models.SecurityEvent, userAgent string) bool {
	if userAgent == "" {
		return false
	}
	seen := make(map[string]struct{})
	for _, e := range logins {
		if e.UserAgent != "" {
			seen[e.UserAgent] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return false
	}
	_, ok := seen[userAgent]
	return !ok
}

// EnforceConcurrentSessionLimit deactivates sessions beyond the newest
// `limit` for the user, oldest first, and logs a single SUSPICIOUS_ACTIVITY
// event carrying the eviction count.
func (d *AnomalyDetector) EnforceConcurrentSessionLimit(userID uint, limit int) error {
	if limit <= 0 {
		limit = 3
	}

	var sessions []models.Session
	err := d.db.
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("created_at desc, id desc").
		Find(&sessions).Error
	if err != nil {
		return err
	}
	if len(sessions) <= limit {
		return nil
	}

	now := d.now()
	evicted := 0
	for _, s := range sessions[limit:] {
		err := d.db.Model(&models.Session{}).
			Where("id = ?", s.ID).
			Updates(map[string]interface{}{"is_active": false, "ended_at": now}).Error
		if err != nil {
			logger.WithComponent("anomaly").WithError(err).Warn("failed to deactivate session")
			continue
		}
		evicted++
	}

	if evicted > 0 {
		event := &models.SecurityEvent{
			Type:     models.EventSuspiciousActivity,
			Severity: models.SeverityMedium,
			UserID:   &userID,
		}
		event.SetMetadata(map[string]interface{}{
			"reason":               "concurrent_session_limit",
			"deactivated_sessions": evicted,
			"session_limit":        limit,
		})
		d.events.Log(event)
	}

	return nil
}

// haversineKm computes the great-circle distance between two points.
func haversineKm(a, b GeoPoint) float64 {
	const earthRadiusKm = 6371.0
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}
