package services

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/labscribe/labscribe/backend/internal/models"
	"github.com/labscribe/labscribe/backend/internal/validation"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

const (
	maxFailedLogins = 5
	lockoutDuration = 30 * time.Minute
	tokenTTL        = 24 * time.Hour
)

// Claims is the JWT payload for session tokens. SessionID binds the token to
// a revocable session row; Role feeds the admin gate.
type Claims struct {
	UserID    uint   `json:"uid"`
	Email     string `json:"email"`
	SessionID string `json:"sid"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// AuthService implements the sign-in flow with account lockout, session
// issuance, and concurrent-session enforcement.
type AuthService struct {
	db           *gorm.DB
	events       *SecurityEventService
	sessions     *SessionService
	detector     *AnomalyDetector
	jwtSecret    []byte
	sessionLimit int
	now          func() time.Time
}

// NewAuthService wires the auth flow. An empty secret gets a random one,
// which invalidates tokens across restarts.
func NewAuthService(db *gorm.DB, events *SecurityEventService, sessions *SessionService, detector *AnomalyDetector, jwtSecret string, sessionLimit int) *AuthService {
	if jwtSecret == "" {
		buf := make([]byte, 32)
		_, _ = rand.Read(buf)
		jwtSecret = hex.EncodeToString(buf)
	}
	if sessionLimit <= 0 {
		sessionLimit = 3
	}
	return &AuthService{
		db:           db,
		events:       events,
		sessions:     sessions,
		detector:     detector,
		jwtSecret:    []byte(jwtSecret),
		sessionLimit: sessionLimit,
		now:          time.Now,
	}
}

// Register creates a new account after validating the email shape.
func (s *AuthService) Register(email, password, name string) (*models.User, error) {
	if !validation.ValidateEmail(email) {
		return nil, ErrInvalidEmail
	}

	var existing models.User
	if err := s.db.Where("email = ?", email).First(&existing).Error; err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	user := &models.User{
		UUID:    uuid.NewString(),
		Email:   email,
		Name:    validation.SanitizeText(name),
		Role:    "user",
		Enabled: true,
	}
	if err := user.SetPassword(password); err != nil {
		return nil, err
	}
	if err := s.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// Login authenticates, maintains the lockout counters, opens a session, and
// issues a signed token. Every outcome emits exactly one security event.
func (s *AuthService) Login(email, password, ip, userAgent string) (string, *models.User, error) {
	now := s.now()

	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		s.logLoginEvent(models.EventFailedLogin, models.SeverityMedium, nil, email, ip, userAgent, map[string]interface{}{
			"reason": "unknown_account",
		})
		return "", nil, ErrInvalidCredentials
	}

	if user.IsLocked(now) {
		s.logLoginEvent(models.EventFailedLogin, models.SeverityHigh, &user.ID, email, ip, userAgent, map[string]interface{}{
			"reason":      "account_locked",
			"lock_reason": user.LockReason,
		})
		return "", nil, ErrAccountLocked
	}

	if !user.Enabled {
		s.logLoginEvent(models.EventFailedLogin, models.SeverityHigh, &user.ID, email, ip, userAgent, map[string]interface{}{
			"reason": "account_disabled",
		})
		return "", nil, ErrAccountDisabled
	}

	if !user.CheckPassword(password) {
		user.FailedLoginAttempts++
		updates := map[string]interface{}{"failed_login_attempts": user.FailedLoginAttempts}
		severity := models.SeverityMedium
		meta := map[string]interface{}{
			"reason":          "wrong_password",
			"failed_attempts": user.FailedLoginAttempts,
		}
		if user.FailedLoginAttempts >= maxFailedLogins {
			lockUntil := now.Add(lockoutDuration)
			updates["locked_until"] = lockUntil
			updates["lock_reason"] = "too many failed login attempts"
			severity = models.SeverityHigh
			meta["locked_until"] = lockUntil
		}
		if err := s.db.Model(&user).Updates(updates).Error; err != nil {
			return "", nil, err
		}
		s.logLoginEvent(models.EventFailedLogin, severity, &user.ID, email, ip, userAgent, meta)
		return "", nil, ErrInvalidCredentials
	}

	// Successful login: reset counters before issuing the session.
	if err := s.db.Model(&user).Updates(map[string]interface{}{
		"failed_login_attempts": 0,
		"locked_until":          nil,
		"lock_reason":           "",
		"last_login":            now,
	}).Error; err != nil {
		return "", nil, err
	}

	session, err := s.sessions.Create(user.ID, ip, userAgent)
	if err != nil {
		return "", nil, err
	}

	if s.detector != nil {
		if err := s.detector.EnforceConcurrentSessionLimit(user.ID, s.sessionLimit); err != nil {
			// Eviction failure is not a login failure.
			s.logLoginEvent(models.EventSuspiciousActivity, models.SeverityMedium, &user.ID, email, ip, userAgent, map[string]interface{}{
				"reason": "session_limit_enforcement_failed",
				"error":  err.Error(),
			})
		}
	}

	s.logLoginEvent(models.EventSuccessfulLogin, models.SeverityLow, &user.ID, email, ip, userAgent, nil)

	token, err := s.issueToken(&user, session.SessionID, now)
	if err != nil {
		return "", nil, err
	}
	return token, &user, nil
}

// Logout invalidates the session behind the token.
func (s *AuthService) Logout(sessionID string) error {
	return s.sessions.Invalidate(sessionID)
}

// GetUserByID fetches a user row.
func (s *AuthService) GetUserByID(id uint) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ParseToken validates the signature and expiry and returns the claims.
func (s *AuthService) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ValidateSessionToken parses the token and confirms its session is still
// active, touching the activity timestamp on success. Fail closed: any
// doubt means no principal.
func (s *AuthService) ValidateSessionToken(tokenString string) (*Claims, error) {
	claims, err := s.ParseToken(tokenString)
	if err != nil {
		return nil, err
	}
	if _, err := s.sessions.FindActive(claims.UserID, claims.SessionID); err != nil {
		return nil, ErrInvalidToken
	}
	_ = s.sessions.Touch(claims.SessionID)
	return claims, nil
}

func (s *AuthService) issueToken(user *models.User, sessionID string, now time.Time) (string, error) {
	claims := Claims{
		UserID:    user.ID,
		Email:     user.Email,
		SessionID: sessionID,
		Role:      user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.UUID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *AuthService) logLoginEvent(t models.EventType, sev models.Severity, userID *uint, email, ip, userAgent string, meta map[string]interface{}) {
	e := &models.SecurityEvent{
		Type:      t,
		Severity:  sev,
		UserID:    userID,
		Email:     email,
		IPAddress: ip,
		UserAgent: userAgent,
	}
	e.SetMetadata(meta)
	s.events.Log(e)
}
