package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/labscribe/labscribe/backend/internal/models"
)

func setupAuthTest(t *testing.T) (*gorm.DB, *AuthService) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	assert.NoError(t, err)

	err = db.AutoMigrate(&models.User{}, &models.Session{}, &models.SecurityEvent{})
	assert.NoError(t, err)

	events := NewSecurityEventService(db)
	sessions := NewSessionService(db)
	detector := NewAnomalyDetector(db, events, sessions)
	auth := NewAuthService(db, events, sessions, detector, "test-secret", 3)

	return db, auth
}

func TestAuthService_RegisterValidatesEmail(t *testing.T) {
	_, auth := setupAuthTest(t)

	_, err := auth.Register("not-an-email", "password123", "Student")
	assert.ErrorIs(t, err, ErrInvalidEmail)

	_, err = auth.Register("<script>@example.com", "password123", "Student")
	assert.ErrorIs(t, err, ErrInvalidEmail)

	user, err := auth.Register("student@university.edu", "password123", "Student")
	assert.NoError(t, err)
	assert.Equal(t, "user", user.Role)
	assert.True(t, user.Enabled)

	_, err = auth.Register("student@university.edu", "other", "Dup")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestAuthService_RegisterSanitizesName(t *testing.T) {
	_, auth := setupAuthTest(t)

	user, err := auth.Register("student@university.edu", "password123", `Alice <script>alert(1)</script>`)
	assert.NoError(t, err)
	assert.NotContains(t, user.Name, "<")
	assert.Contains(t, user.Name, "Alice")
}

func TestAuthService_LoginIssuesWorkingToken(t *testing.T) {
	db, auth := setupAuthTest(t)

	_, err := auth.Register("student@university.edu", "password123", "Student")
	assert.NoError(t, err)

	token, user, err := auth.Login("student@university.edu", "password123", "10.0.0.1", "agent-a")
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := auth.ValidateSessionToken(token)
	assert.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "user", claims.Role)

	// One SUCCESSFUL_LOGIN event with the request attributes.
	var logged []models.SecurityEvent
	assert.NoError(t, db.Where("type = ?", models.EventSuccessfulLogin).Find(&logged).Error)
	assert.Len(t, logged, 1)
	assert.Equal(t, "10.0.0.1", logged[0].IPAddress)
	assert.Equal(t, "agent-a", logged[0].UserAgent)
}

func TestAuthService_LoginFailures(t *testing.T) {
	db, auth := setupAuthTest(t)

	_, _, err := auth.Login("ghost@university.edu", "password123", "10.0.0.1", "agent-a")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = auth.Register("student@university.edu", "password123", "Student")
	assert.NoError(t, err)

	_, _, err = auth.Login("student@university.edu", "wrong", "10.0.0.1", "agent-a")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	var logged []models.SecurityEvent
	assert.NoError(t, db.Where("type = ?", models.EventFailedLogin).Find(&logged).Error)
	assert.Len(t, logged, 2)
}

func TestAuthService_LockoutAfterRepeatedFailures(t *testing.T) {
	db, auth := setupAuthTest(t)

	_, err := auth.Register("student@university.edu", "password123", "Student")
	assert.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, _, err := auth.Login("student@university.edu", "wrong", "10.0.0.1", "agent-a")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}

	// Even the right password is rejected while locked.
	_, _, err = auth.Login("student@university.edu", "password123", "10.0.0.1", "agent-a")
	assert.ErrorIs(t, err, ErrAccountLocked)

	var user models.User
	assert.NoError(t, db.Where("email = ?", "student@university.edu").First(&user).Error)
	assert.NotNil(t, user.LockedUntil)
	assert.Equal(t, 5, user.FailedLoginAttempts)
}

func TestAuthService_SuccessfulLoginResetsCounters(t *testing.T) {
	db, auth := setupAuthTest(t)

	_, err := auth.Register("student@university.edu", "password123", "Student")
	assert.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, _, _ = auth.Login("student@university.edu", "wrong", "10.0.0.1", "agent-a")
	}

	_, _, err = auth.Login("student@university.edu", "password123", "10.0.0.1", "agent-a")
	assert.NoError(t, err)

	var user models.User
	assert.NoError(t, db.Where("email = ?", "student@university.edu").First(&user).Error)
	assert.Equal(t, 0, user.FailedLoginAttempts)
	assert.Nil(t, user.LockedUntil)
	assert.NotNil(t, user.LastLogin)
}

func TestAuthService_DisabledAccountCannotLogin(t *testing.T) {
	db, auth := setupAuthTest(t)

	user, err := auth.Register("student@university.edu", "password123", "Student")
	assert.NoError(t, err)
	assert.NoError(t, db.Model(user).Update("enabled", false).Error)

	_, _, err = auth.Login("student@university.edu", "password123", "10.0.0.1", "agent-a")
	assert.ErrorIs(t, err, ErrAccountDisabled)
}

func TestAuthService_LogoutInvalidatesToken(t *testing.T) {
	_, auth := setupAuthTest(t)

	_, err := auth.Register("student@university.edu", "password123", "Student")
	assert.NoError(t, err)

	token, _, err := auth.Login("student@university.edu", "password123", "10.0.0.1", "agent-a")
	assert.NoError(t, err)

	claims, err := auth.ValidateSessionToken(token)
	assert.NoError(t, err)

	assert.NoError(t, auth.Logout(claims.SessionID))

	// The signature still verifies but the session behind it is gone.
	_, err = auth.ValidateSessionToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthService_RejectsForgedAndExpiredTokens(t *testing.T) {
	_, auth := setupAuthTest(t)

	_, err := auth.ParseToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// A token signed with a different secret is rejected.
	other := NewAuthService(setupAuthDB(t), nil, nil, nil, "other-secret", 3)
	u := &models.User{ID: 1, UUID: "u", Email: "a@example.com", Role: "user"}
	forged, err := other.issueToken(u, "sid", time.Now())
	assert.NoError(t, err)
	_, err = auth.ParseToken(forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// An expired token from the right secret is rejected too.
	expired, err := auth.issueToken(u, "sid", time.Now().Add(-48*time.Hour))
	assert.NoError(t, err)
	_, err = auth.ParseToken(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthService_ConcurrentSessionLimitAppliedAtLogin(t *testing.T) {
	db, auth := setupAuthTest(t)

	_, err := auth.Register("student@university.edu", "password123", "Student")
	assert.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, _, err := auth.Login("student@university.edu", "password123", "10.0.0.1", "agent-a")
		assert.NoError(t, err)
	}

	var active int64
	assert.NoError(t, db.Model(&models.Session{}).Where("is_active = ?", true).Count(&active).Error)
	assert.Equal(t, int64(3), active)
}

func setupAuthDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	assert.NoError(t, err)
	return db
}
