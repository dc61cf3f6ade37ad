package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config captures runtime configuration sourced from environment variables.
type Config struct {
	Environment  string
	HTTPPort     string
	DatabasePath string
	FrontendDir  string
	UploadDir    string

	// JWTSecret signs session tokens. A random secret is generated on boot
	// when unset, which invalidates sessions across restarts.
	JWTSecret string

	// AllowedOrigins is the Origin/Referer allow-list used for CSRF checks
	// on mutating API requests.
	AllowedOrigins []string

	// RedisAddr selects the shared rate-limit counter store. Empty means the
	// process-local in-memory store (single process and tests only).
	RedisAddr     string
	RedisPassword string

	// AlertURL is a shoutrrr URL that receives CRITICAL security events.
	AlertURL string

	// GeneratorURL is the upstream report-generation service endpoint.
	GeneratorURL string

	SessionMaxAge          time.Duration
	ConcurrentSessionLimit int
}

// Load reads env vars and falls back to defaults so the server can boot with zero configuration.
func Load() (Config, error) {
	cfg := Config{
		Environment:            getEnv("LABSCRIBE_ENV", "development"),
		HTTPPort:               getEnv("LABSCRIBE_HTTP_PORT", "8080"),
		DatabasePath:           getEnv("LABSCRIBE_DB_PATH", filepath.Join("data", "labscribe.db")),
		FrontendDir:            getEnv("LABSCRIBE_FRONTEND_DIR", filepath.Clean(filepath.Join("..", "frontend", "dist"))),
		UploadDir:              getEnv("LABSCRIBE_UPLOAD_DIR", filepath.Join("data", "uploads")),
		JWTSecret:              os.Getenv("LABSCRIBE_JWT_SECRET"),
		RedisAddr:              os.Getenv("LABSCRIBE_REDIS_ADDR"),
		RedisPassword:          os.Getenv("LABSCRIBE_REDIS_PASSWORD"),
		AlertURL:               os.Getenv("LABSCRIBE_ALERT_URL"),
		GeneratorURL:           os.Getenv("LABSCRIBE_GENERATOR_URL"),
		SessionMaxAge:          getEnvDuration("LABSCRIBE_SESSION_MAX_AGE", 8*time.Hour),
		ConcurrentSessionLimit: getEnvInt("LABSCRIBE_SESSION_LIMIT", 3),
	}

	origins := getEnv("LABSCRIBE_ALLOWED_ORIGINS", "http://localhost:8080,http://localhost:5173")
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure data directory: %w", err)
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure upload directory: %w", err)
	}

	return cfg, nil
}

// IsProduction reports whether the server runs with production hardening
// (HSTS, generic error bodies).
func (c Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
