// Package config loads server configuration from the environment.
// A .env file is honored when present (local development); real
// deployments set the variables directly.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type Config struct {
	Port         int
	DatabasePath string

	// EncryptionKey protects third-party tokens at rest; must decode to
	// 32 bytes for AES-256.
	EncryptionKey string

	// SessionSecret signs session JWTs issued after Google sign-in.
	SessionSecret string
	SessionTTL    time.Duration

	Google       OAuthConfig
	HostedDomain string

	JiraBaseURL  string
	TogglBaseURL string

	// SeedDemoData fills an empty database with demo users, prizes and
	// reward categories on startup.
	SeedDemoData bool

	// DevIdentityHeader accepts X-Debug-Email in place of a session
	// token. Local development only.
	DevIdentityHeader bool
}

func Load() (*Config, error) {
	// Missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cfg := &Config{
		Port:          envInt("PORT", 8080),
		DatabasePath:  envStr("DATABASE_PATH", "synepoints.db"),
		EncryptionKey: os.Getenv("ENCRYPTION_KEY"),
		SessionSecret: os.Getenv("SESSION_SECRET"),
		SessionTTL:    envDuration("SESSION_TTL", 12*time.Hour),
		Google: OAuthConfig{
			ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
			ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
			RedirectURL:  os.Getenv("GOOGLE_REDIRECT_URL"),
		},
		HostedDomain:      envStr("HOSTED_DOMAIN", "synetech.cz"),
		JiraBaseURL:       os.Getenv("JIRA_BASE_URL"),
		TogglBaseURL:      envStr("TOGGL_BASE_URL", "https://api.track.toggl.com/api/v8"),
		SeedDemoData:      envBool("SEED_DEMO_DATA", false),
		DevIdentityHeader: envBool("DEV_IDENTITY_HEADER", false),
	}

	if len(cfg.EncryptionKey) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes, got %d", len(cfg.EncryptionKey))
	}
	if cfg.SessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET is required")
	}
	return cfg, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
