// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Config carries every knob the service reads at startup. All values come
// from PROPDESK_* environment variables; zero-config defaults suit local
// development.
type Config struct {
	Addr        string
	PostgresDSN string

	TokenTTL   time.Duration
	BcryptCost int

	// Bootstrap platform-operator credentials. Root login is disabled when
	// either is unset.
	RootEmail        string
	RootPasswordHash string

	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	SMTPFrom string

	CertificatesDir string

	RateBurst  int
	RatePerSec int
}

// Load reads the environment. Missing values fall back to defaults; the auth
// secret is intentionally not loaded here — the auth package owns it so that
// tests can reset it.
func Load() Config {
	return Config{
		Addr:             envString("PROPDESK_ADDR", ":8080"),
		PostgresDSN:      os.Getenv("PROPDESK_PG_DSN"),
		TokenTTL:         envDuration("PROPDESK_TOKEN_TTL", 7*24*time.Hour),
		BcryptCost:       envInt("PROPDESK_BCRYPT_COST", bcrypt.DefaultCost),
		RootEmail:        os.Getenv("PROPDESK_ROOT_EMAIL"),
		RootPasswordHash: os.Getenv("PROPDESK_ROOT_PASSWORD_HASH"),
		SMTPHost:         os.Getenv("PROPDESK_SMTP_HOST"),
		SMTPPort:         envInt("PROPDESK_SMTP_PORT", 587),
		SMTPUser:         os.Getenv("PROPDESK_SMTP_USER"),
		SMTPPass:         os.Getenv("PROPDESK_SMTP_PASS"),
		SMTPFrom:         envString("PROPDESK_SMTP_FROM", "noreply@propdesk.io"),
		CertificatesDir:  envString("PROPDESK_CERT_DIR", "uploads/certificates"),
		RateBurst:        envInt("PROPDESK_RATE_BURST", 20),
		RatePerSec:       envInt("PROPDESK_RATE_PER_SEC", 10),
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
