package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TOKEN_SECRET_KEY", "")
	t.Setenv("PUBLIC_BASE_URL", "")

	cfg := Load()

	assert.Equal(t, DevTokenSecret, cfg.Approval.TokenSecret)
	assert.True(t, cfg.Approval.UsingDevSecret())
	assert.Equal(t, "http://localhost:3000", cfg.Approval.PublicBaseURL)
	assert.Equal(t, 72*time.Hour, cfg.Stripe.DedupTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TOKEN_SECRET_KEY", "s3cret")
	t.Setenv("PUBLIC_BASE_URL", "https://studio.example/")
	t.Setenv("RATE_LIMIT_REQUESTS", "12")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")
	t.Setenv("SMTP_USE_TLS", "true")
	t.Setenv("ADMIN_EMAIL", "Owner@Studio.Example")

	cfg := Load()

	assert.Equal(t, "s3cret", cfg.Approval.TokenSecret)
	assert.False(t, cfg.Approval.UsingDevSecret())
	assert.Equal(t, "https://studio.example", cfg.Approval.PublicBaseURL)
	assert.Equal(t, 12, cfg.RateLimit.Requests)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	assert.True(t, cfg.Email.SMTPUseTLS)
	assert.Equal(t, "owner@studio.example", cfg.Auth.AdminEmail)
}

func TestLoadIgnoresUnparseableValues(t *testing.T) {
	t.Setenv("DB_MAX_CONNS", "lots")
	t.Setenv("SERVER_READ_TIMEOUT", "soon")

	cfg := Load()

	assert.Equal(t, 10, cfg.Database.MaxConns)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
}
