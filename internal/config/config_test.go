package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/voyasim_test")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_abc")
	t.Setenv("ESIM_ACCESS_ACCESS_CODE", "ac-test")
	t.Setenv("ESIM_ACCESS_SECRET_KEY", "sk-esim")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4002, cfg.Port)
	assert.Equal(t, "https://api.esimaccess.com/api/v1", cfg.EsimAccessBaseURL)
	assert.Equal(t, "rsp.esimaccess.com", cfg.EsimSMDPDomain)
	assert.Equal(t, "CKH006", cfg.FallbackPackageCode)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 10, cfg.PollMaxAttempts)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)
	assert.Empty(t, cfg.StripeWebhookSecret)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "8080")
	t.Setenv("ESIM_POLL_INTERVAL_MS", "500")
	t.Setenv("ESIM_POLL_MAX_ATTEMPTS", "5")
	t.Setenv("CORS_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 5, cfg.PollMaxAttempts)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOrigins)
}

func TestLoadMissingRequired(t *testing.T) {
	tests := []struct {
		name string
		omit string
	}{
		{"jwt secret", "JWT_SECRET"},
		{"database url", "DATABASE_URL"},
		{"stripe key", "STRIPE_SECRET_KEY"},
		{"provider access code", "ESIM_ACCESS_ACCESS_CODE"},
		{"provider secret key", "ESIM_ACCESS_SECRET_KEY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.omit, "")

			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestLoadRejectsBadPollSettings(t *testing.T) {
	setRequired(t)
	t.Setenv("ESIM_POLL_INTERVAL_MS", "-5")

	_, err := Load()
	require.Error(t, err)
}
