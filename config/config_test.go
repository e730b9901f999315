package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvForMode(t *testing.T) {
	t.Setenv("STUDENT_PREMIUM_PRICE_ID", "price_plain")
	t.Setenv("STUDENT_PREMIUM_PRICE_ID_TEST", "price_test")
	t.Setenv("STUDENT_PREMIUM_PRICE_ID_LIVE", "price_live")

	assert.Equal(t, "price_test", getEnvForMode("STUDENT_PREMIUM_PRICE_ID", "test"))
	assert.Equal(t, "price_live", getEnvForMode("STUDENT_PREMIUM_PRICE_ID", "live"))
}

func TestGetEnvForMode_FallsBackToUnsuffixed(t *testing.T) {
	t.Setenv("STUDENT_PREMIUM_PRICE_ID", "price_plain")

	assert.Equal(t, "price_plain", getEnvForMode("STUDENT_PREMIUM_PRICE_ID", "test"))
	assert.Equal(t, "price_plain", getEnvForMode("STUDENT_PREMIUM_PRICE_ID", "live"))
}

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.APIPort)
	assert.Equal(t, "test", cfg.StripeMode)
	assert.Equal(t, 60, cfg.RateLimitRequestsPerMinute)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSAllowedOrigins)
}

func TestLoad_CORSList(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://internlink.io, https://www.internlink.io")

	cfg := Load()
	assert.Equal(t, []string{"https://internlink.io", "https://www.internlink.io"}, cfg.CORSAllowedOrigins)
}
