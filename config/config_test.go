package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("OTP_TTL", "")
	t.Setenv("REMINDER_INTERVAL", "")
	t.Setenv("PUBLIC_BASE_URL", "")

	cfg := FromEnv()

	assert.Equal(t, EnvDevelopment, cfg.AppEnv)
	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, 10*time.Minute, cfg.OTPTTL)
	assert.Equal(t, 5*time.Second, cfg.ReminderInitialDelay)
	assert.Equal(t, 48*time.Hour, cfg.ReminderInterval)
	assert.Equal(t, 100.0, cfg.MissionOrderMaxKm)
	assert.Equal(t, "http://localhost:3000", cfg.PublicBaseURL)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PUBLIC_BASE_URL", "https://pfmp.example.fr/")
	t.Setenv("REMINDER_INITIAL_DELAY", "30")
	t.Setenv("REMINDER_INTERVAL", "72h")
	t.Setenv("ALLOWED_ORIGINS", "https://a.fr, https://b.fr ,")
	t.Setenv("MISSION_ORDER_MAX_KM", "80.5")
	t.Setenv("MINIO_USE_SSL", "true")

	cfg := FromEnv()

	assert.Equal(t, "https://pfmp.example.fr", cfg.PublicBaseURL)
	assert.Equal(t, 30*time.Second, cfg.ReminderInitialDelay)
	assert.Equal(t, 72*time.Hour, cfg.ReminderInterval)
	assert.Equal(t, []string{"https://a.fr", "https://b.fr"}, cfg.AllowedOrigins)
	assert.Equal(t, 80.5, cfg.MissionOrderMaxKm)
	assert.True(t, cfg.MinioUseSSL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"development without secrets", Config{AppEnv: EnvDevelopment}, false},
		{"production without signature secret", Config{AppEnv: EnvProduction, JWTKey: "k"}, true},
		{"production without jwt key", Config{AppEnv: EnvProduction, SignatureSecret: "s"}, true},
		{"production complete", Config{AppEnv: EnvProduction, JWTKey: "k", SignatureSecret: "s"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}
