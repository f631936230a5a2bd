package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"APP_HOST", "APP_PORT", "HTTP_REQUEST_TIMEOUT_SECONDS", "REDIS_DB", "WORKFLOW_AUTO_ADVANCE_ON_ASSIGN", "EVENTS_REDIS_CHANNEL", "AUTH_BCRYPT_COST", "APP_ENV", "AUTH_BOOTSTRAP_ADMIN_EMAIL", "REDIS_ENABLED"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
	assert.Equal(t, 30*time.Second, cfg.App.RequestTimeout())
	assert.False(t, cfg.Workflow.AutoAdvanceOnAssign)
	assert.Empty(t, cfg.Events.RedisChannel)
	assert.Equal(t, 12, cfg.Auth.BcryptCost)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("WORKFLOW_AUTO_ADVANCE_ON_ASSIGN", "true")
	t.Setenv("EVENTS_REDIS_CHANNEL", "requests.events")
	t.Setenv("AUTH_BCRYPT_COST", "not-a-number")
	t.Setenv("HTTP_REQUEST_TIMEOUT_SECONDS", "0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.App.Addr())
	assert.True(t, cfg.Workflow.AutoAdvanceOnAssign)
	assert.Equal(t, "requests.events", cfg.Events.RedisChannel)
	assert.Equal(t, 12, cfg.Auth.BcryptCost, "unparsable ints fall back")
	assert.Zero(t, cfg.App.RequestTimeout())
}

func TestLoadRejectsBadRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "two")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"production needs a secret", map[string]string{"APP_ENV": "production", "AUTH_JWT_SECRET": ""}, "AUTH_JWT_SECRET"},
		{"bootstrap needs a password", map[string]string{"AUTH_BOOTSTRAP_ADMIN_EMAIL": "root@example.com", "AUTH_BOOTSTRAP_ADMIN_PASSWORD": ""}, "AUTH_BOOTSTRAP_ADMIN_PASSWORD"},
		{"forwarding needs redis", map[string]string{"EVENTS_REDIS_CHANNEL": "events", "REDIS_ENABLED": "false"}, "EVENTS_REDIS_CHANNEL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, val := range tt.env {
				t.Setenv(key, val)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadProductionWithSecret(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("AUTH_JWT_SECRET", "s3cret")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("EVENTS_REDIS_CHANNEL", "")
	t.Setenv("POSTGRES_MIGRATIONS_DIR", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "migrations", cfg.Postgres.MigrationsDir)
}
