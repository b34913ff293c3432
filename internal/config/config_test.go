package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("STORAGE", "")
	t.Setenv("TIMEZONE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.Equal(t, 3, cfg.CommitRetries)
	assert.False(t, cfg.AllowDirectCompletion)
	assert.Equal(t, 5, cfg.MerkleRebuildInterval)
	assert.Empty(t, cfg.PrincipalsFile)

	policy := cfg.FollowUpPolicy()
	assert.Equal(t, 7, policy.FollowUpAfterDays)
	assert.Equal(t, 1, policy.FollowUpIntervalDays)
	assert.Equal(t, 3, policy.MaxFollowUps)
	assert.Equal(t, 14, policy.EscalateAfterDays)
	assert.Equal(t, 30, policy.ExpireAfterDays)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TIMEZONE", "Europe/Berlin")
	t.Setenv("FOLLOWUP_AFTER_DAYS", "3")
	t.Setenv("MAX_FOLLOWUPS", "5")
	t.Setenv("ALLOW_DIRECT_COMPLETION", "true")
	t.Setenv("LEASE_TTL", "90s")
	t.Setenv("FOLLOWUP_CRON", "30 7 * * 1-5")
	t.Setenv("PRINCIPALS_FILE", "/etc/inspection/principals.json")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Europe/Berlin", cfg.Location.String())
	assert.Equal(t, 3, cfg.FollowUpPolicy().FollowUpAfterDays)
	assert.Equal(t, 5, cfg.FollowUpPolicy().MaxFollowUps)
	assert.Equal(t, "Europe/Berlin", cfg.FollowUpPolicy().Location.String())
	assert.True(t, cfg.AppointmentPolicy().AllowDirectCompletion)
	assert.Equal(t, 90*time.Second, cfg.LeaseTTL)
	assert.Equal(t, "30 7 * * 1-5", cfg.FollowUpSchedule)
	assert.Equal(t, "/etc/inspection/principals.json", cfg.PrincipalsFile)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown storage", map[string]string{"STORAGE": "sqlite"}},
		{"postgres without url", map[string]string{"STORAGE": "postgres", "DATABASE_URL": ""}},
		{"bad timezone", map[string]string{"TIMEZONE": "Mars/Olympus"}},
		{"zero threshold", map[string]string{"EXPIRE_AFTER_DAYS": "0"}},
		{"negative retries", map[string]string{"COMMIT_RETRIES": "-1"}},
		{"zero merkle interval", map[string]string{"MERKLE_REBUILD_INTERVAL": "0"}},
		{"negative merkle interval", map[string]string{"MERKLE_REBUILD_INTERVAL": "-5"}},
		{"production on memory", map[string]string{"ENVIRONMENT": "production", "STORAGE": "memory"}},
		{"production default secret", map[string]string{
			"ENVIRONMENT":  "production",
			"STORAGE":      "postgres",
			"DATABASE_URL": "postgres://localhost/inspection",
			"REDIS_URL":    "redis://localhost:6379",
			"JWT_SECRET":   "",
		}},
		{"production without redis", map[string]string{
			"ENVIRONMENT":  "production",
			"STORAGE":      "postgres",
			"DATABASE_URL": "postgres://localhost/inspection",
			"JWT_SECRET":   "s3cret",
			"REDIS_URL":    "",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadProduction(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("STORAGE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/inspection")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoragePostgres, cfg.Storage)
}
