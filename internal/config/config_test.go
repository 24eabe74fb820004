package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8375", cfg.Port)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "development", cfg.Env)
	assert.NotEmpty(t, cfg.JWTSecret)
	assert.NotEmpty(t, cfg.SeedProfile)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("REDIS_URL", "redis://example:6379")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, "redis://example:6379", cfg.RedisURL)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Port:      "8375",
			JWTSecret: "dev-secret-change-in-production",
			DBDriver:  "sqlite",
			Env:       "development",
		}
	}

	t.Run("development accepts defaults", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("missing port", func(t *testing.T) {
		cfg := base()
		cfg.Port = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown driver", func(t *testing.T) {
		cfg := base()
		cfg.DBDriver = "oracle"
		assert.Error(t, cfg.Validate())
	})

	t.Run("production rejects default secret", func(t *testing.T) {
		cfg := base()
		cfg.Env = "production"
		assert.Error(t, cfg.Validate())
	})

	t.Run("production rejects short secret", func(t *testing.T) {
		cfg := base()
		cfg.Env = "production"
		cfg.JWTSecret = "short"
		assert.Error(t, cfg.Validate())
	})

	t.Run("production accepts long secret", func(t *testing.T) {
		cfg := base()
		cfg.Env = "production"
		cfg.JWTSecret = "0123456789abcdef0123456789abcdef"
		assert.NoError(t, cfg.Validate())
	})
}
