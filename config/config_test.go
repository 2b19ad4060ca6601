package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "redis://localhost:6379", cfg.Redis.URL)
	assert.Equal(t, 8, cfg.Streams.PartitionCount)
	assert.Equal(t, "0.60", cfg.Scoring.AdmissionThreshold)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("NORTHSTAR_PORT", "9090")
	t.Setenv("NORTHSTAR_REDIS_URL", "redis://example:6380")
	t.Setenv("NORTHSTAR_SCORING_THRESHOLD", "0.65")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "redis://example:6380", cfg.Redis.URL)
	assert.Equal(t, "0.65", cfg.Scoring.AdmissionThreshold)
}

func TestLoadFromEnv_InvalidPort(t *testing.T) {
	t.Setenv("NORTHSTAR_PORT", "not-a-number")
	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()
	assert.Error(t, err)
}

func TestNewConfig_Options(t *testing.T) {
	cfg, err := NewConfig(WithPort(9999), WithRedisURL("redis://override:6379"))
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.HTTP.Port)
	assert.Equal(t, "redis://override:6379", cfg.Redis.URL)
}

func TestNewConfig_InvalidOption(t *testing.T) {
	_, err := NewConfig(WithPort(-1))
	assert.Error(t, err)
}

func TestValidate_MissingRedisURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Redis.URL = ""
	assert.Error(t, cfg.Validate())
}

func TestValidate_BadPartitionCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Streams.PartitionCount = 0
	assert.Error(t, cfg.Validate())
}
