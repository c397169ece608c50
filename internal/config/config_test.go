package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "localhost:6379", cfg.RedisURL)
	assert.Equal(t, 15*time.Minute, cfg.OverdueThreshold)
	assert.Equal(t, time.Minute, cfg.DisplayCacheTTL)
	assert.Equal(t, 30*time.Second, cfg.MetricsInterval)
	assert.True(t, cfg.EnableMetrics)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("PASS_OVERDUE_THRESHOLD", "10m")
	t.Setenv("ENABLE_METRICS", "false")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, 10*time.Minute, cfg.OverdueThreshold)
	assert.False(t, cfg.EnableMetrics)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("REDIS_DB", "not-a-number")
	t.Setenv("TV_DISPLAY_CACHE_TTL", "soon")
	t.Setenv("ENABLE_METRICS", "yes please")

	cfg := Load()

	assert.Equal(t, 0, cfg.RedisDB)
	assert.Equal(t, time.Minute, cfg.DisplayCacheTTL)
	assert.True(t, cfg.EnableMetrics)
}
