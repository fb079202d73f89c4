package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnv(t *testing.T) {
	t.Run("returns default when unset", func(t *testing.T) {
		assert.Equal(t, "fallback", GetEnv("GOVERNOR_TEST_UNSET", "fallback"))
	})

	t.Run("returns value when set", func(t *testing.T) {
		t.Setenv("GOVERNOR_TEST_SET", "value")
		assert.Equal(t, "value", GetEnv("GOVERNOR_TEST_SET", "fallback"))
	})
}

func TestGetEnvInt(t *testing.T) {
	t.Run("parses integer", func(t *testing.T) {
		t.Setenv("GOVERNOR_TEST_INT", "42")
		assert.Equal(t, 42, GetEnvInt("GOVERNOR_TEST_INT", 1))
	})

	t.Run("falls back on garbage", func(t *testing.T) {
		t.Setenv("GOVERNOR_TEST_INT", "not-a-number")
		assert.Equal(t, 1, GetEnvInt("GOVERNOR_TEST_INT", 1))
	})
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("GOVERNOR_TEST_BOOL", "true")
	assert.True(t, GetEnvBool("GOVERNOR_TEST_BOOL", false))
}

func TestLoadGovernor(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := LoadGovernor()
		assert.Equal(t, 3, cfg.MaxVariants)
		assert.Equal(t, 30*time.Minute, cfg.PostSpacing)
		assert.Equal(t, 24*time.Hour, cfg.EvaluationWindow)
		assert.True(t, cfg.EnableAutoRevision)
		assert.False(t, cfg.StrictMode)
		assert.Equal(t, DefaultManagedAgents, cfg.ManagedAgents)
		assert.Equal(t, 5*time.Minute, cfg.GateCacheTTL)
	})

	t.Run("overrides from environment", func(t *testing.T) {
		t.Setenv("MAX_VARIANTS", "5")
		t.Setenv("SPACING_MINUTES", "10")
		t.Setenv("STRICT_MODE", "true")
		t.Setenv("GOVERNOR_AGENTS", "TwitterAgent, ReplyAgent")

		cfg := LoadGovernor()
		assert.Equal(t, 5, cfg.MaxVariants)
		assert.Equal(t, 10*time.Minute, cfg.PostSpacing)
		assert.True(t, cfg.StrictMode)
		assert.Equal(t, []string{"TwitterAgent", "ReplyAgent"}, cfg.ManagedAgents)
	})
}
