package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides(t *testing.T) {
	t.Run("port overrides apply", func(t *testing.T) {
		t.Setenv("NOETIC_HTTP_PORT", "7000")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, 7000, cfg.HTTPPort)
	})

	t.Run("malformed int override is ignored", func(t *testing.T) {
		t.Setenv("NOETIC_MAX_RADIUS", "not-a-number")
		cfg := DefaultConfig()
		want := cfg.MaxRadius
		cfg.applyEnvOverrides()
		assert.Equal(t, want, cfg.MaxRadius)
	})

	t.Run("bool override applies", func(t *testing.T) {
		t.Setenv("NOETIC_LOG_JSON", "false")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.False(t, cfg.LogJSON)
	})

	t.Run("string override applies", func(t *testing.T) {
		t.Setenv("NOETIC_SHAPES_PATH", "/tmp/shapes.yaml")
		cfg := &Config{}
		cfg.applyEnvOverrides()
		assert.Equal(t, "/tmp/shapes.yaml", cfg.ShapesPath)
	})
}
