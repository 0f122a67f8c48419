package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Machine config
	assert.Equal(t, "linux", cfg.Machine.TargetOS)
	assert.Equal(t, 212992, cfg.Machine.SocketBufferCapacity)
	assert.True(t, cfg.Machine.RaceDetection)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	// Metrics config
	assert.Equal(t, "localhost:9090", cfg.Metrics.Addr)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadOrDefault(t *testing.T) {
	cfg := LoadOrDefault()

	assert.NotNil(t, cfg)
	assert.Equal(t, "linux", cfg.Machine.TargetOS)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	t.Setenv("TARGET_OS", "macos")
	t.Setenv("SOCKET_BUFFER_CAPACITY", "4096")
	t.Setenv("RACE_DETECTION", "false")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_DEV", "true")
	t.Setenv("METRICS_ADDR", "0.0.0.0:9100")
	t.Setenv("METRICS_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "macos", cfg.Machine.TargetOS)
	assert.Equal(t, 4096, cfg.Machine.SocketBufferCapacity)
	assert.False(t, cfg.Machine.RaceDetection)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, "0.0.0.0:9100", cfg.Metrics.Addr)
	assert.True(t, cfg.Metrics.Enabled)
}
