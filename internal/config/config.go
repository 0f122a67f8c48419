// Package config loads machine configuration from environment variables.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all emulator configuration.
type Config struct {
	Machine MachineConfig
	Logging LogConfig
	Metrics MetricsConfig
}

// MachineConfig holds guest machine configuration.
type MachineConfig struct {
	// TargetOS is the emulated guest target. Linux-only socket flags
	// (SOCK_NONBLOCK, SOCK_CLOEXEC) are recognized only when it is "linux".
	TargetOS string `envconfig:"TARGET_OS" default:"linux"`

	// SocketBufferCapacity bounds each direction of a socketpair, in bytes.
	SocketBufferCapacity int `envconfig:"SOCKET_BUFFER_CAPACITY" default:"212992"`

	// RaceDetection toggles vector-clock bookkeeping.
	RaceDetection bool `envconfig:"RACE_DETECTION" default:"true"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// MetricsConfig holds Prometheus exposition configuration.
type MetricsConfig struct {
	Addr    string `envconfig:"METRICS_ADDR" default:"localhost:9090"`
	Enabled bool   `envconfig:"METRICS_ENABLED" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Machine: MachineConfig{
			TargetOS:             "linux",
			SocketBufferCapacity: 212992,
			RaceDetection:        true,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Metrics: MetricsConfig{
			Addr:    "localhost:9090",
			Enabled: false,
		},
	}
}
