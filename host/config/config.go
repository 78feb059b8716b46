// Package config loads the controller configuration
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"flapchain/protocol"
)

// Config is the controller configuration
type Config struct {
	Serial     SerialConfig     `yaml:"serial"`
	Timing     TimingConfig     `yaml:"timing"`
	Sync       SyncConfig       `yaml:"sync"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Simulation SimulationConfig `yaml:"simulation"`
}

// SerialConfig selects the UART connected to the first module
type SerialConfig struct {
	Device        string `yaml:"device"` // empty: first USB serial port found
	Baud          int    `yaml:"baud"`
	ReadTimeoutMs int    `yaml:"read_timeout_ms"`
}

// TimingConfig holds the chain timing in milliseconds
type TimingConfig struct {
	TriggerDelayMs int `yaml:"trigger_delay_ms"`
	ExtraDelayMs   int `yaml:"extra_delay_ms"`
	ByteTimeoutMs  int `yaml:"byte_timeout_ms"`
}

// SyncConfig controls the display synchronizer
type SyncConfig struct {
	Retries    int `yaml:"retries"`
	IntervalMs int `yaml:"interval_ms"`
}

// LogConfig controls logging
type LogConfig struct {
	Level string `yaml:"level"`
}

// MetricsConfig controls the prometheus endpoint
type MetricsConfig struct {
	Listen string `yaml:"listen"` // empty disables the endpoint
}

// SimulationConfig replaces the serial chain with a simulated one
type SimulationConfig struct {
	Modules int `yaml:"modules"` // 0 uses hardware
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML configuration and fills in defaults
func Parse(data []byte) (*Config, error) {
	var config Config

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Apply defaults
	applyDefaults(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Default returns the configuration used when no file is given
func Default() *Config {
	var config Config
	applyDefaults(&config)
	return &config
}

// applyDefaults fills in missing configuration values
func applyDefaults(config *Config) {
	if config.Serial.Baud == 0 {
		config.Serial.Baud = 115200
	}
	if config.Serial.ReadTimeoutMs == 0 {
		config.Serial.ReadTimeoutMs = 10
	}

	if config.Timing.TriggerDelayMs == 0 {
		config.Timing.TriggerDelayMs = int(protocol.TriggerDelay / time.Millisecond)
	}
	if config.Timing.ExtraDelayMs == 0 {
		config.Timing.ExtraDelayMs = int(protocol.ExtraDelay / time.Millisecond)
	}
	if config.Timing.ByteTimeoutMs == 0 {
		config.Timing.ByteTimeoutMs = 50
	}

	if config.Sync.Retries == 0 {
		config.Sync.Retries = 3
	}
	if config.Sync.IntervalMs == 0 {
		config.Sync.IntervalMs = 50
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
}

// Validate checks values that defaults cannot repair
func (c *Config) Validate() error {
	if c.Timing.ExtraDelayMs >= c.Timing.TriggerDelayMs {
		return fmt.Errorf("timing.extra_delay_ms (%d) must be below timing.trigger_delay_ms (%d)",
			c.Timing.ExtraDelayMs, c.Timing.TriggerDelayMs)
	}
	if c.Sync.Retries < 0 {
		return fmt.Errorf("sync.retries must not be negative")
	}
	if c.Simulation.Modules < 0 {
		return fmt.Errorf("simulation.modules must not be negative")
	}
	return nil
}

// TriggerDelay is the minimum gap between two transactions
func (c *Config) TriggerDelay() time.Duration {
	return time.Duration(c.Timing.TriggerDelayMs) * time.Millisecond
}

// ModuleTimeout is the idle timeout the modules resynchronize after
func (c *Config) ModuleTimeout() time.Duration {
	return time.Duration(c.Timing.TriggerDelayMs-c.Timing.ExtraDelayMs) * time.Millisecond
}

// ByteTimeout is the reply wait allowed per expected byte
func (c *Config) ByteTimeout() time.Duration {
	return time.Duration(c.Timing.ByteTimeoutMs) * time.Millisecond
}

// SyncInterval is the pause between synchronizer passes
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Sync.IntervalMs) * time.Millisecond
}

// ReadTimeout is the serial read timeout
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Serial.ReadTimeoutMs) * time.Millisecond
}
