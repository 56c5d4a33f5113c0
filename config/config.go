// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package config loads and validates the Orchestrator's runtime
// configuration: session timeouts, delivery retry policy, dedup filter
// sizing, fragmentation thresholds, transport routing, buffer sizes
// and logging.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure, loadable from YAML with
// ${VAR}/${VAR:default} environment substitution.
type Config struct {
	Environment   string              `yaml:"environment"`
	Logging       LoggingConfig       `yaml:"logging"`
	Session       SessionConfig       `yaml:"session"`
	Delivery      DeliveryConfig      `yaml:"delivery"`
	Dedup         DedupConfig         `yaml:"dedup"`
	Fragmentation FragmentationConfig `yaml:"fragmentation"`
	Transport     TransportConfig     `yaml:"transport"`
	Runtime       RuntimeConfig       `yaml:"runtime"`
	Metrics       MetricsConfig       `yaml:"metrics"`
}

// LoggingConfig controls the internal/logger.StructuredLogger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error, fatal
	Output string `yaml:"output"` // stdout, stderr
}

// SessionConfig governs session.Manager's per-state timeouts and its
// background cleanup cadence.
type SessionConfig struct {
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	FailedTimeout    time.Duration `yaml:"failed_timeout"`
	CleanupInterval  time.Duration `yaml:"cleanup_interval"`
}

// DeliveryConfig governs delivery.Tracker's retry backoff schedule.
type DeliveryConfig struct {
	MaxRetries          int           `yaml:"max_retries"`
	InitialRetryDelay   time.Duration `yaml:"initial_retry_delay"`
	MaxRetryDelay       time.Duration `yaml:"max_retry_delay"`
	BackoffMultiplier   float64       `yaml:"backoff_multiplier"`
	ConfirmationTimeout time.Duration `yaml:"confirmation_timeout"`
}

// DedupConfig governs dedup.Manager's rotating bloom filter sizing.
type DedupConfig struct {
	BitSize       uint          `yaml:"bit_size"`
	HashFunctions int           `yaml:"hash_functions"`
	TTL           time.Duration `yaml:"ttl"`
}

// FragmentationConfig governs fragmentation.Fragmenter's chunking.
type FragmentationConfig struct {
	MaxFragmentSize int    `yaml:"max_fragment_size"`
	Mode            string `yaml:"mode"` // plain, crc32
}

// TransportConfig governs transport.Manager's routing policy and
// health feedback loop.
type TransportConfig struct {
	Policy             string        `yaml:"policy"` // first_available, preference_order, lowest_latency, highest_reliability, custom
	PreferenceOrder    []string      `yaml:"preference_order"`
	HealthWindow       int           `yaml:"health_window"`
	DegradedFloor      float64       `yaml:"degraded_floor"`
	HealthPollInterval time.Duration `yaml:"health_poll_interval"`
}

// RuntimeConfig governs the Orchestrator's channel buffers and
// supervision timing.
type RuntimeConfig struct {
	CommandBuffer    int           `yaml:"command_buffer"`
	EventBuffer      int           `yaml:"event_buffer"`
	EffectBuffer     int           `yaml:"effect_buffer"`
	StaleThreshold   time.Duration `yaml:"stale_threshold"`
	ShutdownDeadline time.Duration `yaml:"shutdown_deadline"`
}

// MetricsConfig controls the Prometheus HTTP exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// Default returns a Config populated with the package's documented
// defaults, matching the zero-value behavior each consuming package's
// own constructor falls back to.
func Default() Config {
	return Config{
		Environment: "development",
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
		},
		Session: SessionConfig{
			HandshakeTimeout: 30 * time.Second,
			IdleTimeout:      60 * time.Second,
			FailedTimeout:    1 * time.Second,
			CleanupInterval:  5 * time.Second,
		},
		Delivery: DeliveryConfig{
			MaxRetries:          5,
			InitialRetryDelay:   500 * time.Millisecond,
			MaxRetryDelay:       30 * time.Second,
			BackoffMultiplier:   2.0,
			ConfirmationTimeout: 60 * time.Second,
		},
		Dedup: DedupConfig{
			BitSize:       64 * 1024,
			HashFunctions: 3,
			TTL:           5 * time.Minute,
		},
		Fragmentation: FragmentationConfig{
			MaxFragmentSize: 512,
			Mode:            "plain",
		},
		Transport: TransportConfig{
			Policy:             "first_available",
			HealthWindow:       20,
			DegradedFloor:      0.5,
			HealthPollInterval: 5 * time.Second,
		},
		Runtime: RuntimeConfig{
			CommandBuffer:    128,
			EventBuffer:      256,
			EffectBuffer:     128,
			StaleThreshold:   60 * time.Second,
			ShutdownDeadline: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
			Path:    "/metrics",
		},
	}
}

// applyDefaults fills any zero-valued field of cfg from Default(),
// leaving explicitly-set fields untouched.
func applyDefaults(cfg *Config) {
	d := Default()

	if cfg.Environment == "" {
		cfg.Environment = d.Environment
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = d.Logging.Output
	}
	if cfg.Session.HandshakeTimeout == 0 {
		cfg.Session.HandshakeTimeout = d.Session.HandshakeTimeout
	}
	if cfg.Session.IdleTimeout == 0 {
		cfg.Session.IdleTimeout = d.Session.IdleTimeout
	}
	if cfg.Session.FailedTimeout == 0 {
		cfg.Session.FailedTimeout = d.Session.FailedTimeout
	}
	if cfg.Session.CleanupInterval == 0 {
		cfg.Session.CleanupInterval = d.Session.CleanupInterval
	}
	if cfg.Delivery.MaxRetries == 0 {
		cfg.Delivery.MaxRetries = d.Delivery.MaxRetries
	}
	if cfg.Delivery.InitialRetryDelay == 0 {
		cfg.Delivery.InitialRetryDelay = d.Delivery.InitialRetryDelay
	}
	if cfg.Delivery.MaxRetryDelay == 0 {
		cfg.Delivery.MaxRetryDelay = d.Delivery.MaxRetryDelay
	}
	if cfg.Delivery.BackoffMultiplier == 0 {
		cfg.Delivery.BackoffMultiplier = d.Delivery.BackoffMultiplier
	}
	if cfg.Delivery.ConfirmationTimeout == 0 {
		cfg.Delivery.ConfirmationTimeout = d.Delivery.ConfirmationTimeout
	}
	if cfg.Dedup.BitSize == 0 {
		cfg.Dedup.BitSize = d.Dedup.BitSize
	}
	if cfg.Dedup.HashFunctions == 0 {
		cfg.Dedup.HashFunctions = d.Dedup.HashFunctions
	}
	if cfg.Dedup.TTL == 0 {
		cfg.Dedup.TTL = d.Dedup.TTL
	}
	if cfg.Fragmentation.MaxFragmentSize == 0 {
		cfg.Fragmentation.MaxFragmentSize = d.Fragmentation.MaxFragmentSize
	}
	if cfg.Fragmentation.Mode == "" {
		cfg.Fragmentation.Mode = d.Fragmentation.Mode
	}
	if cfg.Transport.Policy == "" {
		cfg.Transport.Policy = d.Transport.Policy
	}
	if cfg.Transport.HealthWindow == 0 {
		cfg.Transport.HealthWindow = d.Transport.HealthWindow
	}
	if cfg.Transport.DegradedFloor == 0 {
		cfg.Transport.DegradedFloor = d.Transport.DegradedFloor
	}
	if cfg.Transport.HealthPollInterval == 0 {
		cfg.Transport.HealthPollInterval = d.Transport.HealthPollInterval
	}
	if cfg.Runtime.CommandBuffer == 0 {
		cfg.Runtime.CommandBuffer = d.Runtime.CommandBuffer
	}
	if cfg.Runtime.EventBuffer == 0 {
		cfg.Runtime.EventBuffer = d.Runtime.EventBuffer
	}
	if cfg.Runtime.EffectBuffer == 0 {
		cfg.Runtime.EffectBuffer = d.Runtime.EffectBuffer
	}
	if cfg.Runtime.StaleThreshold == 0 {
		cfg.Runtime.StaleThreshold = d.Runtime.StaleThreshold
	}
	if cfg.Runtime.ShutdownDeadline == 0 {
		cfg.Runtime.ShutdownDeadline = d.Runtime.ShutdownDeadline
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = d.Metrics.Addr
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = d.Metrics.Path
	}
}

// LoadFromFile reads, substitutes, and parses a YAML config file,
// filling unset fields from Default().
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses raw YAML content the same way LoadFromFile does,
// for callers that already have the content in memory (tests, embedded
// defaults).
func LoadFromBytes(data []byte) (*Config, error) {
	substituted := SubstituteEnvVars(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(substituted), cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	applyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field-level invariants that applyDefaults alone
// cannot enforce (ranges, closed string enums).
func Validate(cfg *Config) error {
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("config: logging.level %q is not one of debug/info/warn/error/fatal", cfg.Logging.Level)
	}
	switch cfg.Fragmentation.Mode {
	case "plain", "crc32":
	default:
		return fmt.Errorf("config: fragmentation.mode %q is not one of plain/crc32", cfg.Fragmentation.Mode)
	}
	switch cfg.Transport.Policy {
	case "first_available", "preference_order", "lowest_latency", "highest_reliability", "custom":
	default:
		return fmt.Errorf("config: transport.policy %q is not a recognized routing policy", cfg.Transport.Policy)
	}
	if cfg.Delivery.BackoffMultiplier <= 1.0 {
		return fmt.Errorf("config: delivery.backoff_multiplier must be > 1.0, got %f", cfg.Delivery.BackoffMultiplier)
	}
	if cfg.Delivery.MaxRetries < 0 {
		return fmt.Errorf("config: delivery.max_retries must be >= 0, got %d", cfg.Delivery.MaxRetries)
	}
	if cfg.Dedup.HashFunctions <= 0 {
		return fmt.Errorf("config: dedup.hash_functions must be > 0, got %d", cfg.Dedup.HashFunctions)
	}
	if cfg.Fragmentation.MaxFragmentSize <= 0 {
		return fmt.Errorf("config: fragmentation.max_fragment_size must be > 0, got %d", cfg.Fragmentation.MaxFragmentSize)
	}
	if cfg.Transport.DegradedFloor < 0 || cfg.Transport.DegradedFloor > 1 {
		return fmt.Errorf("config: transport.degraded_floor must be within [0,1], got %f", cfg.Transport.DegradedFloor)
	}
	return nil
}
