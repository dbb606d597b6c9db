package config

import "time"

// Config is the full daemon configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Runtime RuntimeConfig `yaml:"runtime"`
	Pool    PoolConfig    `yaml:"pool"`
	State   StateConfig   `yaml:"state"`
	API     APIConfig     `yaml:"api"`
}

// ServiceConfig holds daemon-level settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
}

// RuntimeConfig describes the external interpreter runtime.
type RuntimeConfig struct {
	// Command is the runtime executable, resolved via PATH.
	Command string `yaml:"command"`
	// Script is the server script handed to the runtime as its first argument.
	Script string `yaml:"script"`
}

// PoolConfig bounds the worker pool and its timers. All durations are
// milliseconds in YAML to match the wire protocol's __t unit.
type PoolConfig struct {
	MinWorkers     int `yaml:"min_workers"`
	MaxWorkers     int `yaml:"max_workers"`
	TaskTimeoutMs  int `yaml:"task_timeout_ms"`
	IdleTTLMs      int `yaml:"idle_ttl_ms"`
	RespawnDelayMs int `yaml:"respawn_delay_ms"`
}

// TaskTimeout returns the per-task timeout as a duration.
func (p PoolConfig) TaskTimeout() time.Duration {
	return time.Duration(p.TaskTimeoutMs) * time.Millisecond
}

// IdleTTL returns the idle scale-down TTL as a duration.
func (p PoolConfig) IdleTTL() time.Duration {
	return time.Duration(p.IdleTTLMs) * time.Millisecond
}

// RespawnDelay returns the crash respawn delay as a duration.
func (p PoolConfig) RespawnDelay() time.Duration {
	return time.Duration(p.RespawnDelayMs) * time.Millisecond
}

// StateConfig locates the SQLite task log.
type StateConfig struct {
	Path string `yaml:"path"`
}

// APIConfig holds the HTTP surface settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	// APIKey is a single bearer token; empty disables auth.
	APIKey string `yaml:"api_key"`
}

// ChecksumManifest is the parsed .checksums file guarding config integrity.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// Defaults returns the built-in configuration. MaxWorkers of 0 means
// "same as MinWorkers" and is resolved by the loader.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "interpd",
			LogLevel: "info",
		},
		Runtime: RuntimeConfig{
			Command: "python3",
		},
		Pool: PoolConfig{
			MinWorkers:     1,
			MaxWorkers:     0,
			TaskTimeoutMs:  120000,
			IdleTTLMs:      300000,
			RespawnDelayMs: 1000,
		},
		State: StateConfig{
			Path: "./interpd.db",
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8787",
		},
	}
}
