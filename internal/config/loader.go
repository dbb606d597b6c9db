package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file. If a .checksums manifest
// exists next to the file, the file's BLAKE3 hash is verified against it.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	// Apply environment variable interpolation
	interpolated := interpolateEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	applyDefaults(&cfg)

	if err := verifyConfigHash(absPath); err != nil {
		return nil, err
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// DiscoverConfigPath finds the config file by checking standard locations.
// Priority order: $INTERPD_CONFIG, ~/.config/interpd/config.yaml,
// /etc/interpd/config.yaml, ./config.yaml
func DiscoverConfigPath() (string, error) {
	if path := os.Getenv("INTERPD_CONFIG"); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfig := filepath.Join(homeDir, ".config", "interpd", "config.yaml")
		if _, err := os.Stat(userConfig); err == nil {
			return userConfig, nil
		}
	}

	systemConfig := "/etc/interpd/config.yaml"
	if _, err := os.Stat(systemConfig); err == nil {
		return systemConfig, nil
	}

	localConfig := "./config.yaml"
	if _, err := os.Stat(localConfig); err == nil {
		return localConfig, nil
	}

	return "", fmt.Errorf("no config found (checked: $INTERPD_CONFIG, ~/.config/interpd, /etc/interpd, ./config.yaml)")
}

// verifyConfigHash checks the file against a .checksums manifest in the same
// directory. A missing manifest skips verification; a manifest without an
// entry for the file is an error.
func verifyConfigHash(absPath string) error {
	dir := filepath.Dir(absPath)
	checksums, err := LoadChecksums(dir)
	if err != nil {
		// No manifest: integrity locking not in use.
		return nil
	}

	basename := filepath.Base(absPath)
	expectedHash, ok := checksums.Hashes[basename]
	if !ok {
		return fmt.Errorf("config file %s has no hash in checksums at %s\n"+
			"Run: interpd config lock --config %s", basename, dir, absPath)
	}

	if err := VerifyFileHash(absPath, expectedHash); err != nil {
		return fmt.Errorf("config verification failed for %s: %w\n"+
			"This indicates tampering or unauthorized modification.\n"+
			"If you edited this file intentionally, run: interpd config lock --config %s", absPath, err, absPath)
	}
	return nil
}

// applyDefaults merges default values into cfg where not explicitly set.
func applyDefaults(cfg *Config) {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}

	if cfg.Runtime.Command == "" {
		cfg.Runtime.Command = defaults.Runtime.Command
	}

	if cfg.Pool.MinWorkers == 0 {
		cfg.Pool.MinWorkers = defaults.Pool.MinWorkers
	}
	// maxWorkers defaults to minWorkers, not to a fixed constant.
	if cfg.Pool.MaxWorkers == 0 {
		cfg.Pool.MaxWorkers = cfg.Pool.MinWorkers
	}
	if cfg.Pool.TaskTimeoutMs == 0 {
		cfg.Pool.TaskTimeoutMs = defaults.Pool.TaskTimeoutMs
	}
	if cfg.Pool.IdleTTLMs == 0 {
		cfg.Pool.IdleTTLMs = defaults.Pool.IdleTTLMs
	}
	if cfg.Pool.RespawnDelayMs == 0 {
		cfg.Pool.RespawnDelayMs = defaults.Pool.RespawnDelayMs
	}

	if cfg.State.Path == "" {
		cfg.State.Path = defaults.State.Path
	}

	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}

	if cfg.Runtime.Command == "" {
		return fmt.Errorf("runtime.command is required")
	}
	if cfg.Runtime.Script == "" {
		return fmt.Errorf("runtime.script is required")
	}
	if envVarPattern.MatchString(cfg.Runtime.Script) {
		matches := envVarPattern.FindStringSubmatch(cfg.Runtime.Script)
		return fmt.Errorf("runtime.script: environment variable ${%s} is not set", matches[1])
	}

	if cfg.Pool.MinWorkers < 1 {
		return fmt.Errorf("pool.min_workers must be at least 1")
	}
	if cfg.Pool.MaxWorkers < cfg.Pool.MinWorkers {
		return fmt.Errorf("pool.max_workers (%d) must be >= pool.min_workers (%d)",
			cfg.Pool.MaxWorkers, cfg.Pool.MinWorkers)
	}
	if cfg.Pool.TaskTimeoutMs <= 0 {
		return fmt.Errorf("pool.task_timeout_ms must be positive")
	}
	if cfg.Pool.IdleTTLMs <= 0 {
		return fmt.Errorf("pool.idle_ttl_ms must be positive")
	}
	if cfg.Pool.RespawnDelayMs <= 0 {
		return fmt.Errorf("pool.respawn_delay_ms must be positive")
	}

	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}

	if cfg.API.Enabled {
		if cfg.API.Listen == "" {
			return fmt.Errorf("api.listen is required when API is enabled")
		}
		if envVarPattern.MatchString(cfg.API.APIKey) {
			matches := envVarPattern.FindStringSubmatch(cfg.API.APIKey)
			return fmt.Errorf("api.api_key: environment variable ${%s} is not set", matches[1])
		}
	}

	return nil
}
