// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the config file when --config is absent.
const EnvironmentVariable = "PERFDB_CONFIG"

// ErrNoConfig is returned by Load when PERFDB_CONFIG is not set.
var ErrNoConfig = errors.New(EnvironmentVariable + " environment variable not set")

// Config is the master configuration for perfdb.
type Config struct {
	// Paths configures cache file locations.
	Paths PathsConfig `yaml:"paths"`

	// Database configures the SQLite access layer.
	Database DatabaseConfig `yaml:"database"`

	// KernelCache configures the compiled-kernel cache.
	KernelCache KernelCacheConfig `yaml:"kernel_cache"`

	// Log configures diagnostic output.
	Log LogConfig `yaml:"log"`
}

// PathsConfig configures cache file locations.
type PathsConfig struct {
	// SystemDir holds installed, read-only caches (.db, .kdb).
	// Default: /opt/rocm/share/miopen/db
	SystemDir string `yaml:"system_dir"`

	// UserDir holds writable per-user caches (.udb, .ukdb). Created
	// on demand.
	// Default: ${HOME}/.cache/perfdb
	UserDir string `yaml:"user_dir"`

	// LockDir holds lock files. Empty places each lock file next to
	// its cache, which fails for system caches in read-only
	// directories unless the lock file already exists.
	// Default: ${PERFDB_USER_DIR}/locks
	LockDir string `yaml:"lock_dir"`
}

// DatabaseConfig configures the SQLite access layer.
type DatabaseConfig struct {
	// RetryTimeout bounds busy retries of one operation.
	// Default: 30s
	RetryTimeout time.Duration `yaml:"retry_timeout"`

	// RetrySpinAttempts is the number of busy results answered by
	// yielding before sleeping.
	// Default: 50
	RetrySpinAttempts int `yaml:"retry_spin_attempts"`

	// RetrySleep is the pause between attempts after the spin phase.
	// Default: 100us
	RetrySleep time.Duration `yaml:"retry_sleep"`

	// LockTimeout bounds lock file acquisition.
	// Default: 60s
	LockTimeout time.Duration `yaml:"lock_timeout"`

	// WAL enables write-ahead logging on user caches.
	// Default: false
	WAL bool `yaml:"wal"`
}

// KernelCacheConfig configures the compiled-kernel cache.
type KernelCacheConfig struct {
	// Compression is applied to stored binaries: none, lz4, or zstd.
	// Default: lz4
	Compression string `yaml:"compression"`
}

// LogConfig configures diagnostic output.
type LogConfig struct {
	// Level is the minimum level logged: trace, debug, info, warn, or
	// error.
	// Default: warn
	Level string `yaml:"level"`
}

// Default returns the default configuration. Paths still contain
// variables; LoadFile expands them, and callers using Default directly
// should call Expand.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			SystemDir: "/opt/rocm/share/miopen/db",
			UserDir:   "${HOME}/.cache/perfdb",
			LockDir:   "${PERFDB_USER_DIR}/locks",
		},
		Database: DatabaseConfig{
			RetryTimeout:      30 * time.Second,
			RetrySpinAttempts: 50,
			RetrySleep:        100 * time.Microsecond,
			LockTimeout:       60 * time.Second,
		},
		KernelCache: KernelCacheConfig{
			Compression: "lz4",
		},
		Log: LogConfig{
			Level: "warn",
		},
	}
}

// Load loads configuration from the file named by PERFDB_CONFIG. It
// returns ErrNoConfig when the variable is not set.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, ErrNoConfig
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, over the
// defaults, and expands path variables.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	cfg.Expand()
	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current
// config. Unknown keys are rejected so that typos do not silently fall
// back to defaults.
func (c *Config) loadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil {
		return err
	}
	return nil
}

// Expand expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) Expand() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Paths.UserDir = expandVars(c.Paths.UserDir, vars)
	vars["PERFDB_USER_DIR"] = c.Paths.UserDir // Update for dependent paths.

	c.Paths.SystemDir = expandVars(c.Paths.SystemDir, vars)
	c.Paths.LockDir = expandVars(c.Paths.LockDir, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors, reporting all of them.
func (c *Config) Validate() error {
	var errs []error

	if c.Paths.SystemDir == "" {
		errs = append(errs, fmt.Errorf("paths.system_dir is required"))
	}
	if c.Paths.UserDir == "" {
		errs = append(errs, fmt.Errorf("paths.user_dir is required"))
	}
	for name, path := range map[string]string{
		"paths.system_dir": c.Paths.SystemDir,
		"paths.user_dir":   c.Paths.UserDir,
		"paths.lock_dir":   c.Paths.LockDir,
	} {
		if path != "" && !filepath.IsAbs(path) {
			errs = append(errs, fmt.Errorf("%s must be absolute, got %q", name, path))
		}
	}

	if c.Database.RetryTimeout <= 0 {
		errs = append(errs, fmt.Errorf("database.retry_timeout must be positive"))
	}
	if c.Database.RetrySpinAttempts < 0 {
		errs = append(errs, fmt.Errorf("database.retry_spin_attempts must not be negative"))
	}
	if c.Database.RetrySleep <= 0 {
		errs = append(errs, fmt.Errorf("database.retry_sleep must be positive"))
	}
	if c.Database.LockTimeout <= 0 {
		errs = append(errs, fmt.Errorf("database.lock_timeout must be positive"))
	}

	compressions := []string{"none", "lz4", "zstd"}
	if !slices.Contains(compressions, c.KernelCache.Compression) {
		errs = append(errs, fmt.Errorf("kernel_cache.compression must be one of: %v", compressions))
	}

	levels := []string{"trace", "debug", "info", "warn", "warning", "error"}
	if !slices.Contains(levels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", levels))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the writable directories if they don't exist.
// The system directory is never created.
func (c *Config) EnsurePaths() error {
	for _, path := range []string{c.Paths.UserDir, c.Paths.LockDir} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
