// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Database.RetryTimeout != 30*time.Second {
		t.Errorf("expected retry_timeout=30s, got %v", cfg.Database.RetryTimeout)
	}
	if cfg.Database.RetrySpinAttempts != 50 {
		t.Errorf("expected retry_spin_attempts=50, got %d", cfg.Database.RetrySpinAttempts)
	}
	if cfg.Database.RetrySleep != 100*time.Microsecond {
		t.Errorf("expected retry_sleep=100us, got %v", cfg.Database.RetrySleep)
	}
	if cfg.KernelCache.Compression != "lz4" {
		t.Errorf("expected compression=lz4, got %s", cfg.KernelCache.Compression)
	}
}

func TestLoad_RequiresPerfDBConfig(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")

	_, err := Load()
	if !errors.Is(err, ErrNoConfig) {
		t.Fatalf("expected ErrNoConfig when %s not set, got %v", EnvironmentVariable, err)
	}
}

func TestLoad_WithPerfDBConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "perfdb.yaml")

	configContent := `
paths:
  system_dir: /srv/rocm/db
  user_dir: ${HOME}/tuning
database:
  retry_timeout: 5s
  retry_spin_attempts: 10
  retry_sleep: 1ms
  wal: true
kernel_cache:
  compression: zstd
log:
  level: debug
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("HOME", "/home/tuner")
	t.Setenv(EnvironmentVariable, configPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Paths.SystemDir != "/srv/rocm/db" {
		t.Errorf("expected system_dir=/srv/rocm/db, got %s", cfg.Paths.SystemDir)
	}
	if cfg.Paths.UserDir != "/home/tuner/tuning" {
		t.Errorf("expected user_dir=/home/tuner/tuning, got %s", cfg.Paths.UserDir)
	}
	// lock_dir keeps its default, expanded against the loaded user_dir.
	if cfg.Paths.LockDir != "/home/tuner/tuning/locks" {
		t.Errorf("expected lock_dir=/home/tuner/tuning/locks, got %s", cfg.Paths.LockDir)
	}
	if cfg.Database.RetryTimeout != 5*time.Second || cfg.Database.RetrySleep != time.Millisecond {
		t.Errorf("durations = %v / %v", cfg.Database.RetryTimeout, cfg.Database.RetrySleep)
	}
	if cfg.Database.RetrySpinAttempts != 10 || !cfg.Database.WAL {
		t.Errorf("database = %+v", cfg.Database)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Database.LockTimeout != 60*time.Second {
		t.Errorf("expected lock_timeout default, got %v", cfg.Database.LockTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFile_RejectsUnknownKeys(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "perfdb.yaml")
	if err := os.WriteFile(configPath, []byte("database:\n  retry_timout: 5s\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := LoadFile(configPath); err == nil {
		t.Error("expected error for misspelled key")
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("PERFDB_TEST_ROOT", "/from/env")
	vars := map[string]string{"HOME": "/home/tuner"}

	tests := []struct {
		input string
		want  string
	}{
		{"${HOME}/.cache", "/home/tuner/.cache"},
		{"${PERFDB_TEST_ROOT}/db", "/from/env/db"},
		{"${PERFDB_TEST_UNSET:-/fallback}/db", "/fallback/db"},
		{"/plain/path", "/plain/path"},
	}
	for _, test := range tests {
		if got := expandVars(test.input, vars); got != test.want {
			t.Errorf("expandVars(%q) = %q, want %q", test.input, got, test.want)
		}
	}
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Expand()
	cfg.Paths.UserDir = "relative/dir"
	cfg.Database.RetryTimeout = 0
	cfg.KernelCache.Compression = "brotli"
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{
		"paths.user_dir must be absolute",
		"database.retry_timeout must be positive",
		"kernel_cache.compression",
		"log.level",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error lacks %q:\n%v", want, err)
		}
	}
}

func TestEnsurePaths(t *testing.T) {
	root := t.TempDir()
	cfg := Default()
	cfg.Paths.UserDir = filepath.Join(root, "user")
	cfg.Paths.LockDir = filepath.Join(root, "user", "locks")
	cfg.Paths.SystemDir = filepath.Join(root, "system")

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths: %v", err)
	}
	for _, path := range []string{cfg.Paths.UserDir, cfg.Paths.LockDir} {
		if info, err := os.Stat(path); err != nil || !info.IsDir() {
			t.Errorf("%s not created: %v", path, err)
		}
	}
	if _, err := os.Stat(cfg.Paths.SystemDir); !errors.Is(err, os.ErrNotExist) {
		t.Error("EnsurePaths created the system directory")
	}
}
