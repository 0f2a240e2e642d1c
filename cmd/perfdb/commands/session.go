// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/term"

	"github.com/bureau-foundation/perfdb/lib/config"
	"github.com/bureau-foundation/perfdb/lib/device"
	"github.com/bureau-foundation/perfdb/lib/kerndb"
	"github.com/bureau-foundation/perfdb/lib/logging"
	"github.com/bureau-foundation/perfdb/lib/perfdb"
	"github.com/bureau-foundation/perfdb/lib/sqlitedb"
)

// globalParams are accepted by every command that reads configuration.
type globalParams struct {
	ConfigPath string `flag:"config" desc:"configuration file (default: $PERFDB_CONFIG)"`
	LogLevel   string `flag:"log-level" desc:"log level override: trace, debug, info, warn, error"`
}

// targetParams select the device whose caches a command operates on.
type targetParams struct {
	globalParams
	Arch   string `flag:"arch" desc:"target architecture, e.g. gfx90a (default: detected)"`
	NumCU  int    `flag:"num-cu" desc:"compute unit count (default: detected)"`
	Device int    `flag:"device" desc:"index of the GPU used for detection"`
}

// cacheParams select one cache file.
type cacheParams struct {
	targetParams
	System bool   `flag:"system" desc:"use the installed read-only cache instead of the user cache"`
	Path   string `flag:"db" desc:"explicit cache file path"`
}

// session is the resolved environment of one command invocation.
type session struct {
	config *config.Config
	logger *slog.Logger
	arch   string
	numCU  int
}

// loadConfig loads the file named by path, or by PERFDB_CONFIG when
// path is empty, falling back to the defaults when neither is set.
func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
		if errors.Is(err, config.ErrNoConfig) {
			cfg, err = config.Default(), nil
			cfg.Expand()
		}
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the command logger on stderr at the configured
// level, with an optional flag override.
func newLogger(stderr io.Writer, cfg *config.Config, override string) (*slog.Logger, error) {
	name := cfg.Log.Level
	if override != "" {
		name = override
	}
	level, err := logging.ParseLevel(name)
	if err != nil {
		return nil, err
	}
	return logging.NewWriter(stderr, level, isTerminal(stderr)), nil
}

// isTerminal reports whether w is a terminal file.
func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}

// globalSession loads configuration and the logger without resolving
// a device.
func (env *Options) globalSession(params *globalParams) (*session, error) {
	cfg, err := loadConfig(params.ConfigPath)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(env.Stderr, cfg, params.LogLevel)
	if err != nil {
		return nil, err
	}
	return &session{config: cfg, logger: logger}, nil
}

// targetSession resolves the target device from flags, detecting
// whatever the flags leave unset.
func (env *Options) targetSession(params *targetParams) (*session, error) {
	s, err := env.globalSession(&params.globalParams)
	if err != nil {
		return nil, err
	}
	s.arch, s.numCU = params.Arch, params.NumCU
	if s.arch != "" && s.numCU > 0 {
		return s, nil
	}

	devices, err := env.Prober.Enumerate()
	if err != nil {
		return nil, fmt.Errorf("detecting device (pass --arch and --num-cu to skip): %w", err)
	}
	if params.Device < 0 || params.Device >= len(devices) {
		return nil, fmt.Errorf("--device %d out of range: %d GPU(s) detected", params.Device, len(devices))
	}
	detected := devices[params.Device]
	if s.arch == "" {
		s.arch = detected.Arch
	}
	if s.numCU <= 0 {
		s.numCU = detected.NumCU
	}
	s.logger.Debug("device detected", "node", detected.Node, "arch", s.arch, "num_cu", s.numCU)
	return s, nil
}

// retryPolicy maps the database section onto the busy-retry policy.
func (s *session) retryPolicy() sqlitedb.RetryPolicy {
	// A configured zero means no spinning; the policy reads zero as
	// "use the default".
	spin := s.config.Database.RetrySpinAttempts
	if spin == 0 {
		spin = -1
	}
	return sqlitedb.RetryPolicy{
		Timeout:      s.config.Database.RetryTimeout,
		SpinAttempts: spin,
		Sleep:        s.config.Database.RetrySleep,
		Logger:       s.logger,
	}
}

// cachePath returns the file of the given kind for the session's
// device in the configured system or user directory.
func (s *session) cachePath(kind device.Kind) string {
	directory := s.config.Paths.UserDir
	if kind.Shared() {
		directory = s.config.Paths.SystemDir
	}
	return filepath.Join(directory, device.FileName(s.arch, s.numCU, kind))
}

// openPerf opens the tuning cache selected by params.
func (s *session) openPerf(params *cacheParams) (*perfdb.DB, error) {
	kind := device.UserPerf
	if params.System {
		kind = device.SystemPerf
	}
	path := params.Path
	if path == "" {
		path = s.cachePath(kind)
	}
	return s.openPerfPath(path, params.System)
}

func (s *session) openPerfPath(path string, shared bool) (*perfdb.DB, error) {
	if err := s.config.EnsurePaths(); err != nil {
		return nil, err
	}
	return perfdb.Open(perfdb.Config{
		Path:        path,
		Shared:      shared,
		Arch:        s.arch,
		NumCU:       s.numCU,
		LockDir:     s.config.Paths.LockDir,
		LockTimeout: s.config.Database.LockTimeout,
		Retry:       s.retryPolicy(),
		WAL:         s.config.Database.WAL && !shared,
		Logger:      s.logger,
	})
}

// openKernel opens the kernel cache selected by params.
func (s *session) openKernel(params *cacheParams) (*kerndb.DB, error) {
	kind := device.UserKernel
	if params.System {
		kind = device.SystemKernel
	}
	path := params.Path
	if path == "" {
		path = s.cachePath(kind)
	}
	return s.openKernelPath(path, params.System)
}

func (s *session) openKernelPath(path string, shared bool) (*kerndb.DB, error) {
	compression, err := kerndb.ParseCompression(s.config.KernelCache.Compression)
	if err != nil {
		return nil, err
	}
	if err := s.config.EnsurePaths(); err != nil {
		return nil, err
	}
	return kerndb.Open(kerndb.Config{
		Path:        path,
		Shared:      shared,
		Compression: compression,
		LockDir:     s.config.Paths.LockDir,
		LockTimeout: s.config.Database.LockTimeout,
		Retry:       s.retryPolicy(),
		WAL:         s.config.Database.WAL && !shared,
		Logger:      s.logger,
	})
}

// errInvalidCache reports a cache disabled by a missing file or a
// schema mismatch.
func errInvalidCache(path string) error {
	return fmt.Errorf("cache %s is missing or has an unexpected schema", path)
}
