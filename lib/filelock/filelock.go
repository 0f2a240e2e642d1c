// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package filelock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/perfdb/lib/clock"
)

// ErrTimeout is wrapped by acquisition errors when the lock could not
// be taken before the timeout.
var ErrTimeout = errors.New("filelock: timed out")

// pollInterval is the pause between non-blocking acquisition attempts.
const pollInterval = time.Millisecond

// Unlocker releases a held lock.
type Unlocker interface {
	Unlock() error
}

// Provider hands out scoped shared and exclusive locks. A timeout of
// zero or less means a single attempt.
type Provider interface {
	LockShared(timeout time.Duration) (Unlocker, error)
	LockExclusive(timeout time.Duration) (Unlocker, error)
}

// Mode is the lock mode.
type Mode int

const (
	// Shared admits other shared holders.
	Shared Mode = iota
	// Exclusive admits no other holder.
	Exclusive
)

func (mode Mode) String() string {
	if mode == Exclusive {
		return "exclusive"
	}
	return "shared"
}

func (mode Mode) flockOperation() int {
	if mode == Exclusive {
		return unix.LOCK_EX
	}
	return unix.LOCK_SH
}

// File is a Provider backed by one lock file. The file is created on
// first acquisition if it does not exist; its parent directory must
// exist. File holds no descriptors between acquisitions and is safe
// for concurrent use.
type File struct {
	path  string
	clock clock.Clock
}

// New returns a Provider for the lock file at path.
func New(path string) *File {
	return NewWithClock(path, clock.Real())
}

// NewWithClock returns a Provider whose acquisition deadline and poll
// sleeps run on c.
func NewWithClock(path string, c clock.Clock) *File {
	return &File{path: path, clock: c}
}

// SharedDir returns the lock directory for caches opened read-only
// without a configured lock directory. Installed caches sit in
// directories the caller usually cannot write, so their locks live
// under the temporary directory instead.
func SharedDir() string {
	return filepath.Join(os.TempDir(), "perfdb-locks")
}

// PathFor returns the lock file path for a database file. When lockDir
// is empty the lock sits next to the database; otherwise it is placed
// in lockDir under the database's base name.
func PathFor(databasePath, lockDir string) string {
	if lockDir == "" {
		return databasePath + ".lock"
	}
	return filepath.Join(lockDir, filepath.Base(databasePath)+".lock")
}

// Path returns the lock file path.
func (f *File) Path() string { return f.path }

// LockShared acquires a shared lock.
func (f *File) LockShared(timeout time.Duration) (Unlocker, error) {
	return f.Acquire(Shared, timeout)
}

// LockExclusive acquires an exclusive lock.
func (f *File) LockExclusive(timeout time.Duration) (Unlocker, error) {
	return f.Acquire(Exclusive, timeout)
}

// Acquire takes the lock in the given mode, polling until timeout
// passes. On timeout the error wraps ErrTimeout.
func (f *File) Acquire(mode Mode, timeout time.Duration) (*Lock, error) {
	file, err := openLockFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("filelock: opening %s: %w", f.path, err)
	}

	deadline := f.clock.Now().Add(timeout)
	for {
		err := unix.Flock(int(file.Fd()), mode.flockOperation()|unix.LOCK_NB)
		if err == nil {
			return &Lock{file: file, mode: mode}, nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			file.Close()
			return nil, fmt.Errorf("filelock: %s lock on %s: %w", mode, f.path, err)
		}
		if !f.clock.Now().Before(deadline) {
			file.Close()
			return nil, fmt.Errorf("%w: %s lock on %s after %v", ErrTimeout, mode, f.path, timeout)
		}
		f.clock.Sleep(pollInterval)
	}
}

// openLockFile opens the lock file for writing, creating it if needed.
// A lock file that exists but is not writable (a system cache directory,
// say) is opened read-only; flock does not need write access.
func openLockFile(path string) (*os.File, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o666)
	if errors.Is(err, fs.ErrNotExist) {
		if dirErr := createLockDir(filepath.Dir(path)); dirErr != nil {
			return nil, dirErr
		}
		file, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o666)
	}
	if err == nil {
		return file, nil
	}
	if errors.Is(err, fs.ErrPermission) {
		if readOnly, readErr := os.Open(path); readErr == nil {
			return readOnly, nil
		}
	}
	return nil, err
}

// Lock is a held lock. Unlock releases it; further calls are no-ops
// returning the first result.
type Lock struct {
	file *os.File
	mode Mode

	once      sync.Once
	unlockErr error
}

// Mode returns the mode the lock was acquired in.
func (l *Lock) Mode() Mode { return l.mode }

// Unlock releases the lock and closes its descriptor.
func (l *Lock) Unlock() error {
	l.once.Do(func() {
		if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
			l.unlockErr = fmt.Errorf("filelock: unlocking %s: %w", l.file.Name(), err)
		}
		if err := l.file.Close(); err != nil && l.unlockErr == nil {
			l.unlockErr = fmt.Errorf("filelock: closing %s: %w", l.file.Name(), err)
		}
	})
	return l.unlockErr
}

// createLockDir creates a missing lock directory. It is made
// world-writable with the sticky bit, like /tmp, so processes of other
// users can add their own lock files to it.
func createLockDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("filelock: creating lock directory: %w", err)
	}
	if err := os.Chmod(dir, 0o777|os.ModeSticky); err != nil && !errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("filelock: creating lock directory: %w", err)
	}
	return nil
}
