// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package filelock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/perfdb/lib/clock"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestFile(t *testing.T) (*File, *clock.FakeClock) {
	t.Helper()
	fake := clock.Fake(epoch)
	return NewWithClock(filepath.Join(t.TempDir(), "cache.db.lock"), fake), fake
}

func TestSharedLocksCoexist(t *testing.T) {
	provider, _ := newTestFile(t)

	first, err := provider.LockShared(time.Second)
	if err != nil {
		t.Fatalf("first LockShared: %v", err)
	}
	defer first.Unlock()

	second, err := provider.LockShared(0)
	if err != nil {
		t.Fatalf("second LockShared: %v", err)
	}
	if err := second.Unlock(); err != nil {
		t.Errorf("Unlock: %v", err)
	}
}

func TestExclusiveExcludesShared(t *testing.T) {
	provider, fake := newTestFile(t)

	exclusive, err := provider.LockExclusive(time.Second)
	if err != nil {
		t.Fatalf("LockExclusive: %v", err)
	}

	_, err = provider.LockShared(50 * time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("LockShared under exclusive: err = %v, want ErrTimeout", err)
	}
	if fake.Sleeps() == 0 {
		t.Error("acquisition did not poll before timing out")
	}

	if err := exclusive.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	shared, err := provider.LockShared(0)
	if err != nil {
		t.Fatalf("LockShared after release: %v", err)
	}
	shared.Unlock()
}

func TestSharedExcludesExclusive(t *testing.T) {
	provider, _ := newTestFile(t)

	shared, err := provider.LockShared(0)
	if err != nil {
		t.Fatalf("LockShared: %v", err)
	}
	defer shared.Unlock()

	if _, err := provider.LockExclusive(0); !errors.Is(err, ErrTimeout) {
		t.Fatalf("LockExclusive under shared: err = %v, want ErrTimeout", err)
	}
}

func TestUnlockIdempotent(t *testing.T) {
	provider, _ := newTestFile(t)

	lock, err := provider.Acquire(Exclusive, 0)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if lock.Mode() != Exclusive {
		t.Errorf("Mode() = %v, want exclusive", lock.Mode())
	}
	if err := lock.Unlock(); err != nil {
		t.Fatalf("first Unlock: %v", err)
	}
	if err := lock.Unlock(); err != nil {
		t.Fatalf("second Unlock: %v", err)
	}
}

func TestCreatesMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "locks")
	lock, err := New(filepath.Join(dir, "cache.db.lock")).LockShared(0)
	if err != nil {
		t.Fatalf("LockShared with missing lock directory: %v", err)
	}
	lock.Unlock()

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("lock directory not created: %v", err)
	}
	if info.Mode()&os.ModeSticky == 0 || info.Mode().Perm() != 0o777 {
		t.Errorf("lock directory mode = %v, want sticky and world-writable", info.Mode())
	}
}

func TestUnusableDirectory(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(parent, nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err := New(filepath.Join(parent, "cache.db.lock")).LockShared(0)
	if err == nil {
		t.Fatal("LockShared should fail when the lock directory cannot exist")
	}
	if errors.Is(err, ErrTimeout) {
		t.Errorf("unusable directory reported as timeout: %v", err)
	}
}

func TestSharedDir(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)
	if got := SharedDir(); got != filepath.Join(tmp, "perfdb-locks") {
		t.Errorf("SharedDir() = %q", got)
	}
}

func TestReadOnlyLockFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores file permissions")
	}
	path := filepath.Join(t.TempDir(), "system.db.lock")
	if err := os.WriteFile(path, nil, 0o444); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	lock, err := New(path).LockShared(0)
	if err != nil {
		t.Fatalf("LockShared on read-only lock file: %v", err)
	}
	lock.Unlock()
}

func TestPathFor(t *testing.T) {
	if got := PathFor("/data/gfx90a_104.udb", ""); got != "/data/gfx90a_104.udb.lock" {
		t.Errorf("PathFor without lock dir = %q", got)
	}
	if got := PathFor("/opt/db/gfx90a_104.db", "/home/u/.cache/locks"); got != "/home/u/.cache/locks/gfx90a_104.db.lock" {
		t.Errorf("PathFor with lock dir = %q", got)
	}
}
