// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitedb

import (
	"errors"
	"testing"
	"time"

	"zombiezen.com/go/sqlite"

	"github.com/bureau-foundation/perfdb/lib/clock"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// busyThenOK returns an operation that reports busy for the first n
// calls and OK afterwards, and a pointer to its call count.
func busyThenOK(n int, busy sqlite.ResultCode) (func() sqlite.ResultCode, *int) {
	calls := 0
	return func() sqlite.ResultCode {
		calls++
		if calls <= n {
			return busy
		}
		return sqlite.ResultOK
	}, &calls
}

func TestRetryBusyThenOK(t *testing.T) {
	for _, n := range []int{0, 1, 5, 49, 50, 51, 120} {
		fake := clock.Fake(epoch)
		policy := RetryPolicy{Clock: fake}
		op, calls := busyThenOK(n, sqlite.ResultBusy)

		code, err := policy.Do("test.db", op)
		if err != nil {
			t.Fatalf("n=%d: Do: %v", n, err)
		}
		if code != sqlite.ResultOK {
			t.Errorf("n=%d: code = %v, want OK", n, code)
		}
		if *calls != n+1 {
			t.Errorf("n=%d: op called %d times, want %d", n, *calls, n+1)
		}

		wantSleeps := max(n-DefaultRetrySpinAttempts, 0)
		if fake.Sleeps() != wantSleeps {
			t.Errorf("n=%d: slept %d times, want %d", n, fake.Sleeps(), wantSleeps)
		}
		if fake.Slept() != time.Duration(wantSleeps)*DefaultRetrySleep {
			t.Errorf("n=%d: slept %v total", n, fake.Slept())
		}
	}
}

func TestRetryExtendedBusyCode(t *testing.T) {
	op, calls := busyThenOK(3, sqlite.ResultBusySnapshot)
	code, err := RetryPolicy{Clock: clock.Fake(epoch)}.Do("test.db", op)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if code != sqlite.ResultOK || *calls != 4 {
		t.Errorf("code = %v after %d calls, want OK after 4", code, *calls)
	}
}

func TestRetryReturnsNonBusyCode(t *testing.T) {
	calls := 0
	code, err := RetryPolicy{Clock: clock.Fake(epoch)}.Do("test.db", func() sqlite.ResultCode {
		calls++
		return sqlite.ResultConstraintUnique
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if code != sqlite.ResultConstraintUnique {
		t.Errorf("code = %v, want constraint", code)
	}
	if calls != 1 {
		t.Errorf("op called %d times, want 1", calls)
	}
}

func TestRetryTimeout(t *testing.T) {
	fake := clock.Fake(epoch)
	policy := RetryPolicy{
		Timeout:      time.Millisecond,
		SpinAttempts: -1,
		Sleep:        100 * time.Microsecond,
		Clock:        fake,
	}

	calls := 0
	code, err := policy.Do("/cache/gfx90a_104.udb", func() sqlite.ResultCode {
		calls++
		return sqlite.ResultBusy
	})
	if !IsKind(err, KindTimeout) {
		t.Fatalf("err = %v, want KindTimeout", err)
	}
	if code != sqlite.ResultBusy {
		t.Errorf("code = %v, want busy", code)
	}

	var dbErr *Error
	if !errors.As(err, &dbErr) {
		t.Fatalf("error %T is not *Error", err)
	}
	if dbErr.Path != "/cache/gfx90a_104.udb" {
		t.Errorf("Path = %q", dbErr.Path)
	}
	// Ten sleeps reach the deadline exactly; the eleventh passes it.
	if calls != 11 {
		t.Errorf("op called %d times, want 11", calls)
	}
}

func TestRetryTimeoutAfterSpin(t *testing.T) {
	fake := clock.Fake(epoch)
	policy := RetryPolicy{
		Timeout:      time.Second,
		SpinAttempts: 3,
		Sleep:        500 * time.Millisecond,
		Clock:        fake,
	}

	calls := 0
	_, err := policy.Do("test.db", func() sqlite.ResultCode {
		calls++
		return sqlite.ResultBusy
	})
	if !IsKind(err, KindTimeout) {
		t.Fatalf("err = %v, want KindTimeout", err)
	}
	// Three yields, then sleeps of 500ms: the third sleep passes 1s.
	if calls != 6 {
		t.Errorf("op called %d times, want 6", calls)
	}
	if fake.Sleeps() != 3 {
		t.Errorf("slept %d times, want 3", fake.Sleeps())
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	policy := DefaultRetryPolicy()
	if policy.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v", policy.Timeout)
	}
	if policy.SpinAttempts != 50 {
		t.Errorf("SpinAttempts = %d", policy.SpinAttempts)
	}
	if policy.Sleep != 100*time.Microsecond {
		t.Errorf("Sleep = %v", policy.Sleep)
	}
	if policy.Clock == nil || policy.Logger == nil {
		t.Error("defaults left Clock or Logger nil")
	}
}

func TestStepRetriesOnlyBeforeFirstRow(t *testing.T) {
	fake := clock.Fake(epoch)
	policy := RetryPolicy{Clock: fake}

	op, calls := busyThenOK(3, sqlite.ResultBusy)
	code, err := policy.Step("test.db", false, op)
	if err != nil || code != sqlite.ResultOK {
		t.Fatalf("first step = (%v, %v), want OK", code, err)
	}
	if *calls != 4 {
		t.Errorf("first step called op %d times, want 4", *calls)
	}

	op, calls = busyThenOK(3, sqlite.ResultBusy)
	code, err = policy.Step("test.db", true, op)
	if err != nil {
		t.Fatalf("resumed step: %v", err)
	}
	if code != sqlite.ResultBusy {
		t.Errorf("resumed step code = %v, want busy", code)
	}
	if *calls != 1 {
		t.Errorf("resumed step called op %d times, want 1", *calls)
	}
	if fake.Sleeps() != 0 {
		t.Errorf("slept %d times, want 0", fake.Sleeps())
	}
}
