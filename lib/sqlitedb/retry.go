// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitedb

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"zombiezen.com/go/sqlite"

	"github.com/bureau-foundation/perfdb/lib/clock"
	"github.com/bureau-foundation/perfdb/lib/logging"
)

// Retry defaults, tuned for short-lived lock contention between
// processes sharing a cache file rather than for long outages.
const (
	DefaultRetryTimeout      = 30 * time.Second
	DefaultRetrySpinAttempts = 50
	DefaultRetrySleep        = 100 * time.Microsecond
)

// RetryPolicy re-runs an operation while SQLite reports the database
// busy. The first SpinAttempts busy results only yield the processor;
// later ones sleep for Sleep. Once Timeout has passed since the first
// attempt, the policy gives up with a KindTimeout error.
//
// Zero fields take the package defaults, so the zero RetryPolicy is
// usable.
type RetryPolicy struct {
	// Timeout bounds the total time spent retrying. Default 30s.
	Timeout time.Duration

	// SpinAttempts is the number of busy results answered with a
	// yield before switching to sleeps. Default 50. Negative means
	// always sleep.
	SpinAttempts int

	// Sleep is the pause between attempts after the spin phase.
	// Default 100µs.
	Sleep time.Duration

	// Clock provides the deadline and sleeps. Default clock.Real().
	Clock clock.Clock

	// Logger receives a trace record for every busy result.
	Logger *slog.Logger
}

// DefaultRetryPolicy returns the policy with every field set to its
// default.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{}.withDefaults()
}

func (policy RetryPolicy) withDefaults() RetryPolicy {
	if policy.Timeout <= 0 {
		policy.Timeout = DefaultRetryTimeout
	}
	if policy.SpinAttempts == 0 {
		policy.SpinAttempts = DefaultRetrySpinAttempts
	}
	if policy.Sleep <= 0 {
		policy.Sleep = DefaultRetrySleep
	}
	if policy.Clock == nil {
		policy.Clock = clock.Real()
	}
	policy.Logger = logging.OrDiscard(policy.Logger)
	return policy
}

// Do invokes op until it returns a result code other than busy and
// returns that code. path names the database file in log records and
// in the timeout error. The returned error is non-nil only on timeout,
// in which case the code is the last busy result.
func (policy RetryPolicy) Do(path string, op func() sqlite.ResultCode) (sqlite.ResultCode, error) {
	policy = policy.withDefaults()
	deadline := policy.Clock.Now().Add(policy.Timeout)

	attempts := 0
	for {
		code := op()
		if !isBusy(code) {
			return code, nil
		}

		attempts++
		policy.Logger.Log(context.Background(), logging.LevelTrace, "database busy, retrying",
			"path", path,
			"attempt", attempts,
		)
		if attempts > policy.SpinAttempts {
			policy.Clock.Sleep(policy.Sleep)
		} else {
			runtime.Gosched()
		}

		if policy.Clock.Now().After(deadline) {
			return code, &Error{
				Kind:    KindTimeout,
				Path:    path,
				Code:    code,
				Message: fmt.Sprintf("timeout while waiting for database after %d busy attempts", attempts),
			}
		}
	}
}

// Step runs one step of a statement. A statement that has not yet
// produced a row is retried through Do. Once rows have been returned a
// busy result is final: the driver resets the statement after an
// error, so a retry would restart the query and repeat those rows.
func (policy RetryPolicy) Step(path string, resumed bool, op func() sqlite.ResultCode) (sqlite.ResultCode, error) {
	if resumed {
		return op(), nil
	}
	return policy.Do(path, op)
}
