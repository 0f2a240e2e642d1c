// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source for the busy-retry
// loop and the lock poller.
//
// Production code accepts a Clock instead of calling time.Now or
// time.Sleep directly. Real() provides the standard library behavior.
// Fake() provides a clock that never moves on its own: Sleep advances
// it by exactly the requested duration and returns immediately, so a
// retry loop with a thirty second deadline runs to completion in
// microseconds of wall time and always takes the same number of
// iterations.
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	policy := sqlitedb.RetryPolicy{Clock: c, Timeout: time.Second}
//	// ... drive the policy ...
//	c.Slept() // total simulated sleep
package clock
