// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for perfdb packages.
//
// [RequireReceive] and [RequireClosed] encapsulate the timeout safety
// valve pattern (select with time.After fallback) so that individual
// tests do not need direct time.After calls. Contention tests use them
// to wait for a blocked writer without hanging the suite.
//
// [TempPath] returns a fresh file path inside the test's temporary
// directory, and [UniqueName] generates distinct solver and kernel
// names for tests that write many records.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no perfdb-internal dependencies.
package testutil
