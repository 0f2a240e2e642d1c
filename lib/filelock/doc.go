// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package filelock provides shared and exclusive advisory locks over a
// named lock file, arbitrating schema changes between processes that
// share a cache database.
//
// Locks use flock(2) through golang.org/x/sys/unix. flock locks belong
// to the open file description, so two acquisitions in one process
// conflict exactly as they would across processes; tests rely on this.
// Acquisition polls with LOCK_NB until the timeout passes rather than
// blocking in the kernel, so a timeout is always honored and the poll
// interval runs on an injectable clock.
//
// Any number of shared holders may coexist. An exclusive holder
// excludes every other holder.
package filelock
