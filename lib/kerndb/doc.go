// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package kerndb is the compiled-kernel cache: a SQLite file holding
// kernel binaries keyed by kernel name and build arguments. It sits
// beside the tuning cache and shares its access layer, lock files, and
// degraded-mode behavior.
//
// Binaries are compressed before storage with LZ4 or zstd; a binary
// that does not shrink is stored as-is and tagged "none". Every row
// records the BLAKE3 hash and length of the uncompressed binary, and
// [DB.Find] verifies both before returning it, so a corrupted row is
// reported instead of handed to the loader.
package kerndb
