// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package perfdb is the tuning cache: it maps (problem, solver,
// architecture, compute-unit count) to the solver's serialized tuning
// parameters, stored in one SQLite file per architecture.
//
// A cache is either shared or user. Shared caches are installed system
// files: they are opened read-only, never created, and reject writes
// with [sqlitedb.KindReadOnly]. User caches are created on first use
// and written by every process tuning on the machine.
//
// Opening a cache runs the schema guard. A shared file that does not
// exist, or a file whose tables do not have the expected columns, is
// not an error: the returned [DB] reports [DB.Invalid], lookups find
// nothing, and writes fail with [sqlitedb.KindInvalidCache]. A host
// process keeps running without cached results instead of trusting a
// foreign or stale file.
//
// # Schema
//
// The problem descriptor owns its table (for convolutions, "config").
// Tuning results live in perf_db:
//
//	id      INTEGER PRIMARY KEY
//	solver  TEXT     solver identity
//	config  INTEGER  row id in the problem table
//	arch    TEXT     gfx architecture name
//	num_cu  INTEGER  compute-unit count
//	params  TEXT     serialized tuning parameters
//
// with a unique index over (solver, config, arch, num_cu).
//
// # Writes
//
// [DB.Store] upserts: an INSERT OR IGNORE is tried first, and when it
// changes no row the existing row's params are updated. Concurrent
// writers of the same key, in one process or several, leave exactly
// one row, and exactly one of them observes the insert.
package perfdb
