// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for perfdb.
//
// Configuration is loaded from a single file specified by either the
// PERFDB_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no automatic file search. When neither is
// given, [Load] returns [ErrNoConfig] and callers decide whether
// [Default] is acceptable.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${PERFDB_USER_DIR}, and ${VAR:-default} patterns are
// expanded. No other environment variables override config values.
//
// Key exports:
//
//   - [Config] -- master struct with Paths, Database, KernelCache, Log
//   - [Default] -- returns a Config with the standard locations
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other perfdb packages.
package config
