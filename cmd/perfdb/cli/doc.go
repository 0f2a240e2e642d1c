// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for the perfdb tool.
//
// The central type is [Command], which represents a named subcommand
// with optional nested [Command.Subcommands], a flag source, and a Run
// function. Commands are assembled into a tree in cmd/perfdb/commands
// and dispatched via [Command.Execute], which handles flag parsing,
// subcommand routing, and structured help output with examples.
//
// Flags come either from a [pflag.FlagSet] factory or from a params
// struct whose fields carry flag:"name,n", desc:"..." and default:"..."
// tags (see [BindFlags]).
//
// When a user types an unknown subcommand or flag, the framework
// computes Levenshtein edit distance against all known names and
// suggests the closest match (threshold: distance <= 3).
package cli
