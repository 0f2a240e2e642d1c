// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the structured loggers used by perfdb
// libraries and binaries.
//
// Libraries accept a *slog.Logger and never construct their own; a nil
// logger is replaced by [Discard] through [OrDiscard]. The database
// layer logs every statement and every busy retry at [LevelTrace],
// which sits below slog.LevelDebug so that debug output stays
// readable. Failures are logged at Info before the error is returned.
//
// Binaries build their logger with [New] or [NewWriter]. Output is the
// text handler when the destination is a terminal and JSON otherwise,
// and trace records print their level as TRACE:
//
//	level, err := logging.ParseLevel(cfg.Log.Level)
//	logger := logging.NewWriter(os.Stderr, level, term.IsTerminal(int(os.Stderr.Fd())))
package logging
