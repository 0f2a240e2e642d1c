// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitedb

import (
	"errors"
	"fmt"

	"zombiezen.com/go/sqlite"
)

// Kind classifies a database failure. Callers branch on the kind, not
// on message text.
type Kind int

const (
	// KindInternal is a failure that fits no other kind.
	KindInternal Kind = iota

	// KindTimeout means the busy-retry deadline passed. Not locally
	// recoverable.
	KindTimeout

	// KindPrepare is a statement compile failure. Never retried.
	KindPrepare

	// KindBind is a parameter binding failure (bad index, wrong state).
	KindBind

	// KindExec is a non-busy failure while executing or stepping. The
	// connection is closed on the Exec path.
	KindExec

	// KindOpen is a failure to open the database file.
	KindOpen

	// KindNotFound means a read-only open found no file. Wraps
	// fs.ErrNotExist.
	KindNotFound

	// KindClosed means the connection was already closed.
	KindClosed

	// KindMisuse is an operation invalid for the handle's state, such
	// as stepping a finished statement.
	KindMisuse

	// KindLock is a lock-file acquisition failure.
	KindLock

	// KindInvalidCache means the cache failed schema validation and
	// rejects writes.
	KindInvalidCache

	// KindReadOnly is a write attempted against a shared cache.
	KindReadOnly
)

// String returns the lower-case name of the kind.
func (kind Kind) String() string {
	switch kind {
	case KindInternal:
		return "internal"
	case KindTimeout:
		return "timeout"
	case KindPrepare:
		return "prepare"
	case KindBind:
		return "bind"
	case KindExec:
		return "exec"
	case KindOpen:
		return "open"
	case KindNotFound:
		return "not found"
	case KindClosed:
		return "closed"
	case KindMisuse:
		return "misuse"
	case KindLock:
		return "lock"
	case KindInvalidCache:
		return "invalid cache"
	case KindReadOnly:
		return "read-only"
	default:
		return fmt.Sprintf("kind(%d)", int(kind))
	}
}

// Error is the error type returned by this package and by the caches
// built on it.
type Error struct {
	// Kind classifies the failure.
	Kind Kind

	// Path is the database file involved.
	Path string

	// Query is the SQL text, when the failure belongs to a statement.
	Query string

	// Code is the SQLite result code, or ResultOK when the failure did
	// not come from the engine.
	Code sqlite.ResultCode

	// Message is the diagnostic text.
	Message string

	// Err is the underlying error, if any.
	Err error
}

func (err *Error) Error() string {
	message := err.Message
	if message == "" && err.Err != nil {
		message = err.Err.Error()
	}
	if err.Path == "" {
		return fmt.Sprintf("sqlitedb: %s: %s", err.Kind, message)
	}
	return fmt.Sprintf("sqlitedb: %s: %s: %s", err.Kind, err.Path, message)
}

func (err *Error) Unwrap() error { return err.Err }

// IsKind reports whether err is an *Error of the given kind anywhere in
// its chain.
func IsKind(err error, kind Kind) bool {
	var target *Error
	return errors.As(err, &target) && target.Kind == kind
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal if there is none.
func KindOf(err error) Kind {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind
	}
	return KindInternal
}

// isBusy reports whether code is SQLITE_BUSY or one of its extended
// codes.
func isBusy(code sqlite.ResultCode) bool {
	return code.ToPrimary() == sqlite.ResultBusy
}
