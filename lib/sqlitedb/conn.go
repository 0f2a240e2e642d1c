// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitedb

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"zombiezen.com/go/sqlite"

	"github.com/bureau-foundation/perfdb/lib/logging"
)

// NullText is the value a Row holds for a SQL NULL column. Rows never
// omit a selected column.
const NullText = "NULL"

// errorPrefix starts every ErrorMessage result.
const errorPrefix = "Internal error while accessing SQLite database: "

// Row is one result row: column name to text value.
type Row map[string]string

// Options holds the parameters for opening a connection.
type Options struct {
	// Path is the database file. Required.
	Path string

	// ReadOnly opens without write or create permission. The file
	// must already exist.
	ReadOnly bool

	// WAL switches a writable database to write-ahead logging.
	// Ignored for read-only opens.
	WAL bool

	// Retry governs every call that can report busy. The zero value
	// uses the package defaults.
	Retry RetryPolicy

	// Logger receives statement traces and failure reports. If nil, a
	// no-op logger is used.
	Logger *slog.Logger
}

// Conn owns one open SQLite handle. It is not safe for concurrent use;
// callers sharing a Conn between goroutines must serialize access.
type Conn struct {
	conn     *sqlite.Conn
	path     string
	readOnly bool
	retry    RetryPolicy
	logger   *slog.Logger

	lastError  string
	statements map[*Stmt]struct{}

	closed   bool
	closeErr error
}

// Open opens the database file named by options.Path. Read-only opens
// fail with KindNotFound when the file does not exist; writable opens
// create it. The driver's own busy handler is disabled so that every
// busy result reaches the retry policy.
func Open(options Options) (*Conn, error) {
	if options.Path == "" {
		return nil, &Error{Kind: KindOpen, Message: "path is required"}
	}

	logger := logging.OrDiscard(options.Logger)
	retry := options.Retry
	if retry.Logger == nil {
		retry.Logger = logger
	}
	retry = retry.withDefaults()

	var flags sqlite.OpenFlags
	if options.ReadOnly {
		if _, err := os.Stat(options.Path); err != nil {
			kind := KindOpen
			if errors.Is(err, fs.ErrNotExist) {
				kind = KindNotFound
			}
			return nil, &Error{Kind: kind, Path: options.Path, Err: err}
		}
		flags = sqlite.OpenReadOnly
	} else {
		flags = sqlite.OpenReadWrite | sqlite.OpenCreate
		if options.WAL {
			flags |= sqlite.OpenWAL
		}
	}

	raw, err := sqlite.OpenConn(options.Path, flags)
	if err != nil {
		return nil, &Error{
			Kind: KindOpen,
			Path: options.Path,
			Code: sqlite.ErrCode(err),
			Err:  err,
		}
	}
	raw.SetBusyTimeout(0)

	logger.Log(context.Background(), logging.LevelTrace, "database opened",
		"path", options.Path,
		"read_only", options.ReadOnly,
	)

	return &Conn{
		conn:       raw,
		path:       options.Path,
		readOnly:   options.ReadOnly,
		retry:      retry,
		logger:     logger,
		statements: make(map[*Stmt]struct{}),
	}, nil
}

// Path returns the database file path.
func (c *Conn) Path() string { return c.path }

// ReadOnly reports whether the connection was opened read-only.
func (c *Conn) ReadOnly() bool { return c.readOnly }

// Valid reports whether the handle is open.
func (c *Conn) Valid() bool { return !c.closed }

// Exec runs a complete, non-parameterized statement or batch of
// statements. See Query for failure behavior.
func (c *Conn) Exec(query string) error {
	_, err := c.exec(query, false)
	return err
}

// Query runs a statement or batch like Exec and returns one Row per
// result row, in order, across every statement of the batch. The result
// is non-nil on success even when no rows were produced.
//
// Preparation and every step go through the retry policy. On any other
// failure the connection is closed and a KindExec error carrying the
// driver's message is returned; on timeout the connection is closed
// and the KindTimeout error is returned.
func (c *Conn) Query(query string) ([]Row, error) {
	return c.exec(query, true)
}

func (c *Conn) exec(query string, collect bool) ([]Row, error) {
	if err := c.checkOpen(query); err != nil {
		return nil, err
	}
	c.logger.Log(context.Background(), logging.LevelTrace, "exec",
		"path", c.path,
		"query", query,
	)

	var rows []Row
	if collect {
		rows = []Row{}
	}

	remaining := strings.TrimSpace(query)
	for remaining != "" {
		statementSQL := remaining
		var stmt *sqlite.Stmt
		var trailing int
		var prepareErr error
		_, err := c.retry.Do(c.path, func() sqlite.ResultCode {
			stmt, trailing, prepareErr = c.conn.PrepareTransient(statementSQL)
			return sqlite.ErrCode(prepareErr)
		})
		if err != nil {
			return nil, c.failExec(query, err)
		}
		if prepareErr != nil {
			return nil, c.failExec(query, prepareErr)
		}
		remaining = strings.TrimSpace(remaining[len(remaining)-trailing:])
		if stmt == nil {
			continue
		}

		err = c.runStatement(stmt, collect, &rows)
		stmt.Finalize()
		if err != nil {
			return nil, c.failExec(query, err)
		}
	}
	return rows, nil
}

// runStatement steps stmt to completion, appending rows when collect is
// set.
func (c *Conn) runStatement(stmt *sqlite.Stmt, collect bool, rows *[]Row) error {
	for resumed := false; ; resumed = true {
		var (
			hasRow  bool
			stepErr error
		)
		_, err := c.retry.Step(c.path, resumed, func() sqlite.ResultCode {
			hasRow, stepErr = stmt.Step()
			return sqlite.ErrCode(stepErr)
		})
		if err != nil {
			return err
		}
		if stepErr != nil {
			return stepErr
		}
		if !hasRow {
			return nil
		}
		if collect {
			*rows = append(*rows, readRow(stmt))
		}
	}
}

func readRow(stmt *sqlite.Stmt) Row {
	count := stmt.ColumnCount()
	row := make(Row, count)
	for column := 0; column < count; column++ {
		name := stmt.ColumnName(column)
		if stmt.ColumnType(column) == sqlite.TypeNull {
			row[name] = NullText
			continue
		}
		row[name] = stmt.ColumnText(column)
	}
	return row
}

// failExec logs the failed query, closes the connection, and returns
// the error to surface.
func (c *Conn) failExec(query string, cause error) error {
	c.recordError(cause)
	c.logger.Info("query failed",
		"path", c.path,
		"query", query,
		"error", cause,
	)

	var result error
	var typed *Error
	if errors.As(cause, &typed) {
		result = typed
	} else {
		result = &Error{
			Kind:    KindExec,
			Path:    c.path,
			Query:   query,
			Code:    sqlite.ErrCode(cause),
			Message: c.ErrorMessage(),
			Err:     cause,
		}
	}

	if closeErr := c.Close(); closeErr != nil {
		c.logger.Info("closing connection after failed query",
			"path", c.path,
			"error", closeErr,
		)
	}
	return result
}

// Changes returns the number of rows inserted, updated or deleted by
// the most recent data-modifying statement.
func (c *Conn) Changes() int {
	if c.closed {
		return 0
	}
	return c.conn.Changes()
}

// LastInsertRowID returns the rowid of the most recent successful
// insert.
func (c *Conn) LastInsertRowID() int64 {
	if c.closed {
		return 0
	}
	return c.conn.LastInsertRowID()
}

// ErrorMessage returns the most recent driver error text. It remains
// available after the failure that produced it, including after the
// connection has been closed.
func (c *Conn) ErrorMessage() string {
	if c.lastError == "" {
		return errorPrefix + "not an error"
	}
	return errorPrefix + c.lastError
}

func (c *Conn) recordError(err error) {
	if err == nil {
		return
	}
	c.lastError = strings.TrimPrefix(err.Error(), "sqlite: ")
}

func (c *Conn) checkOpen(query string) error {
	if !c.closed {
		return nil
	}
	return &Error{
		Kind:    KindClosed,
		Path:    c.path,
		Query:   query,
		Message: "connection is closed",
	}
}

// Close finalizes any statements still open on the connection and
// releases the handle through the retry policy. The handle is released
// exactly once; later calls return the first call's result.
func (c *Conn) Close() error {
	if c.closed {
		return c.closeErr
	}
	c.closed = true

	for stmt := range c.statements {
		stmt.Close()
	}

	// The binding frees the handle even when sqlite3_close reports
	// busy, so the handle is consumed by the first attempt.
	raw := c.conn
	var closeErr error
	_, err := c.retry.Do(c.path, func() sqlite.ResultCode {
		if raw == nil {
			return sqlite.ResultOK
		}
		closeErr = raw.Close()
		raw = nil
		return sqlite.ErrCode(closeErr)
	})
	c.conn = nil

	switch {
	case err != nil:
		c.closeErr = err
	case closeErr != nil:
		c.recordError(closeErr)
		c.closeErr = &Error{
			Kind: KindInternal,
			Path: c.path,
			Code: sqlite.ErrCode(closeErr),
			Err:  closeErr,
		}
	}
	return c.closeErr
}
