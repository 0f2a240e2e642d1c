// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitedb

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"zombiezen.com/go/sqlite"

	"github.com/bureau-foundation/perfdb/lib/logging"
)

// stmtState tracks a statement through Compiled -> Row* -> Done, or
// into Failed. Done, Failed and Closed are terminal.
type stmtState int

const (
	stateCompiled stmtState = iota
	stateRow
	stateDone
	stateFailed
	stateClosed
)

func (state stmtState) String() string {
	switch state {
	case stateCompiled:
		return "compiled"
	case stateRow:
		return "row"
	case stateDone:
		return "done"
	case stateFailed:
		return "failed"
	case stateClosed:
		return "closed"
	default:
		return "state(" + strconv.Itoa(int(state)) + ")"
	}
}

// Stmt owns one compiled statement on a Conn. A Stmt runs once: after
// it reports ResultDone or fails, a fresh Stmt must be prepared to run
// the query again. Close must be called when the statement is no
// longer needed; Conn.Close finalizes any statement left open.
type Stmt struct {
	conn   *Conn
	stmt   *sqlite.Stmt
	query  string
	params int
	state  stmtState
}

// Prepare compiles query against conn. The query must hold exactly one
// SQL statement. Compile failures return KindPrepare and are not
// retried.
func Prepare(conn *Conn, query string) (*Stmt, error) {
	if err := conn.checkOpen(query); err != nil {
		return nil, err
	}
	conn.logger.Log(context.Background(), logging.LevelTrace, "prepare",
		"path", conn.path,
		"query", query,
	)

	raw, trailing, err := conn.conn.PrepareTransient(query)
	if err != nil {
		conn.recordError(err)
		return nil, &Error{
			Kind:    KindPrepare,
			Path:    conn.path,
			Query:   query,
			Code:    sqlite.ErrCode(err),
			Message: "SQLite prepare error: " + conn.ErrorMessage(),
			Err:     err,
		}
	}
	if raw == nil {
		return nil, &Error{Kind: KindPrepare, Path: conn.path, Query: query, Message: "no SQL statement"}
	}
	if strings.TrimSpace(query[len(query)-trailing:]) != "" {
		raw.Finalize()
		return nil, &Error{Kind: KindPrepare, Path: conn.path, Query: query, Message: "more than one SQL statement"}
	}

	stmt := &Stmt{
		conn:   conn,
		stmt:   raw,
		query:  query,
		params: raw.BindParamCount(),
	}
	conn.statements[stmt] = struct{}{}
	return stmt, nil
}

// PrepareWith compiles query and binds values as text to parameters
// 1 through len(values).
func PrepareWith(conn *Conn, query string, values ...string) (*Stmt, error) {
	stmt, err := Prepare(conn, query)
	if err != nil {
		return nil, err
	}
	for index, value := range values {
		if err := stmt.BindText(index+1, value); err != nil {
			stmt.Close()
			return nil, err
		}
	}
	conn.logger.Log(context.Background(), logging.LevelTrace, "bound",
		"path", conn.path,
		"values", "["+strings.Join(values, ",")+"]",
	)
	return stmt, nil
}

// Query returns the SQL text the statement was prepared from.
func (s *Stmt) Query() string { return s.query }

// ParamCount returns the number of bindable parameters.
func (s *Stmt) ParamCount() int { return s.params }

func (s *Stmt) checkBind(index int) error {
	if s.state == stateClosed {
		return s.misuse("bind on closed statement")
	}
	if s.state != stateCompiled {
		return &Error{
			Kind:    KindBind,
			Path:    s.conn.path,
			Query:   s.query,
			Message: fmt.Sprintf("bind after step (statement is %s)", s.state),
		}
	}
	if index < 1 || index > s.params {
		return &Error{
			Kind:    KindBind,
			Path:    s.conn.path,
			Query:   s.query,
			Message: fmt.Sprintf("parameter index %d out of range [1, %d]", index, s.params),
		}
	}
	return nil
}

// BindText binds text to the 1-indexed parameter. The engine keeps its
// own copy.
func (s *Stmt) BindText(index int, text string) error {
	if err := s.checkBind(index); err != nil {
		return err
	}
	s.stmt.BindText(index, text)
	return nil
}

// BindBlob binds data as a BLOB to the 1-indexed parameter. The engine
// keeps its own copy, so data may be reused as soon as BindBlob returns.
func (s *Stmt) BindBlob(index int, data []byte) error {
	if err := s.checkBind(index); err != nil {
		return err
	}
	s.stmt.BindBytes(index, data)
	return nil
}

// BindInt64 binds an integer to the 1-indexed parameter.
func (s *Stmt) BindInt64(index int, value int64) error {
	if err := s.checkBind(index); err != nil {
		return err
	}
	s.stmt.BindInt64(index, value)
	return nil
}

// Step advances to the next result row through the retry policy. It
// returns sqlite.ResultRow when a row is available and
// sqlite.ResultDone when the statement has finished. Any other outcome
// fails the statement: the returned code is the driver's and the error
// is KindExec (or KindTimeout). Busy is retried only before the first
// row; after that it fails the statement like any other error.
func (s *Stmt) Step() (sqlite.ResultCode, error) {
	switch s.state {
	case stateDone, stateFailed, stateClosed:
		return sqlite.ResultMisuse, s.misuse(fmt.Sprintf("step on %s statement", s.state))
	}

	var hasRow bool
	var stepErr error
	code, err := s.conn.retry.Step(s.conn.path, s.state == stateRow, func() sqlite.ResultCode {
		hasRow, stepErr = s.stmt.Step()
		return sqlite.ErrCode(stepErr)
	})
	if err != nil {
		s.state = stateFailed
		s.conn.recordError(err)
		return code, err
	}
	if stepErr != nil {
		s.state = stateFailed
		s.conn.recordError(stepErr)
		s.conn.logger.Info("statement failed",
			"path", s.conn.path,
			"query", s.query,
			"error", stepErr,
		)
		return code, &Error{
			Kind:    KindExec,
			Path:    s.conn.path,
			Query:   s.query,
			Code:    code,
			Message: s.conn.ErrorMessage(),
			Err:     stepErr,
		}
	}
	if hasRow {
		s.state = stateRow
		return sqlite.ResultRow, nil
	}
	s.state = stateDone
	return sqlite.ResultDone, nil
}

// Exec steps the statement until it is done, discarding rows.
func (s *Stmt) Exec() error {
	for {
		code, err := s.Step()
		if err != nil {
			return err
		}
		if code == sqlite.ResultDone {
			return nil
		}
	}
}

// ColumnCount returns the number of result columns.
func (s *Stmt) ColumnCount() int {
	if s.state == stateClosed {
		return 0
	}
	return s.stmt.ColumnCount()
}

// ColumnName returns the name of the 0-indexed result column.
func (s *Stmt) ColumnName(index int) string {
	if s.state == stateClosed {
		return ""
	}
	return s.stmt.ColumnName(index)
}

// ColumnIsNull reports whether the current row's column is SQL NULL.
func (s *Stmt) ColumnIsNull(index int) bool {
	if s.state != stateRow {
		return true
	}
	return s.stmt.ColumnType(index) == sqlite.TypeNull
}

// ColumnText returns the current row's column as text, exactly as many
// bytes as the driver reports.
func (s *Stmt) ColumnText(index int) string {
	if s.state != stateRow {
		return ""
	}
	return s.stmt.ColumnText(index)
}

// ColumnBlob returns a copy of the current row's column as bytes. The
// length is the driver-reported byte count, so embedded zero bytes
// survive.
func (s *Stmt) ColumnBlob(index int) []byte {
	if s.state != stateRow {
		return nil
	}
	blob := make([]byte, s.stmt.ColumnLen(index))
	s.stmt.ColumnBytes(index, blob)
	return blob
}

// ColumnInt64 returns the current row's column as an integer.
func (s *Stmt) ColumnInt64(index int) int64 {
	if s.state != stateRow {
		return 0
	}
	return s.stmt.ColumnInt64(index)
}

// Close finalizes the statement. Calling Close more than once is a
// no-op.
func (s *Stmt) Close() error {
	if s.state == stateClosed {
		return nil
	}
	failed := s.state == stateFailed
	s.state = stateClosed
	delete(s.conn.statements, s)

	// Finalize repeats the last step error; that error was already
	// reported by Step.
	if err := s.stmt.Finalize(); err != nil && !failed {
		s.conn.recordError(err)
		return &Error{
			Kind:  KindInternal,
			Path:  s.conn.path,
			Query: s.query,
			Code:  sqlite.ErrCode(err),
			Err:   err,
		}
	}
	return nil
}

func (s *Stmt) misuse(message string) error {
	return &Error{
		Kind:    KindMisuse,
		Path:    s.conn.path,
		Query:   s.query,
		Code:    sqlite.ResultMisuse,
		Message: message,
	}
}
