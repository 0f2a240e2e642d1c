// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitedb is the low-level access layer for tuning cache
// files. It wraps zombiezen.com/go/sqlite with owning handle types and
// a busy-retry policy built for multi-process contention on a single
// database file.
//
// Unlike a pooled service database, a cache file is shared between
// unrelated processes that each hold one connection. The driver's
// busy handler is therefore disabled and every call that can report
// SQLITE_BUSY runs through [RetryPolicy.Do]: it yields for the first
// attempts, then sleeps a short fixed interval, and gives up with a
// [KindTimeout] error once the deadline passes.
//
// # Handles
//
// [Conn] owns one database handle and releases it exactly once.
// [Conn.Exec] and [Conn.Query] run unparameterized statement batches;
// a non-busy failure closes the connection, since its state is no
// longer trusted. [Stmt] owns one compiled statement and follows the
// state machine Compiled, Row*, Done, with Failed as the terminal
// error state.
//
// Result rows map column names to text. A SQL NULL is the literal
// [NullText], never an absent key.
//
// # Schema
//
// [SchemaGuard] creates missing tables under an exclusive file lock and
// validates column sets under a shared lock. A mismatch is reported as
// a false result, leaving the caller to degrade the cache instead of
// failing.
//
// # Errors
//
// Every failure is an [*Error] with a [Kind]. Use [IsKind] or
// errors.As to branch on it.
//
// # Usage
//
//	conn, err := sqlitedb.Open(sqlitedb.Options{
//	    Path:   "/home/user/.cache/perfdb/gfx90a_104.udb",
//	    Logger: logger,
//	})
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//
//	stmt, err := sqlitedb.PrepareWith(conn,
//	    "SELECT params FROM perf_db WHERE solver = ?;", "ConvAsm1x1U")
//	if err != nil {
//	    return err
//	}
//	defer stmt.Close()
//	for {
//	    code, err := stmt.Step()
//	    if err != nil {
//	        return err
//	    }
//	    if code == sqlite.ResultDone {
//	        break
//	    }
//	    fmt.Println(stmt.ColumnText(0))
//	}
package sqlitedb
