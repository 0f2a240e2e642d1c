// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitedb

import (
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/bureau-foundation/perfdb/lib/filelock"
	"github.com/bureau-foundation/perfdb/lib/logging"
)

// DefaultLockTimeout bounds lock-file acquisition when a SchemaGuard
// has no LockTimeout.
const DefaultLockTimeout = 60 * time.Second

// Table describes one table a cache file must hold.
type Table struct {
	// Name is the table name as stored in sqlite_master.
	Name string

	// Create is the DDL batch that creates the table and its indexes.
	// Every statement must be guarded by IF NOT EXISTS.
	Create string

	// Columns is the exact column set the table must have.
	Columns []string
}

// SchemaGuard checks and creates the tables of a cache file. Schema
// reads run under the shared lock and schema changes under the
// exclusive lock of Locker. A nil Locker skips locking, which is only
// correct when no other process can touch the file.
type SchemaGuard struct {
	Conn        *Conn
	Locker      filelock.Provider
	LockTimeout time.Duration
	Logger      *slog.Logger
}

// MissingTables returns the names of tables not present in the
// database, in the order given.
func (g *SchemaGuard) MissingTables(tables []Table) ([]string, error) {
	if len(tables) == 0 {
		return nil, nil
	}
	names := make([]string, len(tables))
	for i, table := range tables {
		names[i] = quoteLiteral(table.Name)
	}
	query := "SELECT name FROM sqlite_master WHERE type = 'table' AND name IN (" +
		strings.Join(names, ", ") + ");"

	var rows []Row
	err := g.withLock(filelock.Shared, func() error {
		var err error
		rows, err = g.Conn.Query(query)
		return err
	})
	if err != nil {
		return nil, err
	}

	present := make(map[string]bool, len(rows))
	for _, row := range rows {
		present[row["name"]] = true
	}
	var missing []string
	for _, table := range tables {
		if !present[table.Name] {
			missing = append(missing, table.Name)
		}
	}
	return missing, nil
}

// Ensure creates any missing tables. The Create batches of the missing
// tables run as a single Exec under the exclusive lock; tables already
// present are left alone, so a stale table cannot break the index DDL
// of its batch. Concurrent creators are harmless because the DDL is
// guarded by IF NOT EXISTS. Ensure reports whether it ran the DDL.
func (g *SchemaGuard) Ensure(tables []Table) (bool, error) {
	missing, err := g.MissingTables(tables)
	if err != nil {
		return false, err
	}
	if len(missing) == 0 {
		return false, nil
	}

	var batch strings.Builder
	for _, table := range tables {
		if !slices.Contains(missing, table.Name) {
			continue
		}
		batch.WriteString(strings.TrimSpace(table.Create))
		if !strings.HasSuffix(batch.String(), ";") {
			batch.WriteString(";")
		}
		batch.WriteString("\n")
	}

	err = g.withLock(filelock.Exclusive, func() error {
		return g.Conn.Exec(batch.String())
	})
	if err != nil {
		return false, err
	}
	g.logger().Debug("database created",
		"path", g.Conn.Path(),
		"missing", missing,
	)
	return true, nil
}

// Validate reports whether every table has exactly its expected column
// set. Each mismatched table is logged as a warning. A mismatch is not
// an error; errors are returned only for lock or query failures.
func (g *SchemaGuard) Validate(tables []Table) (bool, error) {
	valid := true
	err := g.withLock(filelock.Shared, func() error {
		for _, table := range tables {
			rows, err := g.Conn.Query("PRAGMA table_info(" + quoteLiteral(table.Name) + ");")
			if err != nil {
				return err
			}
			actual := make([]string, 0, len(rows))
			for _, row := range rows {
				actual = append(actual, row["name"])
			}
			if !sameColumns(actual, table.Columns) {
				g.logger().Warn("invalid fields in table, disabling access",
					"path", g.Conn.Path(),
					"table", table.Name,
					"expected", table.Columns,
					"actual", actual,
				)
				valid = false
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return valid, nil
}

func (g *SchemaGuard) withLock(mode filelock.Mode, fn func() error) error {
	if g.Locker == nil {
		return fn()
	}
	timeout := g.LockTimeout
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}

	var (
		lock filelock.Unlocker
		err  error
	)
	if mode == filelock.Exclusive {
		lock, err = g.Locker.LockExclusive(timeout)
	} else {
		lock, err = g.Locker.LockShared(timeout)
	}
	if err != nil {
		return &Error{
			Kind:    KindLock,
			Path:    g.Conn.Path(),
			Message: mode.String() + " lock not acquired",
			Err:     err,
		}
	}
	defer func() {
		if unlockErr := lock.Unlock(); unlockErr != nil {
			g.logger().Warn("releasing schema lock",
				"path", g.Conn.Path(),
				"error", unlockErr,
			)
		}
	}()
	return fn()
}

func (g *SchemaGuard) logger() *slog.Logger {
	return logging.OrDiscard(g.Logger)
}

// sameColumns reports whether actual and expected hold the same names,
// ignoring order.
func sameColumns(actual, expected []string) bool {
	if len(actual) != len(expected) {
		return false
	}
	a := slices.Clone(actual)
	b := slices.Clone(expected)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

// quoteLiteral renders name as a SQL string literal.
func quoteLiteral(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
