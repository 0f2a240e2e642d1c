// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitedb_test

import (
	"errors"
	"testing"
	"time"

	"github.com/bureau-foundation/perfdb/lib/filelock"
	"github.com/bureau-foundation/perfdb/lib/sqlitedb"
	"github.com/bureau-foundation/perfdb/lib/testutil"
)

var testTables = []sqlitedb.Table{
	{
		Name: "solvers",
		Create: "CREATE TABLE IF NOT EXISTS `solvers` (`id` INTEGER PRIMARY KEY ASC, `name` TEXT NOT NULL);" +
			"CREATE UNIQUE INDEX IF NOT EXISTS `idx_solvers` ON solvers(name);",
		Columns: []string{"id", "name"},
	},
	{
		Name: "timings",
		Create: "CREATE TABLE IF NOT EXISTS `timings` (`id` INTEGER PRIMARY KEY ASC, `solver` INTEGER NOT NULL, " +
			"`arch` TEXT NOT NULL, `num_cu` INTEGER NOT NULL)",
		Columns: []string{"id", "solver", "arch", "num_cu"},
	},
}

func newGuard(t *testing.T, path string) *sqlitedb.SchemaGuard {
	t.Helper()
	return &sqlitedb.SchemaGuard{
		Conn:        openTestConn(t, path),
		Locker:      filelock.New(filelock.PathFor(path, "")),
		LockTimeout: time.Second,
	}
}

func schemaSQL(t *testing.T, conn *sqlitedb.Conn) []sqlitedb.Row {
	t.Helper()
	rows, err := conn.Query("SELECT type, name, sql FROM sqlite_master ORDER BY type, name;")
	if err != nil {
		t.Fatalf("reading sqlite_master: %v", err)
	}
	return rows
}

func TestEnsureCreatesMissingTables(t *testing.T) {
	guard := newGuard(t, testutil.TempPath(t, "schema.udb"))

	missing, err := guard.MissingTables(testTables)
	if err != nil {
		t.Fatalf("MissingTables: %v", err)
	}
	if len(missing) != 2 || missing[0] != "solvers" || missing[1] != "timings" {
		t.Errorf("missing = %v, want [solvers timings]", missing)
	}

	created, err := guard.Ensure(testTables)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if !created {
		t.Error("Ensure did not run DDL on an empty database")
	}

	missing, err = guard.MissingTables(testTables)
	if err != nil {
		t.Fatalf("MissingTables: %v", err)
	}
	if len(missing) != 0 {
		t.Errorf("missing after Ensure = %v", missing)
	}

	valid, err := guard.Validate(testTables)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !valid {
		t.Error("freshly created schema failed validation")
	}
}

func TestCreateDDLIdempotent(t *testing.T) {
	path := testutil.TempPath(t, "race.udb")
	guard := newGuard(t, path)
	if _, err := guard.Ensure(testTables); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	before := schemaSQL(t, guard.Conn)

	// A second process that saw the tables missing before the first
	// created them runs the same batch.
	second := openTestConn(t, path)
	for _, table := range testTables {
		if err := second.Exec(table.Create); err != nil {
			t.Fatalf("repeating DDL for %s: %v", table.Name, err)
		}
	}

	created, err := guard.Ensure(testTables)
	if err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
	if created {
		t.Error("second Ensure ran DDL although no table was missing")
	}

	after := schemaSQL(t, guard.Conn)
	if len(before) != len(after) {
		t.Fatalf("schema changed: %d objects before, %d after", len(before), len(after))
	}
	for i := range before {
		for _, column := range []string{"type", "name", "sql"} {
			if before[i][column] != after[i][column] {
				t.Errorf("object %d %s: %q became %q", i, column, before[i][column], after[i][column])
			}
		}
	}
}

func TestValidateColumnMismatch(t *testing.T) {
	path := testutil.TempPath(t, "stale.udb")
	guard := newGuard(t, path)
	err := guard.Conn.Exec(`
		CREATE TABLE solvers (id INTEGER PRIMARY KEY, name TEXT);
		CREATE TABLE timings (id INTEGER PRIMARY KEY, solver INTEGER, arch TEXT);
	`)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}

	valid, err := guard.Validate(testTables)
	if err != nil {
		t.Fatalf("Validate returned an error for a mismatch: %v", err)
	}
	if valid {
		t.Error("table missing num_cu passed validation")
	}
}

func TestValidateExtraColumn(t *testing.T) {
	guard := newGuard(t, testutil.TempPath(t, "extra.udb"))
	if _, err := guard.Ensure(testTables); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if err := guard.Conn.Exec("ALTER TABLE solvers ADD COLUMN vendor TEXT;"); err != nil {
		t.Fatalf("ALTER TABLE: %v", err)
	}

	valid, err := guard.Validate(testTables)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if valid {
		t.Error("table with an extra column passed validation")
	}
}

func TestValidateMissingTable(t *testing.T) {
	guard := newGuard(t, testutil.TempPath(t, "empty.db"))
	valid, err := guard.Validate(testTables)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if valid {
		t.Error("absent tables passed validation")
	}
}

type failingLocker struct{ err error }

func (l failingLocker) LockShared(time.Duration) (filelock.Unlocker, error)    { return nil, l.err }
func (l failingLocker) LockExclusive(time.Duration) (filelock.Unlocker, error) { return nil, l.err }

func TestLockFailureSurfacesBeforeQuery(t *testing.T) {
	cause := errors.New("lock file unavailable")
	guard := &sqlitedb.SchemaGuard{
		Conn:   openTestConn(t, testutil.TempPath(t, "locked.udb")),
		Locker: failingLocker{err: cause},
	}

	_, err := guard.Ensure(testTables)
	if !sqlitedb.IsKind(err, sqlitedb.KindLock) {
		t.Fatalf("Ensure: err = %v, want KindLock", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("KindLock error does not wrap the cause: %v", err)
	}

	_, err = guard.Validate(testTables)
	if !sqlitedb.IsKind(err, sqlitedb.KindLock) {
		t.Errorf("Validate: err = %v, want KindLock", err)
	}
	if !guard.Conn.Valid() {
		t.Error("lock failure closed the connection")
	}
}

func TestExclusiveLockHeldElsewhere(t *testing.T) {
	path := testutil.TempPath(t, "held.udb")
	guard := newGuard(t, path)
	guard.LockTimeout = 10 * time.Millisecond

	holder, err := filelock.New(filelock.PathFor(path, "")).LockShared(0)
	if err != nil {
		t.Fatalf("LockShared: %v", err)
	}
	defer holder.Unlock()

	_, err = guard.Ensure(testTables)
	if !sqlitedb.IsKind(err, sqlitedb.KindLock) {
		t.Fatalf("Ensure under foreign shared lock: err = %v, want KindLock", err)
	}
	if !errors.Is(err, filelock.ErrTimeout) {
		t.Errorf("error does not wrap filelock.ErrTimeout: %v", err)
	}
}
