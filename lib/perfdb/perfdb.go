// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package perfdb

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"zombiezen.com/go/sqlite"

	"github.com/bureau-foundation/perfdb/lib/filelock"
	"github.com/bureau-foundation/perfdb/lib/logging"
	"github.com/bureau-foundation/perfdb/lib/problem"
	"github.com/bureau-foundation/perfdb/lib/sqlitedb"
)

// Table is the tuning results table.
const Table = "perf_db"

const createPerfDB = "CREATE TABLE IF NOT EXISTS `perf_db` (" +
	"`id` INTEGER PRIMARY KEY ASC," +
	"`solver` TEXT NOT NULL," +
	"`config` INTEGER NOT NULL," +
	"`arch` TEXT NOT NULL," +
	"`num_cu` INTEGER NOT NULL," +
	"`params` TEXT NOT NULL" +
	");" +
	"CREATE UNIQUE INDEX IF NOT EXISTS `idx_perf_db` " +
	"ON perf_db(solver, config, arch, num_cu);"

var perfDBColumns = []string{"id", "solver", "config", "arch", "num_cu", "params"}

// Record holds every solver's parameters for one problem on one
// (arch, num_cu): solver identity to serialized parameters.
type Record map[string]string

// Solvers returns the record's solver identities in sorted order.
func (r Record) Solvers() []string {
	solvers := make([]string, 0, len(r))
	for solver := range r {
		solvers = append(solvers, solver)
	}
	sort.Strings(solvers)
	return solvers
}

// Entry is one perf_db row joined with its problem's fields.
type Entry struct {
	Solver  string            `json:"solver"`
	Arch    string            `json:"arch"`
	NumCU   int               `json:"num_cu"`
	Params  string            `json:"params"`
	Problem map[string]string `json:"problem"`
}

// Config holds the parameters for opening a cache.
type Config struct {
	// Path is the cache file. Required.
	Path string

	// Shared opens the file read-only as an installed system cache.
	Shared bool

	// Arch is the gfx architecture the cache serves, e.g. "gfx90a".
	// Required.
	Arch string

	// NumCU is the compute-unit count the cache serves. Required.
	NumCU int

	// Problem is a prototype of the problem kind stored in the cache.
	// It supplies the problem table's name, DDL, and columns. Defaults
	// to problem.NewConv().
	Problem problem.Descriptor

	// Locker arbitrates schema creation between processes. Defaults to a
	// lock file placed according to LockDir.
	Locker filelock.Provider

	// LockDir holds the default lock file when Locker is nil. Shared
	// caches without one lock under filelock.SharedDir, since the
	// install directory is usually read-only.
	LockDir string

	// LockTimeout bounds lock acquisition. Defaults to
	// sqlitedb.DefaultLockTimeout.
	LockTimeout time.Duration

	// Retry governs busy retries. The zero value uses the defaults.
	Retry sqlitedb.RetryPolicy

	// WAL switches a user cache to write-ahead logging.
	WAL bool

	// Logger receives operational messages. If nil, a no-op logger is
	// used.
	Logger *slog.Logger
}

// DB is an open tuning cache. DB is safe for concurrent use; calls are
// serialized on the underlying connection.
type DB struct {
	path    string
	shared  bool
	arch    string
	numCU   int
	problem problem.Descriptor
	logger  *slog.Logger

	mu      sync.Mutex
	conn    *sqlitedb.Conn
	invalid bool
}

// Tables returns the table set of a cache storing problems of the
// prototype's kind.
func Tables(prototype problem.Descriptor) []sqlitedb.Table {
	return []sqlitedb.Table{
		{
			Name:    prototype.TableName(),
			Create:  prototype.CreateQuery(),
			Columns: problem.Columns(prototype),
		},
		{
			Name:    Table,
			Create:  createPerfDB,
			Columns: perfDBColumns,
		},
	}
}

// Open opens the cache described by config. User caches are created
// and their tables ensured; every cache has its tables validated. A
// missing shared file or a schema mismatch yields a DB with Invalid
// set and a nil error.
func Open(config Config) (*DB, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("perfdb: Path is required")
	}
	if config.Arch == "" {
		return nil, fmt.Errorf("perfdb: Arch is required")
	}
	if config.NumCU <= 0 {
		return nil, fmt.Errorf("perfdb: NumCU must be positive, got %d", config.NumCU)
	}
	if config.Problem == nil {
		config.Problem = problem.NewConv()
	}
	logger := logging.OrDiscard(config.Logger).With("path", config.Path)

	db := &DB{
		path:    config.Path,
		shared:  config.Shared,
		arch:    config.Arch,
		numCU:   config.NumCU,
		problem: config.Problem,
		logger:  logger,
	}

	conn, err := sqlitedb.Open(sqlitedb.Options{
		Path:     config.Path,
		ReadOnly: config.Shared,
		WAL:      config.WAL,
		Retry:    config.Retry,
		Logger:   config.Logger,
	})
	if err != nil {
		if config.Shared && sqlitedb.IsKind(err, sqlitedb.KindNotFound) {
			logger.Info("shared cache not found, disabling access")
			db.invalid = true
			return db, nil
		}
		return nil, fmt.Errorf("perfdb: opening cache: %w", err)
	}
	db.conn = conn

	locker := config.Locker
	if locker == nil {
		lockDir := config.LockDir
		if lockDir == "" && config.Shared {
			lockDir = filelock.SharedDir()
		}
		locker = filelock.New(filelock.PathFor(config.Path, lockDir))
	}
	guard := &sqlitedb.SchemaGuard{
		Conn:        conn,
		Locker:      locker,
		LockTimeout: config.LockTimeout,
		Logger:      logger,
	}
	tables := Tables(config.Problem)

	if !config.Shared {
		if _, err := guard.Ensure(tables); err != nil {
			conn.Close()
			return nil, fmt.Errorf("perfdb: creating tables: %w", err)
		}
	}
	valid, err := guard.Validate(tables)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("perfdb: validating tables: %w", err)
	}
	if !valid {
		logger.Warn("cache schema invalid, disabling access")
		db.invalid = true
	}
	return db, nil
}

// Path returns the cache file path.
func (db *DB) Path() string { return db.path }

// Arch returns the architecture the cache serves.
func (db *DB) Arch() string { return db.arch }

// NumCU returns the compute-unit count the cache serves.
func (db *DB) NumCU() int { return db.numCU }

// Shared reports whether the cache was opened as a read-only system
// cache.
func (db *DB) Shared() bool { return db.shared }

// Invalid reports whether the cache failed to open or validate. An
// invalid cache finds nothing and rejects writes.
func (db *DB) Invalid() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.invalid
}

// Close releases the connection. Close is idempotent.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.conn == nil {
		return nil
	}
	err := db.conn.Close()
	db.conn = nil
	db.invalid = true
	return err
}

// readable reports whether lookups may touch the database. The caller
// holds mu.
func (db *DB) readable() bool {
	return !db.invalid && db.conn != nil && db.conn.Valid()
}

// checkWritable returns the error for a write the cache cannot accept.
// The caller holds mu.
func (db *DB) checkWritable(p problem.Descriptor) error {
	if db.shared {
		return &sqlitedb.Error{Kind: sqlitedb.KindReadOnly, Path: db.path, Message: "shared cache is read-only"}
	}
	if !db.readable() {
		return &sqlitedb.Error{Kind: sqlitedb.KindInvalidCache, Path: db.path, Message: "cache is invalid"}
	}
	return db.checkProblem(p)
}

func (db *DB) checkProblem(p problem.Descriptor) error {
	if p == nil {
		return fmt.Errorf("perfdb: problem is nil")
	}
	if p.TableName() != db.problem.TableName() {
		return fmt.Errorf("perfdb: problem table %q does not match cache table %q",
			p.TableName(), db.problem.TableName())
	}
	return nil
}

// problemMatch returns the WHERE clause selecting p's row in the
// problem table, with columns qualified by the table name.
func problemMatch(p problem.Descriptor) string {
	table := p.TableName()
	names := p.FieldNames()
	clauses := make([]string, len(names))
	for i, name := range names {
		clauses[i] = table + "." + name + " = ?"
	}
	return strings.Join(clauses, " AND ")
}

// query prepares query with text values, steps it to completion, and
// calls row for each result row. The caller holds mu.
func (db *DB) query(query string, values []string, row func(*sqlitedb.Stmt) error) error {
	stmt, err := sqlitedb.PrepareWith(db.conn, query, values...)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for {
		code, err := stmt.Step()
		if err != nil {
			return err
		}
		if code == sqlite.ResultDone {
			return nil
		}
		if row != nil {
			if err := row(stmt); err != nil {
				return err
			}
		}
	}
}

// bind binds values to parameters 1 through len(values). Values must
// be string or int64.
func bind(stmt *sqlitedb.Stmt, values ...any) error {
	for i, value := range values {
		var err error
		switch v := value.(type) {
		case string:
			err = stmt.BindText(i+1, v)
		case int64:
			err = stmt.BindInt64(i+1, v)
		default:
			err = fmt.Errorf("perfdb: cannot bind %T", value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// configID returns the row id of p in the problem table. The caller
// holds mu.
func (db *DB) configID(p problem.Descriptor) (int64, bool, error) {
	query := "SELECT id FROM " + p.TableName() + " WHERE " + problemMatch(p) + " LIMIT 1;"
	var id int64
	found := false
	err := db.query(query, p.FieldValues(), func(stmt *sqlitedb.Stmt) error {
		id = stmt.ColumnInt64(0)
		found = true
		return nil
	})
	return id, found, err
}

// FindRecord returns every solver's parameters for p on the cache's
// (arch, num_cu). The bool is false when the cache holds nothing for
// p, including when the cache is invalid.
func (db *DB) FindRecord(p problem.Descriptor) (Record, bool, error) {
	if err := db.checkProblem(p); err != nil {
		return nil, false, err
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.readable() {
		return nil, false, nil
	}

	query := "SELECT perf_db.solver, perf_db.params FROM perf_db " +
		"INNER JOIN " + p.TableName() + " ON perf_db.config = " + p.TableName() + ".id " +
		"WHERE " + problemMatch(p) + " AND perf_db.arch = ? AND perf_db.num_cu = ?;"
	values := append(p.FieldValues(), db.arch, fmt.Sprint(db.numCU))

	record := Record{}
	err := db.query(query, values, func(stmt *sqlitedb.Stmt) error {
		record[stmt.ColumnText(0)] = stmt.ColumnText(1)
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("perfdb: finding record: %w", err)
	}
	if len(record) == 0 {
		return nil, false, nil
	}
	db.logger.Debug("record found", "problem", p, "solvers", len(record))
	return record, true, nil
}

// Load returns the parameters solver stored for p.
func (db *DB) Load(p problem.Descriptor, solver string) (string, bool, error) {
	if err := db.checkProblem(p); err != nil {
		return "", false, err
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.readable() {
		return "", false, nil
	}

	query := "SELECT perf_db.params FROM perf_db " +
		"INNER JOIN " + p.TableName() + " ON perf_db.config = " + p.TableName() + ".id " +
		"WHERE " + problemMatch(p) + " AND perf_db.solver = ? AND perf_db.arch = ? AND perf_db.num_cu = ?;"
	values := append(p.FieldValues(), solver, db.arch, fmt.Sprint(db.numCU))

	var params string
	found := false
	err := db.query(query, values, func(stmt *sqlitedb.Stmt) error {
		params = stmt.ColumnText(0)
		found = true
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("perfdb: loading %s: %w", solver, err)
	}
	return params, found, nil
}

// Store upserts solver's parameters for p. It reports true when a new
// row was inserted and false when an existing row was updated.
func (db *DB) Store(p problem.Descriptor, solver, params string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.checkWritable(p); err != nil {
		return false, err
	}
	inserted, err := db.store(p, solver, params)
	if err != nil {
		return false, fmt.Errorf("perfdb: storing %s: %w", solver, err)
	}
	return inserted, nil
}

// store is Store with mu held.
func (db *DB) store(p problem.Descriptor, solver, params string) (bool, error) {
	id, err := db.insertProblem(p)
	if err != nil {
		return false, err
	}

	insert, err := sqlitedb.Prepare(db.conn,
		"INSERT OR IGNORE INTO perf_db (config, solver, arch, num_cu, params) VALUES (?, ?, ?, ?, ?);")
	if err != nil {
		return false, err
	}
	defer insert.Close()
	if err := bind(insert, id, solver, db.arch, int64(db.numCU), params); err != nil {
		return false, err
	}
	if err := insert.Exec(); err != nil {
		return false, err
	}
	if db.conn.Changes() > 0 {
		db.logger.Debug("record inserted", "solver", solver, "config", id)
		return true, nil
	}

	update, err := sqlitedb.Prepare(db.conn,
		"UPDATE perf_db SET params = ? WHERE config = ? AND solver = ? AND arch = ? AND num_cu = ?;")
	if err != nil {
		return false, err
	}
	defer update.Close()
	if err := bind(update, params, id, solver, db.arch, int64(db.numCU)); err != nil {
		return false, err
	}
	if err := update.Exec(); err != nil {
		return false, err
	}
	db.logger.Debug("record updated", "solver", solver, "config", id)
	return false, nil
}

// insertProblem returns p's row id, inserting the row if needed. The
// caller holds mu.
func (db *DB) insertProblem(p problem.Descriptor) (int64, error) {
	names := p.FieldNames()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	query := "INSERT OR IGNORE INTO " + p.TableName() +
		" (" + strings.Join(names, ", ") + ") VALUES (" + placeholders + ");"
	if err := db.query(query, p.FieldValues(), nil); err != nil {
		return 0, err
	}
	if db.conn.Changes() > 0 {
		return db.conn.LastInsertRowID(), nil
	}

	id, found, err := db.configID(p)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, &sqlitedb.Error{
			Kind:    sqlitedb.KindInternal,
			Path:    db.path,
			Message: "problem row vanished after insert",
		}
	}
	return id, nil
}

// StoreRecord stores every solver of record for p, in solver order.
func (db *DB) StoreRecord(p problem.Descriptor, record Record) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.checkWritable(p); err != nil {
		return err
	}
	for _, solver := range record.Solvers() {
		if _, err := db.store(p, solver, record[solver]); err != nil {
			return fmt.Errorf("perfdb: storing %s: %w", solver, err)
		}
	}
	return nil
}

// Remove deletes solver's parameters for p. It reports whether a row
// was deleted.
func (db *DB) Remove(p problem.Descriptor, solver string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.checkWritable(p); err != nil {
		return false, err
	}
	count, err := db.remove(p, "AND solver = ?", solver)
	if err != nil {
		return false, fmt.Errorf("perfdb: removing %s: %w", solver, err)
	}
	return count > 0, nil
}

// RemoveRecord deletes every solver's parameters for p and returns the
// number of rows deleted.
func (db *DB) RemoveRecord(p problem.Descriptor) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.checkWritable(p); err != nil {
		return 0, err
	}
	count, err := db.remove(p, "")
	if err != nil {
		return 0, fmt.Errorf("perfdb: removing record: %w", err)
	}
	return count, nil
}

func (db *DB) remove(p problem.Descriptor, extra string, values ...string) (int, error) {
	id, found, err := db.configID(p)
	if err != nil || !found {
		return 0, err
	}
	query := "DELETE FROM perf_db WHERE config = ? AND arch = ? AND num_cu = ? " + extra + ";"
	bound := append([]string{fmt.Sprint(id), db.arch, fmt.Sprint(db.numCU)}, values...)
	if err := db.query(query, bound, nil); err != nil {
		return 0, err
	}
	return db.conn.Changes(), nil
}

// Entries calls fn for every perf_db row of the cache's (arch, num_cu),
// in insertion order, with its problem's fields. Rows are read before
// fn is first called, so fn may use the DB. Iteration stops at the
// first error fn returns.
func (db *DB) Entries(fn func(Entry) error) error {
	entries, err := db.readEntries()
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := fn(entry); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) readEntries() ([]Entry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.readable() {
		return nil, nil
	}

	table := db.problem.TableName()
	names := db.problem.FieldNames()
	columns := make([]string, len(names))
	for i, name := range names {
		columns[i] = table + "." + name
	}
	query := "SELECT perf_db.solver, perf_db.params, " + strings.Join(columns, ", ") +
		" FROM perf_db INNER JOIN " + table + " ON perf_db.config = " + table + ".id" +
		" WHERE perf_db.arch = ? AND perf_db.num_cu = ? ORDER BY perf_db.id;"

	var entries []Entry
	err := db.query(query, []string{db.arch, fmt.Sprint(db.numCU)}, func(stmt *sqlitedb.Stmt) error {
		entry := Entry{
			Solver:  stmt.ColumnText(0),
			Params:  stmt.ColumnText(1),
			Arch:    db.arch,
			NumCU:   db.numCU,
			Problem: make(map[string]string, len(names)),
		}
		for i, name := range names {
			entry.Problem[name] = stmt.ColumnText(i + 2)
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("perfdb: reading entries: %w", err)
	}
	return entries, nil
}

// Count returns the number of perf_db rows for the cache's
// (arch, num_cu).
func (db *DB) Count() (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.readable() {
		return 0, nil
	}
	var count int64
	err := db.query("SELECT COUNT(*) FROM perf_db WHERE arch = ? AND num_cu = ?;",
		[]string{db.arch, fmt.Sprint(db.numCU)},
		func(stmt *sqlitedb.Stmt) error {
			count = stmt.ColumnInt64(0)
			return nil
		})
	if err != nil {
		return 0, fmt.Errorf("perfdb: counting records: %w", err)
	}
	return int(count), nil
}
