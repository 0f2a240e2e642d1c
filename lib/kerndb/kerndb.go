// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package kerndb

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"zombiezen.com/go/sqlite"

	"github.com/bureau-foundation/perfdb/lib/filelock"
	"github.com/bureau-foundation/perfdb/lib/logging"
	"github.com/bureau-foundation/perfdb/lib/sqlitedb"
)

// Table is the kernel binary table.
const Table = "kern_db"

const createKernDB = "CREATE TABLE IF NOT EXISTS `kern_db` (" +
	"`id` INTEGER PRIMARY KEY ASC," +
	"`kernel_name` TEXT NOT NULL," +
	"`kernel_args` TEXT NOT NULL," +
	"`kernel_blob` BLOB NOT NULL," +
	"`kernel_hash` TEXT NOT NULL," +
	"`uncompressed_size` INT NOT NULL," +
	"`compression` TEXT NOT NULL" +
	");" +
	"CREATE UNIQUE INDEX IF NOT EXISTS `idx_kern_db` " +
	"ON kern_db(kernel_name, kernel_args);"

// Tables is the table set of a kernel cache.
var Tables = []sqlitedb.Table{{
	Name:   Table,
	Create: createKernDB,
	Columns: []string{
		"id", "kernel_name", "kernel_args", "kernel_blob",
		"kernel_hash", "uncompressed_size", "compression",
	},
}}

// ErrCorrupt is wrapped by Find when a stored binary fails its length
// or hash check.
var ErrCorrupt = errors.New("kerndb: corrupt kernel binary")

// Config holds the parameters for opening a kernel cache.
type Config struct {
	// Path is the cache file. Required.
	Path string

	// Shared opens the file read-only as an installed system cache.
	Shared bool

	// Compression is applied to binaries on Store. The zero value
	// stores them uncompressed.
	Compression Compression

	// Locker arbitrates schema creation. Defaults to a lock file
	// placed according to LockDir.
	Locker filelock.Provider

	// LockDir holds the default lock file when Locker is nil. Shared
	// caches without one lock under filelock.SharedDir, since the
	// install directory is usually read-only.
	LockDir string

	// LockTimeout bounds lock acquisition.
	LockTimeout time.Duration

	// Retry governs busy retries. The zero value uses the defaults.
	Retry sqlitedb.RetryPolicy

	// WAL switches a user cache to write-ahead logging.
	WAL bool

	// Logger receives operational messages. If nil, a no-op logger is
	// used.
	Logger *slog.Logger
}

// Info describes a stored binary without its contents.
type Info struct {
	Name        string      `json:"name"`
	Args        string      `json:"args"`
	Hash        string      `json:"hash"`
	Size        int         `json:"size"`
	StoredSize  int         `json:"stored_size"`
	Compression Compression `json:"compression"`
}

// DB is an open kernel cache. DB is safe for concurrent use.
type DB struct {
	path        string
	shared      bool
	compression Compression
	logger      *slog.Logger

	mu      sync.Mutex
	conn    *sqlitedb.Conn
	invalid bool
}

// Open opens the kernel cache described by config. A missing shared
// file or a schema mismatch yields a DB with Invalid set and a nil
// error.
func Open(config Config) (*DB, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("kerndb: Path is required")
	}
	logger := logging.OrDiscard(config.Logger).With("path", config.Path)
	db := &DB{
		path:        config.Path,
		shared:      config.Shared,
		compression: config.Compression,
		logger:      logger,
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
			logger.Info("shared kernel cache not found, disabling access")
			db.invalid = true
			return db, nil
		}
		return nil, fmt.Errorf("kerndb: opening cache: %w", err)
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
	if !config.Shared {
		if _, err := guard.Ensure(Tables); err != nil {
			conn.Close()
			return nil, fmt.Errorf("kerndb: creating tables: %w", err)
		}
	}
	valid, err := guard.Validate(Tables)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("kerndb: validating tables: %w", err)
	}
	if !valid {
		logger.Warn("kernel cache schema invalid, disabling access")
		db.invalid = true
	}
	return db, nil
}

// Path returns the cache file path.
func (db *DB) Path() string { return db.path }

// Invalid reports whether the cache failed to open or validate.
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

func (db *DB) readable() bool {
	return !db.invalid && db.conn != nil && db.conn.Valid()
}

func (db *DB) checkWritable() error {
	if db.shared {
		return &sqlitedb.Error{Kind: sqlitedb.KindReadOnly, Path: db.path, Message: "shared cache is read-only"}
	}
	if !db.readable() {
		return &sqlitedb.Error{Kind: sqlitedb.KindInvalidCache, Path: db.path, Message: "cache is invalid"}
	}
	return nil
}

// Store saves binary under (name, args), replacing any previous
// binary for the key.
func (db *DB) Store(name, args string, binary []byte) error {
	stored, used, err := compress(binary, db.compression)
	if err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.checkWritable(); err != nil {
		return err
	}

	stmt, err := sqlitedb.Prepare(db.conn,
		"INSERT OR REPLACE INTO kern_db "+
			"(kernel_name, kernel_args, kernel_blob, kernel_hash, uncompressed_size, compression) "+
			"VALUES (?, ?, ?, ?, ?, ?);")
	if err != nil {
		return fmt.Errorf("kerndb: storing %s: %w", name, err)
	}
	defer stmt.Close()

	binds := []func() error{
		func() error { return stmt.BindText(1, name) },
		func() error { return stmt.BindText(2, args) },
		func() error { return stmt.BindBlob(3, stored) },
		func() error { return stmt.BindText(4, HashBinary(binary)) },
		func() error { return stmt.BindInt64(5, int64(len(binary))) },
		func() error { return stmt.BindText(6, used.String()) },
	}
	for _, bind := range binds {
		if err := bind(); err != nil {
			return fmt.Errorf("kerndb: storing %s: %w", name, err)
		}
	}
	if err := stmt.Exec(); err != nil {
		return fmt.Errorf("kerndb: storing %s: %w", name, err)
	}
	db.logger.Debug("kernel stored",
		"kernel", name,
		"size", len(binary),
		"stored_size", len(stored),
		"compression", used,
	)
	return nil
}

// Find returns the binary stored under (name, args). The bool is
// false when no binary is stored, including when the cache is invalid.
// A binary failing its integrity check returns an error wrapping
// ErrCorrupt.
func (db *DB) Find(name, args string) ([]byte, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.readable() {
		return nil, false, nil
	}

	stmt, err := sqlitedb.PrepareWith(db.conn,
		"SELECT kernel_blob, kernel_hash, uncompressed_size, compression FROM kern_db "+
			"WHERE kernel_name = ? AND kernel_args = ?;",
		name, args)
	if err != nil {
		return nil, false, fmt.Errorf("kerndb: finding %s: %w", name, err)
	}
	defer stmt.Close()

	code, err := stmt.Step()
	if err != nil {
		return nil, false, fmt.Errorf("kerndb: finding %s: %w", name, err)
	}
	if code == sqlite.ResultDone {
		return nil, false, nil
	}

	stored := stmt.ColumnBlob(0)
	hash := stmt.ColumnText(1)
	size := int(stmt.ColumnInt64(2))
	compression, err := ParseCompression(stmt.ColumnText(3))
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s: %v", ErrCorrupt, name, err)
	}

	binary, err := decompress(stored, compression, size)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s: %v", ErrCorrupt, name, err)
	}
	if HashBinary(binary) != hash {
		return nil, false, fmt.Errorf("%w: %s: hash mismatch", ErrCorrupt, name)
	}
	return binary, true, nil
}

// Remove deletes the binary stored under (name, args) and reports
// whether one existed.
func (db *DB) Remove(name, args string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.checkWritable(); err != nil {
		return false, err
	}
	stmt, err := sqlitedb.PrepareWith(db.conn,
		"DELETE FROM kern_db WHERE kernel_name = ? AND kernel_args = ?;", name, args)
	if err != nil {
		return false, fmt.Errorf("kerndb: removing %s: %w", name, err)
	}
	defer stmt.Close()
	if err := stmt.Exec(); err != nil {
		return false, fmt.Errorf("kerndb: removing %s: %w", name, err)
	}
	return db.conn.Changes() > 0, nil
}

// List returns the stored binaries' metadata ordered by name and
// arguments.
func (db *DB) List() ([]Info, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.readable() {
		return nil, nil
	}

	stmt, err := sqlitedb.Prepare(db.conn,
		"SELECT kernel_name, kernel_args, kernel_hash, uncompressed_size, length(kernel_blob), compression "+
			"FROM kern_db ORDER BY kernel_name, kernel_args;")
	if err != nil {
		return nil, fmt.Errorf("kerndb: listing: %w", err)
	}
	defer stmt.Close()

	var infos []Info
	for {
		code, err := stmt.Step()
		if err != nil {
			return nil, fmt.Errorf("kerndb: listing: %w", err)
		}
		if code == sqlite.ResultDone {
			return infos, nil
		}
		compression, err := ParseCompression(stmt.ColumnText(5))
		if err != nil {
			return nil, err
		}
		infos = append(infos, Info{
			Name:        stmt.ColumnText(0),
			Args:        stmt.ColumnText(1),
			Hash:        stmt.ColumnText(2),
			Size:        int(stmt.ColumnInt64(3)),
			StoredSize:  int(stmt.ColumnInt64(4)),
			Compression: compression,
		})
	}
}
