// CLAUDE:SUMMARY Opens the observability SQLite database (WAL, busy timeout, init hooks) and retries BUSY writes.
// Package dbopen opens the SQLite databases docsight writes metrics and
// run logs to.
//
// Every database gets:
//
//	journal_mode = WAL
//	busy_timeout = 10000
//	synchronous  = NORMAL
//
// Usage:
//
//	db, err := dbopen.Open("data/obs.db", dbopen.WithMkdirAll(), dbopen.WithInit(observability.Init))
//
// In tests:
//
//	db := dbopen.OpenMemory(t, dbopen.WithInit(observability.Init))
package dbopen

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

type options struct {
	busyTimeoutMs int
	synchronous   string
	mkdirAll      bool
	maxConns      int
	inits         []func(*sql.DB) error
}

// Option customises Open.
type Option func(*options)

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds (default 10000).
func WithBusyTimeout(ms int) Option { return func(o *options) { o.busyTimeoutMs = ms } }

// WithSynchronous sets PRAGMA synchronous (default NORMAL).
func WithSynchronous(mode string) Option { return func(o *options) { o.synchronous = mode } }

// WithMkdirAll creates the parent directory of the database file.
func WithMkdirAll() Option { return func(o *options) { o.mkdirAll = true } }

// WithMaxOpenConns caps the connection pool; 0 leaves it unbounded.
func WithMaxOpenConns(n int) Option { return func(o *options) { o.maxConns = n } }

// WithInit runs fn once the pragmas are set, typically a package's Init
// that creates its tables. Inits run in the order given.
func WithInit(fn func(*sql.DB) error) Option {
	return func(o *options) { o.inits = append(o.inits, fn) }
}

// Open opens (creating if needed) the database at path.
func Open(path string, opts ...Option) (*sql.DB, error) {
	o := options{busyTimeoutMs: 10_000, synchronous: "NORMAL"}
	for _, fn := range opts {
		fn(&o)
	}

	if o.mkdirAll && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: mkdir: %w", err)
		}
	}

	pragmas := []string{
		"journal_mode(WAL)",
		fmt.Sprintf("busy_timeout(%d)", o.busyTimeoutMs),
		"synchronous(" + o.synchronous + ")",
	}

	// File databases take the pragmas in the DSN so every pooled connection
	// gets them. ":memory:" is a single connection and takes them by Exec.
	dsn := path
	if path != ":memory:" {
		q := url.Values{"_pragma": pragmas}
		dsn = "file:" + path + "?" + q.Encode()
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("dbopen: open %s: %w", path, err)
	}
	if o.maxConns > 0 {
		db.SetMaxOpenConns(o.maxConns)
	}

	if err := setup(db, path == ":memory:", pragmas, o.inits); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func setup(db *sql.DB, memory bool, pragmas []string, inits []func(*sql.DB) error) error {
	if memory {
		for _, p := range pragmas {
			stmt := "PRAGMA " + strings.Replace(strings.TrimSuffix(p, ")"), "(", " = ", 1)
			if _, err := db.Exec(stmt); err != nil {
				return fmt.Errorf("dbopen: %s: %w", stmt, err)
			}
		}
	}
	if err := db.Ping(); err != nil {
		return fmt.Errorf("dbopen: ping: %w", err)
	}
	for i, fn := range inits {
		if err := fn(db); err != nil {
			return fmt.Errorf("dbopen: init %d: %w", i, err)
		}
	}
	return nil
}

// OpenMemory opens an in-memory database closed by t.Cleanup. The pool is
// pinned to one connection: each ":memory:" connection is its own database.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(":memory:", append([]Option{WithMaxOpenConns(1)}, opts...)...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
