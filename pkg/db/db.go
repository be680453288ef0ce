package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Driver names accepted by WithDriver.
const (
	DriverCgo  = "sqlite3" // github.com/mattn/go-sqlite3
	DriverPure = "sqlite"  // modernc.org/sqlite
)

type options struct {
	driver      string
	busyTimeout int
	wal         bool
}

func defaults() options {
	return options{
		driver:      DriverCgo,
		busyTimeout: 5000,
	}
}

// Option customises Open and OpenReadOnly.
type Option func(*options)

// WithDriver selects the database/sql driver. Default: DriverCgo.
func WithDriver(name string) Option {
	return func(o *options) {
		if name != "" {
			o.driver = name
		}
	}
}

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds.
func WithBusyTimeout(ms int) Option { return func(o *options) { o.busyTimeout = ms } }

// WithWAL switches the store to write-ahead logging.
func WithWAL() Option { return func(o *options) { o.wal = true } }

// Store is the primary handle on a vocabulary database. It is pinned to a
// single connection and is meant to be owned by one goroutine.
type Store struct {
	DB     *sql.DB
	Path   string
	driver string
}

// Open opens (creating if needed) the store at path, applies pragmas and
// makes sure the schema and indices exist.
func Open(path string, opts ...Option) (*Store, error) {
	o := defaults()
	for _, fn := range opts {
		fn(&o)
	}

	conn, err := sql.Open(sqlDriver(o.driver), path)
	if err != nil {
		return nil, &StoreError{Op: "open", Err: err}
	}
	// Each connection to ":memory:" is a separate database, and ATTACH is
	// per connection, so the primary handle never fans out.
	conn.SetMaxOpenConns(1)

	if err := applyPragmas(conn, &o); err != nil {
		conn.Close()
		return nil, &StoreError{Op: "pragma", Err: err}
	}
	if err := InitDB(conn); err != nil {
		conn.Close()
		return nil, &StoreError{Op: "schema", Err: err}
	}
	if err := EnsureIndices(conn); err != nil {
		conn.Close()
		return nil, &StoreError{Op: "index", Err: err}
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, &StoreError{Op: "ping", Err: err}
	}
	return &Store{DB: conn, Path: path, driver: o.driver}, nil
}

// OpenReadOnly opens a separate read-only connection pool on an existing
// store file. It must never be used for writes.
func OpenReadOnly(path string, opts ...Option) (*sql.DB, error) {
	o := defaults()
	for _, fn := range opts {
		fn(&o)
	}
	conn, err := sql.Open(sqlDriver(o.driver), readOnlyDSN(path))
	if err != nil {
		return nil, &StoreError{Op: "open-ro", Err: err}
	}
	if _, err := conn.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", o.busyTimeout)); err != nil {
		conn.Close()
		return nil, &StoreError{Op: "open-ro", Err: err}
	}
	return conn, nil
}

func readOnlyDSN(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	return "file:" + path + "?mode=ro"
}

func applyPragmas(conn *sql.DB, o *options) error {
	pragmas := []string{fmt.Sprintf("PRAGMA busy_timeout = %d", o.busyTimeout)}
	if o.wal {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// WriteFunc performs database writes inside a transaction.
type WriteFunc func(ctx context.Context, tx *sql.Tx) error

// WithTx runs fn in a single transaction. Any error rolls back everything
// fn did.
func (s *Store) WithTx(ctx context.Context, fn WriteFunc) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // ignored if committed
	}()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
