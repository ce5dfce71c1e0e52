package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultBusyTimeoutMS is the busy_timeout applied when none is configured.
const DefaultBusyTimeoutMS = 5000

// DB is a single-connection SQLite database.
type DB struct {
	db   *sql.DB
	path string

	// tx is the open outermost transaction, nil outside Transaction.
	tx *sql.Tx
	// depth counts open Transaction scopes; savepoints are named by depth.
	depth int
}

// Option configures Open.
type Option func(*config)

type config struct {
	busyTimeoutMS int
}

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds.
func WithBusyTimeout(ms int) Option {
	return func(c *config) {
		if ms > 0 {
			c.busyTimeoutMS = ms
		}
	}
}

// Open creates or opens a SQLite database at path. ":memory:" opens a
// private in-memory database.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - busy timeout for lock contention
//   - Foreign key enforcement
func Open(path string, opts ...Option) (*DB, error) {
	cfg := config{busyTimeoutMS: DefaultBusyTimeoutMS}
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One connection: SQLite has one writer, transactions are tracked on
	// this struct, and an in-memory database lives only as long as its
	// connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(db, path, cfg); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	return &DB{db: db, path: path}, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB, path string, cfg config) error {
	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.busyTimeoutMS),
		"PRAGMA foreign_keys = ON",
	}
	if !isMemory(path) {
		pragmas = append([]string{"PRAGMA journal_mode = WAL"}, pragmas...)
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file::memory:") || strings.Contains(path, "mode=memory")
}

// Path returns the path the database was opened with.
func (d *DB) Path() string {
	return d.path
}

// Close closes the database connection, rolling back any open
// transaction. Safe to call more than once.
func (d *DB) Close() error {
	if d.db == nil {
		return nil
	}
	if d.tx != nil {
		_ = d.tx.Rollback()
		d.tx = nil
		d.depth = 0
	}
	err := d.db.Close()
	d.db = nil
	return err
}

// SQLDB returns the underlying sql.DB.
// Use with caution: statements issued on it bypass the open transaction.
func (d *DB) SQLDB() *sql.DB {
	return d.db
}

type execer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// conn returns the open transaction or the database.
func (d *DB) conn() (execer, error) {
	if d.db == nil {
		return nil, fmt.Errorf("database is closed")
	}
	if d.tx != nil {
		return d.tx, nil
	}
	return d.db, nil
}

// Query runs a statement and reads every result row.
func (d *DB) Query(ctx context.Context, query string, args ...any) (*Rows, error) {
	c, err := d.conn()
	if err != nil {
		return nil, err
	}
	rows, err := c.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return readRows(rows)
}

// Exec runs a statement and reports its effect.
func (d *DB) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	c, err := d.conn()
	if err != nil {
		return Result{}, err
	}
	res, err := c.ExecContext(ctx, query, args...)
	if err != nil {
		return Result{}, err
	}
	return newResult(res)
}

// ExecScript runs text that may hold several statements, such as schema
// definitions or pragmas.
func (d *DB) ExecScript(ctx context.Context, script string) error {
	c, err := d.conn()
	if err != nil {
		return err
	}
	_, err = c.ExecContext(ctx, script)
	return err
}
