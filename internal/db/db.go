package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DB wraps the sqlx.DB for connection management. Queries are written with
// '?' placeholders and rebound for the active driver.
type DB struct {
	conn   *sqlx.DB
	logger *slog.Logger
}

// New creates a new DB connection for driver ("sqlite" or "postgres").
func New(ctx context.Context, driver, dsn string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	conn, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if driver == DriverSQLite {
		// in-memory databases are per connection
		conn.SetMaxOpenConns(1)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	logger.Info("db: connected", slog.String("driver", driver))
	return &DB{conn: conn, logger: logger}, nil
}

// Wrap adapts an already opened *sql.DB, mostly for tests with sqlmock.
func Wrap(conn *sql.DB, driver string) *DB {
	return &DB{conn: sqlx.NewDb(conn, driver), logger: slog.Default()}
}

// Close closes the DB connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Driver returns the driver name the connection was opened with.
func (db *DB) Driver() string {
	return db.conn.DriverName()
}

// Exec executes a query
func (db *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.conn.ExecContext(ctx, db.conn.Rebind(query), args...)
}

// QueryRow executes a query that is expected to return at most one row
func (db *DB) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return db.conn.QueryRowContext(ctx, db.conn.Rebind(query), args...)
}

// Get scans a single row into dest.
func (db *DB) Get(ctx context.Context, dest any, query string, args ...any) error {
	return db.conn.GetContext(ctx, dest, db.conn.Rebind(query), args...)
}

// Select scans all rows into dest, which must be a pointer to a slice.
func (db *DB) Select(ctx context.Context, dest any, query string, args ...any) error {
	return db.conn.SelectContext(ctx, dest, db.conn.Rebind(query), args...)
}

// GetConn returns the underlying sqlx.DB
func (db *DB) GetConn() *sqlx.DB {
	return db.conn
}

// Tx is a transaction with the same rebinding helpers as DB.
type Tx struct {
	tx *sqlx.Tx
}

func (t *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.tx.Rebind(query), args...)
}

func (t *Tx) Get(ctx context.Context, dest any, query string, args ...any) error {
	return t.tx.GetContext(ctx, dest, t.tx.Rebind(query), args...)
}

func (t *Tx) Select(ctx context.Context, dest any, query string, args ...any) error {
	return t.tx.SelectContext(ctx, dest, t.tx.Rebind(query), args...)
}

// InTx runs fn inside a transaction, committing when fn returns nil.
func (db *DB) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&Tx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error("db: rollback failed", slog.Any("err", rbErr))
		}
		return err
	}
	return tx.Commit()
}

// IsUniqueViolation reports whether err was caused by a unique constraint.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY ||
			strings.Contains(liteErr.Error(), "UNIQUE constraint failed")
	}
	return false
}
