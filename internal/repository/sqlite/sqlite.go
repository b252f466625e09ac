// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// SQLite is an embedded database: a single file, no server to run. It is the
// default store; Postgres (internal/repository/postgres) is available when
// DATABASE_URL is set.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// modernc.org/sqlite is a pure Go translation of the SQLite C code, so no C
// compiler is needed and cross-compilation just works.
//
// MIGRATIONS:
// Schema changes live in migrations/*.sql, embedded into the binary and applied
// with goose on every start. goose records what has run in goose_db_version,
// so restarting against an existing file only applies new migrations.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/pressly/goose/v3"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/newsroom/internal/apperror"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DB wraps a sql.DB connection pool and hands out the per-table repositories.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the SQLite database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/newsroom.db" → file-based database (persistent)
//   - ":memory:"         → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every new connection to ":memory:" is a brand new, empty database, so
	// the pool must never open a second one.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress; busy_timeout
	// makes concurrent writers wait instead of failing with SQLITE_BUSY.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}

	db := &DB{conn: conn}

	if err := db.migrate(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable. Used by the health check.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Users returns the user repository backed by this database.
func (db *DB) Users() *UserDB {
	return &UserDB{conn: db.conn}
}

// Sessions returns the session repository backed by this database.
func (db *DB) Sessions() *SessionDB {
	return &SessionDB{conn: db.conn}
}

// migrate applies every pending migration from the embedded migrations dir.
func (db *DB) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("opening embedded migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db.conn, fsys)
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// translateError maps driver errors to apperror values.
//
// SQLite reports UNIQUE violations as SQLITE_CONSTRAINT_UNIQUE with a message
// like "UNIQUE constraint failed: users.email". We pull the column name out of
// that message so callers can tell which key collided. op is used for the
// StoreUnavailable message.
func translateError(err error, op string) error {
	var sqErr *msqlite.Error
	if errors.As(err, &sqErr) && sqErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return apperror.Conflict(uniqueColumn(sqErr.Error()), "")
	}
	return apperror.StoreUnavailable(op, err)
}

// uniqueColumn extracts "email" from "... UNIQUE constraint failed: users.email (2067)".
func uniqueColumn(msg string) string {
	_, after, found := strings.Cut(msg, "UNIQUE constraint failed: ")
	if !found {
		return ""
	}
	after, _, _ = strings.Cut(after, " ")
	after, _, _ = strings.Cut(after, ",")
	if _, column, ok := strings.Cut(after, "."); ok {
		return column
	}
	return after
}

// nullString stores "" as SQL NULL so UNIQUE only applies to real values.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
