package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection and serves as the canonical store.
type DB struct {
	conn  *sql.DB
	path  string
	now   func() time.Time
	locks KeyedMutex
}

// Open creates or opens a SQLite database at the given path.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	// Per-connection pragmas go in the DSN so every pooled connection gets them.
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &DB{conn: conn, path: dbPath, now: time.Now}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// SetClock overrides the clock used for created_at/updated_at stamps.
func (db *DB) SetClock(now func() time.Time) {
	db.now = now
}

// Now returns the store's current time.
func (db *DB) Now() time.Time {
	return db.now()
}

func (db *DB) stamp() string {
	return FormatDateTime(db.now())
}

// LockTable serializes replace-style writers of one table within the process.
// The returned func releases the lock.
func (db *DB) LockTable(name string) func() {
	return db.locks.Lock("table:" + name)
}

// LockCustomer serializes writers touching one customer's records.
func (db *DB) LockCustomer(customerID string) func() {
	return db.locks.Lock("customer:" + customerID)
}

// inTx runs fn inside a transaction, rolling back on error.
func (db *DB) inTx(fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
