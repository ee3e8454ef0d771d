package database

import (
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

func rawDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	return conn
}

func TestMigrateNewDB(t *testing.T) {
	db := openTestDB(t)

	version, err := getSchemaVersion(db.conn)
	if err != nil {
		t.Fatalf("getSchemaVersion: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("expected version %d, got %d", latestVersion(), version)
	}
}

func TestMigrateUpgradesFromFirstVersion(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "v1.db")

	// A store left at version 1: entity tables only, no sheet tables yet.
	raw := rawDB(t, dbPath)
	tx, err := raw.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := migrations[0].Up(tx); err != nil {
		t.Fatalf("apply first migration: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := raw.Exec("PRAGMA user_version = 1"); err != nil {
		t.Fatalf("set version: %v", err)
	}
	raw.Close()

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	version, _ := getSchemaVersion(db.conn)
	if version != latestVersion() {
		t.Errorf("expected version %d after upgrade, got %d", latestVersion(), version)
	}
	if err := db.EnsureTable("TODAY_CALL_alice", TargetHeader); err != nil {
		t.Errorf("sheet tables missing after upgrade: %v", err)
	}
}

func TestMigrateRefusesNewerSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "future.db")
	raw := rawDB(t, dbPath)
	if _, err := raw.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("set version: %v", err)
	}
	raw.Close()

	db, err := Open(dbPath)
	if err == nil {
		db.Close()
		t.Fatal("expected Open to refuse a newer schema")
	}
	if !strings.Contains(err.Error(), "newer than supported") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "idem.db")

	db1, err := Open(dbPath)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	db1.Close()

	db2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer db2.Close()

	version, _ := getSchemaVersion(db2.conn)
	if version != latestVersion() {
		t.Errorf("expected version %d, got %d", latestVersion(), version)
	}
}

func TestPendingMigrations(t *testing.T) {
	all, err := pending(0)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(all) != len(migrations) {
		t.Errorf("expected %d pending on empty db, got %d", len(migrations), len(all))
	}

	rest, _ := pending(1)
	if len(rest) != len(migrations)-1 || rest[0].Version != 2 {
		t.Errorf("expected migrations from version 2, got %+v", rest)
	}

	none, _ := pending(latestVersion())
	if len(none) != 0 {
		t.Errorf("expected nothing pending at latest, got %d", len(none))
	}
}
