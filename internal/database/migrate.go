package database

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
)

// getSchemaVersion reads PRAGMA user_version from the database.
func getSchemaVersion(conn *sql.DB) (int, error) {
	var version int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// pending returns the migrations above version, in order. Versions must
// count up from 1 without gaps.
func pending(version int) ([]Migration, error) {
	var out []Migration
	for i, m := range migrations {
		if m.Version != i+1 {
			return nil, fmt.Errorf("migration %q has version %d, want %d", m.Description, m.Version, i+1)
		}
		if m.Version > version {
			out = append(out, m)
		}
	}
	return out, nil
}

// migrate applies every pending migration, each in its own transaction,
// and records progress in PRAGMA user_version. A store written by a newer
// build is refused rather than opened with an unknown schema.
func migrate(conn *sql.DB) error {
	current, err := getSchemaVersion(conn)
	if err != nil {
		return err
	}
	if latest := latestVersion(); current > latest {
		return fmt.Errorf("database schema version %d is newer than supported version %d", current, latest)
	}

	steps, err := pending(current)
	if err != nil {
		return err
	}
	for _, m := range steps {
		log.Info().Str("component", "database").Int("version", m.Version).Str("description", m.Description).Msg("applying migration")

		tx, err := conn.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if err := m.Up(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		// modernc/sqlite does not apply user_version inside a transaction.
		if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
			return fmt.Errorf("setting version %d: %w", m.Version, err)
		}
	}
	return nil
}
