package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/kestrelworks/switchboard/internal/domain"
	"github.com/kestrelworks/switchboard/internal/logging"
)

// SQLite stores one row per session key. The whole turn sequence is kept as
// a single JSON snapshot and replaced inside a transaction on every Save.
type SQLite struct {
	db  *sql.DB
	log *logging.Logger
}

// OpenSQLite opens (or creates) the database at path and runs migrations.
// Use ":memory:" for an in-memory database (useful for tests).
func OpenSQLite(path string, log *logging.Logger) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	// WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	s := &SQLite{db: db, log: log.Sub("store")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	s.log.Info().Str("path", path).Msg("session database opened")
	return s, nil
}

// Load implements Driver.
func (s *SQLite) Load(ctx context.Context, key domain.SessionKey) (*Record, error) {
	var turnsJSON string
	var revision uint64
	var updatedAt string

	err := s.db.QueryRowContext(ctx,
		`SELECT turns, revision, updated_at FROM sessions WHERE key = ?`, string(key),
	).Scan(&turnsJSON, &revision, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", key, err)
	}

	rec := &Record{Key: key, Revision: revision}
	if err := json.Unmarshal([]byte(turnsJSON), &rec.Turns); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", key, err)
	}
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return rec, nil
}

// Save implements Driver. The upsert runs in a transaction, so a reader
// either sees the previous snapshot or the new one, never a mix.
func (s *SQLite) Save(ctx context.Context, rec *Record) error {
	turnsJSON, err := json.Marshal(rec.Turns)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", rec.Key, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save %s: %w", rec.Key, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (key, turns, revision, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   turns = excluded.turns,
		   revision = excluded.revision,
		   updated_at = excluded.updated_at`,
		string(rec.Key), string(turnsJSON), rec.Revision,
		rec.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("saving session %s: %w", rec.Key, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing session %s: %w", rec.Key, err)
	}
	return nil
}

// Delete implements Driver.
func (s *SQLite) Delete(ctx context.Context, key domain.SessionKey) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE key = ?`, string(key)); err != nil {
		return fmt.Errorf("deleting session %s: %w", key, err)
	}
	return nil
}

// Keys implements Driver.
func (s *SQLite) Keys(ctx context.Context) ([]domain.SessionKey, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var keys []domain.SessionKey
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, domain.SessionKey(k))
	}
	return keys, rows.Err()
}

// Close implements Driver.
func (s *SQLite) Close() error {
	s.log.Info().Msg("closing session database")
	return s.db.Close()
}

// migrate runs all pending migrations.
func (s *SQLite) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	for _, m := range migrations {
		applied, err := s.isMigrationApplied(m.Version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}

		s.log.Info().Int("version", m.Version).Str("name", m.Name).Msg("applying migration")

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

func (s *SQLite) isMigrationApplied(version int) (bool, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking migration %d: %w", version, err)
	}
	return count > 0, nil
}

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "create sessions",
		SQL: `
			CREATE TABLE sessions (
				key        TEXT PRIMARY KEY,
				turns      TEXT NOT NULL,
				revision   INTEGER NOT NULL,
				updated_at TEXT NOT NULL
			);

			CREATE INDEX idx_sessions_updated ON sessions (updated_at);
		`,
	},
}
