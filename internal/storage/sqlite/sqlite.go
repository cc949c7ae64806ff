// Package sqlite implements the storage.Store interface on an embedded
// SQLite database keeping discrete per-day intervals.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/goodtune/ontime/internal/storage"
)

// Store implements storage.Store using modernc.org/sqlite.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed initializes) a SQLite-backed store.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := storage.EnsureDir(dir); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA busy_timeout=5000;")
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS online_time_log (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id        TEXT NOT NULL,
		day            TEXT NOT NULL,
		interval_start INTEGER NOT NULL,
		interval_end   INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_log_user_day ON online_time_log(user_id, day);
	CREATE INDEX IF NOT EXISTS idx_log_day ON online_time_log(day);

	CREATE TABLE IF NOT EXISTS display_names (
		user_id TEXT PRIMARY KEY,
		name    TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS flush_runs (
		id          TEXT PRIMARY KEY,
		ts          INTEGER NOT NULL,
		entries     INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		error       TEXT
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append inserts the batch in a single transaction. Interval offsets are
// stored as microseconds since midnight.
func (s *Store) Append(ctx context.Context, entries []storage.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append tx: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO online_time_log (user_id, day, interval_start, interval_end) VALUES (?, ?, ?, ?)")
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare append: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx,
			e.UserID,
			e.Day.UTC().Format(storage.DayFormat),
			e.Start.Microseconds(),
			e.End.Microseconds(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert log entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}
