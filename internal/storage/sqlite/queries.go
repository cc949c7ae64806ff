package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goodtune/ontime/internal/storage"
)

// DateRange returns the first and last day carrying log entries.
func (s *Store) DateRange(ctx context.Context) (storage.DateRange, error) {
	var first, last sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT MIN(day), MAX(day) FROM online_time_log").Scan(&first, &last)
	if err != nil {
		return storage.DateRange{}, fmt.Errorf("query date range: %w", err)
	}
	if !first.Valid || !last.Valid {
		return storage.DateRange{}, storage.ErrNoData
	}

	firstDay, err := time.ParseInLocation(storage.DayFormat, first.String, time.UTC)
	if err != nil {
		return storage.DateRange{}, fmt.Errorf("parse first day %q: %w", first.String, err)
	}
	lastDay, err := time.ParseInLocation(storage.DayFormat, last.String, time.UTC)
	if err != nil {
		return storage.DateRange{}, fmt.Errorf("parse last day %q: %w", last.String, err)
	}

	return storage.DateRange{First: firstDay, Last: lastDay}, nil
}

// Totals sums all logged time per user.
func (s *Store) Totals(ctx context.Context) (map[string]time.Duration, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, SUM(interval_end - interval_start)
		FROM online_time_log
		GROUP BY user_id
		HAVING SUM(interval_end - interval_start) > 0`)
	if err != nil {
		return nil, fmt.Errorf("query totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]time.Duration)
	for rows.Next() {
		var userID string
		var micros int64
		if err := rows.Scan(&userID, &micros); err != nil {
			return nil, fmt.Errorf("scan total: %w", err)
		}
		totals[userID] = time.Duration(micros) * time.Microsecond
	}
	return totals, rows.Err()
}

// DailyTotals sums logged time per user per day, ordered by day.
func (s *Store) DailyTotals(ctx context.Context) (map[string][]storage.DayTotal, error) {
	return s.dailySeries(ctx, `
		SELECT user_id, day, SUM(interval_end - interval_start) AS total
		FROM online_time_log
		GROUP BY user_id, day
		HAVING total > 0
		ORDER BY user_id, day`)
}

// CumulativeTotals computes each user's running sum over daily totals,
// ordered by day.
func (s *Store) CumulativeTotals(ctx context.Context) (map[string][]storage.DayTotal, error) {
	return s.dailySeries(ctx, `
		SELECT user_id, day, SUM(total) OVER (PARTITION BY user_id ORDER BY day) AS running
		FROM (
			SELECT user_id, day, SUM(interval_end - interval_start) AS total
			FROM online_time_log
			GROUP BY user_id, day
			HAVING total > 0
		)
		ORDER BY user_id, day`)
}

func (s *Store) dailySeries(ctx context.Context, query string) (map[string][]storage.DayTotal, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query daily series: %w", err)
	}
	defer rows.Close()

	series := make(map[string][]storage.DayTotal)
	for rows.Next() {
		var userID, day string
		var micros int64
		if err := rows.Scan(&userID, &day, &micros); err != nil {
			return nil, fmt.Errorf("scan daily total: %w", err)
		}
		dayValue, err := time.ParseInLocation(storage.DayFormat, day, time.UTC)
		if err != nil {
			// Malformed day on a single row does not abort the read.
			continue
		}
		series[userID] = append(series[userID], storage.DayTotal{
			Day:   dayValue,
			Total: time.Duration(micros) * time.Microsecond,
		})
	}
	return series, rows.Err()
}

// RestorePoint returns each user's total on the latest logged day.
func (s *Store) RestorePoint(ctx context.Context) (map[string]time.Duration, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, SUM(interval_end - interval_start)
		FROM online_time_log
		WHERE day = (SELECT MAX(day) FROM online_time_log)
		GROUP BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("query restore point: %w", err)
	}
	defer rows.Close()

	point := make(map[string]time.Duration)
	for rows.Next() {
		var userID string
		var micros int64
		if err := rows.Scan(&userID, &micros); err != nil {
			return nil, fmt.Errorf("scan restore point: %w", err)
		}
		point[userID] = time.Duration(micros) * time.Microsecond
	}
	return point, rows.Err()
}

// SaveNames upserts display names into the translation table.
func (s *Store) SaveNames(ctx context.Context, names map[string]string) error {
	if len(names) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin names tx: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO display_names (user_id, name) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET name = excluded.name`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare names upsert: %w", err)
	}
	defer stmt.Close()

	for userID, name := range names {
		if _, err := stmt.ExecContext(ctx, userID, name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert name: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit names: %w", err)
	}
	return nil
}

// Names returns the persisted translation map.
func (s *Store) Names(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT user_id, name FROM display_names")
	if err != nil {
		return nil, fmt.Errorf("query names: %w", err)
	}
	defer rows.Close()

	names := make(map[string]string)
	for rows.Next() {
		var userID, name string
		if err := rows.Scan(&userID, &name); err != nil {
			return nil, fmt.Errorf("scan name: %w", err)
		}
		names[userID] = name
	}
	return names, rows.Err()
}

// RecordFlush stores one flush run in the audit table.
func (s *Store) RecordFlush(ctx context.Context, run storage.FlushRun) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO flush_runs (id, ts, entries, duration_ms, error) VALUES (?, ?, ?, ?, ?)",
		run.ID, run.At.UTC().Unix(), run.Entries, run.DurationMS, run.Err)
	if err != nil {
		return fmt.Errorf("record flush run: %w", err)
	}
	return nil
}
