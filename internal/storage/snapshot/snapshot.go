// Package snapshot implements the storage.Store interface on flat JSON
// files: one object keyed by ISO date holding cumulative seconds per user,
// plus a sibling translation file of display names. It is the low-fidelity
// backend: fine-grained interval boundaries within a day are not kept.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/goodtune/ontime/internal/storage"
)

const (
	statsFile = "stats.json"
	namesFile = "translations.json"
)

// Store implements storage.Store with per-day cumulative JSON snapshots.
type Store struct {
	dir string
}

// Open prepares a snapshot store rooted at dir.
func Open(dir string) (*Store, error) {
	if err := storage.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Close is a no-op; every write is already durable.
func (s *Store) Close() error {
	return nil
}

// load reads the snapshot object. Missing or malformed content is treated as
// no prior state so the engine can cold-start.
func (s *Store) load() map[string]map[string]int64 {
	data, err := os.ReadFile(filepath.Join(s.dir, statsFile))
	if err != nil {
		return make(map[string]map[string]int64)
	}

	var snap map[string]map[string]int64
	if err := json.Unmarshal(data, &snap); err != nil || snap == nil {
		return make(map[string]map[string]int64)
	}
	return snap
}

func (s *Store) write(name string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	// Write-then-rename so a crash mid-write never truncates the snapshot.
	tmp := filepath.Join(s.dir, name+".tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Append folds entry durations into each day's cumulative per-user seconds
// and rewrites the snapshot once. Either the whole batch lands or none of it.
func (s *Store) Append(ctx context.Context, entries []storage.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	snap := s.load()
	for _, e := range entries {
		if e.UserID == "" || e.Duration() <= 0 {
			continue
		}
		date := e.Day.UTC().Format(storage.DayFormat)
		dayTotals := snap[date]
		if dayTotals == nil {
			dayTotals = make(map[string]int64)
			snap[date] = dayTotals
		}
		dayTotals[e.UserID] += int64((e.Duration() + time.Second/2) / time.Second)
	}

	return s.write(statsFile, snap)
}

// sortedDates returns the snapshot's day keys in ascending order, dropping
// keys that do not parse as dates rather than failing the whole read.
func sortedDates(snap map[string]map[string]int64) []time.Time {
	dates := make([]time.Time, 0, len(snap))
	for key := range snap {
		day, err := time.ParseInLocation(storage.DayFormat, key, time.UTC)
		if err != nil {
			continue
		}
		dates = append(dates, day)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// DateRange returns the first and last snapshotted day.
func (s *Store) DateRange(ctx context.Context) (storage.DateRange, error) {
	if ctx.Err() != nil {
		return storage.DateRange{}, ctx.Err()
	}
	dates := sortedDates(s.load())
	if len(dates) == 0 {
		return storage.DateRange{}, storage.ErrNoData
	}
	return storage.DateRange{First: dates[0], Last: dates[len(dates)-1]}, nil
}

// RestorePoint returns the per-user durations of the latest snapshotted day.
func (s *Store) RestorePoint(ctx context.Context) (map[string]time.Duration, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	snap := s.load()
	dates := sortedDates(snap)
	point := make(map[string]time.Duration)
	if len(dates) == 0 {
		return point, nil
	}

	latest := dates[len(dates)-1].Format(storage.DayFormat)
	for userID, secs := range snap[latest] {
		if userID == "" || secs <= 0 {
			continue
		}
		point[userID] = time.Duration(secs) * time.Second
	}
	return point, nil
}

// Totals sums every day's per-user seconds.
func (s *Store) Totals(ctx context.Context) (map[string]time.Duration, error) {
	daily, err := s.DailyTotals(ctx)
	if err != nil {
		return nil, err
	}

	totals := make(map[string]time.Duration, len(daily))
	for userID, series := range daily {
		var sum time.Duration
		for _, dt := range series {
			sum += dt.Total
		}
		totals[userID] = sum
	}
	return totals, nil
}

// DailyTotals returns each user's per-day series ordered by day.
func (s *Store) DailyTotals(ctx context.Context) (map[string][]storage.DayTotal, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	snap := s.load()
	series := make(map[string][]storage.DayTotal)
	for _, date := range sortedDates(snap) {
		for userID, secs := range snap[date.Format(storage.DayFormat)] {
			if userID == "" || secs <= 0 {
				continue
			}
			series[userID] = append(series[userID], storage.DayTotal{
				Day:   date,
				Total: time.Duration(secs) * time.Second,
			})
		}
	}
	return series, nil
}

// CumulativeTotals returns each user's running sum over the daily series.
func (s *Store) CumulativeTotals(ctx context.Context) (map[string][]storage.DayTotal, error) {
	daily, err := s.DailyTotals(ctx)
	if err != nil {
		return nil, err
	}
	return storage.Cumulative(daily), nil
}

// SaveNames merges display names into the translation file.
func (s *Store) SaveNames(ctx context.Context, names map[string]string) error {
	if len(names) == 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	merged, err := s.Names(ctx)
	if err != nil {
		return err
	}
	for userID, name := range names {
		merged[userID] = name
	}
	return s.write(namesFile, merged)
}

// Names returns the persisted translation map.
func (s *Store) Names(ctx context.Context) (map[string]string, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	data, err := os.ReadFile(filepath.Join(s.dir, namesFile))
	if err != nil {
		return make(map[string]string), nil
	}

	var names map[string]string
	if err := json.Unmarshal(data, &names); err != nil || names == nil {
		return make(map[string]string), nil
	}
	return names, nil
}

// RecordFlush is a no-op; the snapshot backend keeps no audit trail.
func (s *Store) RecordFlush(ctx context.Context, run storage.FlushRun) error {
	return nil
}
