// Package redis implements the storage.Store interface on Redis with the
// same per-day cumulative fidelity as the snapshot backend.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/goodtune/ontime/internal/storage"
)

const (
	keyDays    = "ontime:days"
	keyNames   = "ontime:names"
	keyFlushes = "ontime:flushes"

	// Number of flush run records kept for auditing.
	flushHistory = 200
)

func dayKey(date string) string {
	return "ontime:day:" + date
}

// Config holds Redis connection settings.
type Config struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Store implements storage.Store backed by Redis.
type Store struct {
	client *redis.Client
}

// Open connects to Redis and verifies the connection.
func Open(cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Store{client: client}, nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Append folds the batch into per-day hashes inside one MULTI/EXEC block so
// no partial batch is ever visible.
func (s *Store) Append(ctx context.Context, entries []storage.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	pipe := s.client.TxPipeline()
	for _, e := range entries {
		if e.UserID == "" || e.Duration() <= 0 {
			continue
		}
		date := e.Day.UTC().Format(storage.DayFormat)
		secs := int64((e.Duration() + time.Second/2) / time.Second)
		pipe.HIncrBy(ctx, dayKey(date), e.UserID, secs)
		pipe.SAdd(ctx, keyDays, date)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append batch: %w", err)
	}
	return nil
}

// days returns the recorded day keys in ascending order, skipping members
// that do not parse as dates.
func (s *Store) days(ctx context.Context) ([]time.Time, error) {
	members, err := s.client.SMembers(ctx, keyDays).Result()
	if err != nil {
		return nil, fmt.Errorf("list days: %w", err)
	}

	dates := make([]time.Time, 0, len(members))
	for _, m := range members {
		day, err := time.ParseInLocation(storage.DayFormat, m, time.UTC)
		if err != nil {
			continue
		}
		dates = append(dates, day)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

// DateRange returns the first and last recorded day.
func (s *Store) DateRange(ctx context.Context) (storage.DateRange, error) {
	dates, err := s.days(ctx)
	if err != nil {
		return storage.DateRange{}, err
	}
	if len(dates) == 0 {
		return storage.DateRange{}, storage.ErrNoData
	}
	return storage.DateRange{First: dates[0], Last: dates[len(dates)-1]}, nil
}

func (s *Store) dayTotals(ctx context.Context, date string) (map[string]time.Duration, error) {
	fields, err := s.client.HGetAll(ctx, dayKey(date)).Result()
	if err != nil {
		return nil, fmt.Errorf("read day %s: %w", date, err)
	}

	totals := make(map[string]time.Duration, len(fields))
	for userID, raw := range fields {
		if userID == "" {
			continue
		}
		var secs int64
		// A malformed counter fails that one record, not the read.
		if _, err := fmt.Sscanf(raw, "%d", &secs); err != nil || secs <= 0 {
			continue
		}
		totals[userID] = time.Duration(secs) * time.Second
	}
	return totals, nil
}

// RestorePoint returns per-user durations of the latest recorded day.
func (s *Store) RestorePoint(ctx context.Context) (map[string]time.Duration, error) {
	dates, err := s.days(ctx)
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return map[string]time.Duration{}, nil
	}
	return s.dayTotals(ctx, dates[len(dates)-1].Format(storage.DayFormat))
}

// Totals sums every day's per-user durations.
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
	dates, err := s.days(ctx)
	if err != nil {
		return nil, err
	}

	series := make(map[string][]storage.DayTotal)
	for _, date := range dates {
		totals, err := s.dayTotals(ctx, date.Format(storage.DayFormat))
		if err != nil {
			return nil, err
		}
		for userID, total := range totals {
			series[userID] = append(series[userID], storage.DayTotal{Day: date, Total: total})
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

// SaveNames merges display names into the translation hash.
func (s *Store) SaveNames(ctx context.Context, names map[string]string) error {
	if len(names) == 0 {
		return nil
	}

	fields := make([]any, 0, len(names)*2)
	for userID, name := range names {
		fields = append(fields, userID, name)
	}
	if err := s.client.HSet(ctx, keyNames, fields...).Err(); err != nil {
		return fmt.Errorf("save names: %w", err)
	}
	return nil
}

// Names returns the persisted translation map.
func (s *Store) Names(ctx context.Context) (map[string]string, error) {
	names, err := s.client.HGetAll(ctx, keyNames).Result()
	if err != nil {
		return nil, fmt.Errorf("read names: %w", err)
	}
	return names, nil
}

// RecordFlush keeps a capped list of recent flush runs.
func (s *Store) RecordFlush(ctx context.Context, run storage.FlushRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal flush run: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, keyFlushes, data)
	pipe.LTrim(ctx, keyFlushes, 0, flushHistory-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record flush run: %w", err)
	}
	return nil
}
