// Package storage defines the durable log store contract and the shared
// aggregation types for online-time accounting.
package storage

import (
	"context"
	"errors"
	"os"
	"time"
)

// ErrNoData is returned by DateRange when the store holds no log entries.
var ErrNoData = errors.New("storage: no data")

// Store persists closed online-time intervals and answers the aggregation
// queries. Implementations differ in fidelity: the sqlite backend keeps
// discrete per-day intervals, the snapshot and redis backends keep only
// cumulative seconds per user per day.
type Store interface {
	// Append inserts a batch of closed log entries atomically. On error no
	// entry of the batch is visible.
	Append(ctx context.Context, entries []LogEntry) error

	// DateRange returns the earliest and latest day with logged time.
	// Returns ErrNoData when the store is empty.
	DateRange(ctx context.Context) (DateRange, error)

	// RestorePoint returns each user's last persisted duration, used to warm
	// process state after a restart.
	RestorePoint(ctx context.Context) (map[string]time.Duration, error)

	// Totals returns the all-time total duration per user. Users with no
	// logged time are absent.
	Totals(ctx context.Context) (map[string]time.Duration, error)

	// DailyTotals returns, per user, the total per day ordered by day
	// ascending. Days with no logged time for a user are absent.
	DailyTotals(ctx context.Context) (map[string][]DayTotal, error)

	// CumulativeTotals returns, per user, the running sum of daily totals
	// ordered by day ascending.
	CumulativeTotals(ctx context.Context) (map[string][]DayTotal, error)

	// SaveNames merges display names into the persisted translation map.
	SaveNames(ctx context.Context, names map[string]string) error

	// Names returns the persisted translation map.
	Names(ctx context.Context) (map[string]string, error)

	// RecordFlush records a flush run for auditing. Implementations without
	// an audit trail may discard it.
	RecordFlush(ctx context.Context, run FlushRun) error

	Close() error
}

// EnsureDir ensures a directory exists with default permissions.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
