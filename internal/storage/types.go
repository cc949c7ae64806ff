package storage

import (
	"time"

	"github.com/goodtune/ontime/internal/interval"
)

// DayFormat is the ISO calendar-date layout used for persisted day keys.
const DayFormat = "2006-01-02"

// EndOfDayMark is the time-of-day recorded for an entry that ran to the end
// of its calendar day. The schema stores times within the day, so a span
// reaching the next midnight is written as 23:59:59.
const EndOfDayMark = 23*time.Hour + 59*time.Minute + 59*time.Second

// LogEntry is one persisted, day-bounded sub-interval of a session. Day is
// midnight UTC; Start and End are offsets from that midnight with
// Start <= End. Entries are append-only: never mutated or deleted.
type LogEntry struct {
	UserID string
	Day    time.Time
	Start  time.Duration
	End    time.Duration
}

// Duration returns the logged time of the entry.
func (e LogEntry) Duration() time.Duration {
	return e.End - e.Start
}

// EntryFromSpan converts a splitter span into a log entry, clamping a span
// that runs to the next midnight down to the 23:59:59 day-boundary mark.
func EntryFromSpan(userID string, sp interval.Span) LogEntry {
	end := sp.End
	if end == interval.FullDay {
		end = EndOfDayMark
	}
	return LogEntry{UserID: userID, Day: sp.Day, Start: sp.Start, End: end}
}

// DayTotal is one point of a per-user time series.
type DayTotal struct {
	Day   time.Time
	Total time.Duration
}

// DateRange bounds the days with logged data, inclusive.
type DateRange struct {
	First time.Time
	Last  time.Time
}

// FlushRun records one flush of open sessions into the store.
type FlushRun struct {
	ID         string
	At         time.Time
	Entries    int
	DurationMS int64
	Err        string
}

// Cumulative turns per-day totals into running totals per user. Shared by
// the backends that keep daily aggregates rather than discrete intervals.
func Cumulative(daily map[string][]DayTotal) map[string][]DayTotal {
	out := make(map[string][]DayTotal, len(daily))
	for userID, series := range daily {
		running := make([]DayTotal, len(series))
		var sum time.Duration
		for i, dt := range series {
			sum += dt.Total
			running[i] = DayTotal{Day: dt.Day, Total: sum}
		}
		out[userID] = running
	}
	return out
}
