// Package report shapes aggregation results for presentation: whole-second
// rounding, display names, deterministic ordering, and human-readable
// durations. Chart rendering itself lives outside this repository.
package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/goodtune/ontime/internal/storage"
)

// UserTotal is one row of a totals report.
type UserTotal struct {
	UserID  string        `json:"user_id"`
	Name    string        `json:"name"`
	Seconds int64         `json:"seconds"`
	Total   time.Duration `json:"-"`
}

// UserSeries is one user's per-day time series.
type UserSeries struct {
	UserID string     `json:"user_id"`
	Name   string     `json:"name"`
	Points []DayPoint `json:"points"`
}

// DayPoint is one day of a series.
type DayPoint struct {
	Day     string `json:"day"`
	Seconds int64  `json:"seconds"`
}

// Seconds rounds a duration down to whole seconds for display. Internal
// arithmetic stays at full precision; only reporting truncates.
func Seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}

// FormatDuration renders a duration as days, hours, minutes and seconds,
// e.g. "2d 3h 14m 5s".
func FormatDuration(d time.Duration) string {
	total := Seconds(d)
	days := total / 86400
	hours := (total % 86400) / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
}

// displayName falls back to the raw user ID when no translation exists.
func displayName(userID string, names map[string]string) string {
	if name, ok := names[userID]; ok && name != "" {
		return name
	}
	return userID
}

// Totals orders all-time totals descending by duration, ties by user ID.
func Totals(totals map[string]time.Duration, names map[string]string) []UserTotal {
	rows := make([]UserTotal, 0, len(totals))
	for userID, total := range totals {
		rows = append(rows, UserTotal{
			UserID:  userID,
			Name:    displayName(userID, names),
			Seconds: Seconds(total),
			Total:   total,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Total != rows[j].Total {
			return rows[i].Total > rows[j].Total
		}
		return rows[i].UserID < rows[j].UserID
	})
	return rows
}

// Series orders per-day (or cumulative) series by user ID; each user's
// points keep the store's day ordering.
func Series(daily map[string][]storage.DayTotal, names map[string]string) []UserSeries {
	rows := make([]UserSeries, 0, len(daily))
	for userID, series := range daily {
		points := make([]DayPoint, len(series))
		for i, dt := range series {
			points[i] = DayPoint{
				Day:     dt.Day.Format(storage.DayFormat),
				Seconds: Seconds(dt.Total),
			}
		}
		rows = append(rows, UserSeries{
			UserID: userID,
			Name:   displayName(userID, names),
			Points: points,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].UserID < rows[j].UserID })
	return rows
}
