package report

import (
	"testing"
	"time"

	"github.com/goodtune/ontime/internal/storage"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0d 0h 0m 0s"},
		{59 * time.Second, "0d 0h 0m 59s"},
		{90 * time.Minute, "0d 1h 30m 0s"},
		{26*time.Hour + 3*time.Minute + 4*time.Second, "1d 2h 3m 4s"},
		// Sub-second remainders round down.
		{time.Second + 900*time.Millisecond, "0d 0h 0m 1s"},
	}

	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTotalsOrderingAndNames(t *testing.T) {
	rows := Totals(
		map[string]time.Duration{
			"100": 2 * time.Hour,
			"200": 3 * time.Hour,
			"300": time.Hour,
		},
		map[string]string{"100": "alice"},
	)

	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].UserID != "200" || rows[1].UserID != "100" || rows[2].UserID != "300" {
		t.Errorf("unexpected order: %v", rows)
	}
	if rows[1].Name != "alice" {
		t.Errorf("expected translated name, got %q", rows[1].Name)
	}
	if rows[0].Name != "200" {
		t.Errorf("expected fallback to user id, got %q", rows[0].Name)
	}
}

func TestSeries(t *testing.T) {
	d1 := time.Date(2021, 6, 16, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)

	rows := Series(map[string][]storage.DayTotal{
		"100": {
			{Day: d1, Total: 3600 * time.Second},
			{Day: d2, Total: 5400 * time.Second},
		},
	}, nil)

	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	points := rows[0].Points
	if points[0].Day != "2021-06-16" || points[0].Seconds != 3600 {
		t.Errorf("unexpected first point %+v", points[0])
	}
	if points[1].Day != "2021-06-17" || points[1].Seconds != 5400 {
		t.Errorf("unexpected second point %+v", points[1])
	}
}
