package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goodtune/ontime/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAppendAccumulates(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Append(ctx, []storage.LogEntry{
		{UserID: "100", Day: day(2021, 6, 16), Start: 0, End: time.Hour},
	}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Append(ctx, []storage.LogEntry{
		{UserID: "100", Day: day(2021, 6, 16), Start: time.Hour, End: time.Hour + 30*time.Minute},
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	totals, err := store.Totals(ctx)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals["100"] != 90*time.Minute {
		t.Errorf("got %v, want 90m", totals["100"])
	}
}

func TestDateRangeEmpty(t *testing.T) {
	store := openTestStore(t)

	_, err := store.DateRange(context.Background())
	if !errors.Is(err, storage.ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestMalformedSnapshotIsColdStart(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "stats.json"), []byte("{not json"), 0644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	store, err := Open(dir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	totals, err := store.Totals(context.Background())
	if err != nil {
		t.Fatalf("totals on corrupt snapshot: %v", err)
	}
	if len(totals) != 0 {
		t.Errorf("expected empty totals, got %v", totals)
	}

	if err := store.Append(context.Background(), []storage.LogEntry{
		{UserID: "100", Day: day(2021, 6, 16), Start: 0, End: time.Minute},
	}); err != nil {
		t.Fatalf("append after corrupt snapshot: %v", err)
	}
}

func TestDailyAndCumulativeTotals(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Append(ctx, []storage.LogEntry{
		{UserID: "100", Day: day(2021, 6, 16), Start: 0, End: time.Hour},
		{UserID: "100", Day: day(2021, 6, 17), Start: 0, End: 30 * time.Minute},
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	daily, err := store.DailyTotals(ctx)
	if err != nil {
		t.Fatalf("daily totals: %v", err)
	}
	series := daily["100"]
	if len(series) != 2 {
		t.Fatalf("expected 2 points, got %d", len(series))
	}
	if series[0].Total != time.Hour || series[1].Total != 30*time.Minute {
		t.Errorf("unexpected daily series %v", series)
	}

	cumulative, err := store.CumulativeTotals(ctx)
	if err != nil {
		t.Fatalf("cumulative totals: %v", err)
	}
	running := cumulative["100"]
	if running[1].Total != 90*time.Minute {
		t.Errorf("got %v, want 90m", running[1].Total)
	}
}

func TestRestorePointUsesLatestDay(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Append(ctx, []storage.LogEntry{
		{UserID: "100", Day: day(2021, 6, 16), Start: 0, End: time.Hour},
		{UserID: "100", Day: day(2021, 6, 17), Start: 0, End: 20 * time.Minute},
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	point, err := store.RestorePoint(ctx)
	if err != nil {
		t.Fatalf("restore point: %v", err)
	}
	if point["100"] != 20*time.Minute {
		t.Errorf("got %v, want 20m", point["100"])
	}
}

func TestSaveNamesMerges(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.SaveNames(ctx, map[string]string{"100": "alice"}); err != nil {
		t.Fatalf("save names: %v", err)
	}
	if err := store.SaveNames(ctx, map[string]string{"200": "bob"}); err != nil {
		t.Fatalf("save names: %v", err)
	}

	names, err := store.Names(ctx)
	if err != nil {
		t.Fatalf("names: %v", err)
	}
	if names["100"] != "alice" || names["200"] != "bob" {
		t.Errorf("unexpected names %v", names)
	}
}
