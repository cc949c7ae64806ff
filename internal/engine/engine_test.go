package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/goodtune/ontime/internal/identity"
	"github.com/goodtune/ontime/internal/storage"
)

// memStore is a minimal storage.Store for engine tests with injectable
// append failures.
type memStore struct {
	mu        sync.Mutex
	entries   []storage.LogEntry
	names     map[string]string
	runs      []storage.FlushRun
	appendErr error
}

func newMemStore() *memStore {
	return &memStore{names: make(map[string]string)}
}

func (m *memStore) Append(_ context.Context, entries []storage.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.entries = append(m.entries, entries...)
	return nil
}

func (m *memStore) runCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

func (m *memStore) DateRange(context.Context) (storage.DateRange, error) {
	if len(m.entries) == 0 {
		return storage.DateRange{}, storage.ErrNoData
	}
	r := storage.DateRange{First: m.entries[0].Day, Last: m.entries[0].Day}
	for _, e := range m.entries {
		if e.Day.Before(r.First) {
			r.First = e.Day
		}
		if e.Day.After(r.Last) {
			r.Last = e.Day
		}
	}
	return r, nil
}

func (m *memStore) RestorePoint(context.Context) (map[string]time.Duration, error) {
	return map[string]time.Duration{}, nil
}

func (m *memStore) Totals(context.Context) (map[string]time.Duration, error) {
	totals := make(map[string]time.Duration)
	for _, e := range m.entries {
		totals[e.UserID] += e.Duration()
	}
	return totals, nil
}

func (m *memStore) DailyTotals(context.Context) (map[string][]storage.DayTotal, error) {
	return map[string][]storage.DayTotal{}, nil
}

func (m *memStore) CumulativeTotals(context.Context) (map[string][]storage.DayTotal, error) {
	return map[string][]storage.DayTotal{}, nil
}

func (m *memStore) SaveNames(_ context.Context, names map[string]string) error {
	for userID, name := range names {
		m.names[userID] = name
	}
	return nil
}

func (m *memStore) Names(context.Context) (map[string]string, error) {
	return m.names, nil
}

func (m *memStore) RecordFlush(_ context.Context, run storage.FlushRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *memStore) Close() error { return nil }

func at(y int, mo time.Month, d, hh, mm, ss int) time.Time {
	return time.Date(y, mo, d, hh, mm, ss, 0, time.UTC)
}

func newTestEngine(store storage.Store, clock Clock) *Engine {
	return New(store, nil, clock, zerolog.Nop())
}

func TestOnlineIdempotent(t *testing.T) {
	e := newTestEngine(newMemStore(), nil)
	start := at(2021, 6, 16, 12, 0, 0)

	if !e.Online("100", start) {
		t.Fatal("first online should change state")
	}
	if e.Online("100", start.Add(time.Minute)) {
		t.Fatal("duplicate online should not change state")
	}
	if e.OpenSessions() != 1 {
		t.Fatalf("expected 1 open session, got %d", e.OpenSessions())
	}
}

func TestOfflineWithoutSession(t *testing.T) {
	store := newMemStore()
	e := newTestEngine(store, nil)

	changed, err := e.Offline(context.Background(), "100", at(2021, 6, 16, 12, 0, 0))
	if err != nil {
		t.Fatalf("offline: %v", err)
	}
	if changed {
		t.Error("spurious offline should not change state")
	}
	if len(store.entries) != 0 {
		t.Errorf("spurious offline must not write entries, got %d", len(store.entries))
	}
}

func TestOfflineSplitsAcrossDays(t *testing.T) {
	store := newMemStore()
	e := newTestEngine(store, nil)
	ctx := context.Background()

	e.Online("100", at(2021, 6, 16, 12, 0, 0))
	changed, err := e.Offline(ctx, "100", at(2021, 6, 18, 14, 0, 0))
	if err != nil {
		t.Fatalf("offline: %v", err)
	}
	if !changed {
		t.Fatal("expected state change")
	}

	if len(store.entries) != 3 {
		t.Fatalf("expected 3 log entries, got %d", len(store.entries))
	}

	want := []storage.LogEntry{
		{UserID: "100", Day: at(2021, 6, 16, 0, 0, 0), Start: 12 * time.Hour, End: storage.EndOfDayMark},
		{UserID: "100", Day: at(2021, 6, 17, 0, 0, 0), Start: 0, End: storage.EndOfDayMark},
		{UserID: "100", Day: at(2021, 6, 18, 0, 0, 0), Start: 0, End: 14 * time.Hour},
	}
	for i, e := range store.entries {
		if !e.Day.Equal(want[i].Day) || e.Start != want[i].Start || e.End != want[i].End {
			t.Errorf("entry %d: got %+v, want %+v", i, e, want[i])
		}
	}
}

func TestOfflineAppendFailureKeepsSession(t *testing.T) {
	store := newMemStore()
	store.appendErr = errors.New("disk full")
	e := newTestEngine(store, nil)
	ctx := context.Background()

	start := at(2021, 6, 16, 12, 0, 0)
	e.Online("100", start)

	if _, err := e.Offline(ctx, "100", start.Add(time.Hour)); err == nil {
		t.Fatal("expected append error")
	}
	if e.OpenSessions() != 1 {
		t.Fatal("session must stay open after failed append")
	}

	// Retry after the store recovers writes the same interval.
	store.appendErr = nil
	if _, err := e.Offline(ctx, "100", start.Add(time.Hour)); err != nil {
		t.Fatalf("retry offline: %v", err)
	}
	if len(store.entries) != 1 || store.entries[0].Duration() != time.Hour {
		t.Errorf("unexpected entries after retry: %+v", store.entries)
	}
}

func TestFlushRestartsSessions(t *testing.T) {
	store := newMemStore()
	clock := &TestClock{CurrentTime: at(2021, 6, 16, 13, 0, 0)}
	e := newTestEngine(store, clock)
	ctx := context.Background()

	e.Online("100", at(2021, 6, 16, 12, 0, 0))

	run, err := e.Flush(ctx)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if run.Entries != 1 {
		t.Fatalf("expected 1 entry, got %d", run.Entries)
	}
	if store.entries[0].Duration() != time.Hour {
		t.Errorf("expected 1h entry, got %v", store.entries[0].Duration())
	}
	if e.OpenSessions() != 1 {
		t.Error("flush must not close sessions")
	}

	// Close the session at flush time: no further time accrues.
	if _, err := e.Offline(ctx, "100", clock.CurrentTime); err != nil {
		t.Fatalf("offline: %v", err)
	}
	if len(store.entries) != 1 {
		t.Errorf("offline at flush time wrote %d extra entries", len(store.entries)-1)
	}
}

func TestDoubleFlushWritesNothing(t *testing.T) {
	store := newMemStore()
	clock := &TestClock{CurrentTime: at(2021, 6, 16, 13, 0, 0)}
	e := newTestEngine(store, clock)
	ctx := context.Background()

	e.Online("100", at(2021, 6, 16, 12, 0, 0))

	if _, err := e.Flush(ctx); err != nil {
		t.Fatalf("first flush: %v", err)
	}
	written := len(store.entries)

	run, err := e.Flush(ctx)
	if err != nil {
		t.Fatalf("second flush: %v", err)
	}
	if run.Entries != 0 {
		t.Errorf("second flush produced %d entries, want 0", run.Entries)
	}
	if len(store.entries) != written {
		t.Errorf("second flush wrote rows: %d -> %d", written, len(store.entries))
	}
}

func TestFlushFailureLeavesSessionsUnmodified(t *testing.T) {
	store := newMemStore()
	clock := &TestClock{CurrentTime: at(2021, 6, 16, 13, 0, 0)}
	e := newTestEngine(store, clock)
	ctx := context.Background()

	e.Online("100", at(2021, 6, 16, 12, 0, 0))

	store.appendErr = errors.New("connection refused")
	if _, err := e.Flush(ctx); err == nil {
		t.Fatal("expected flush error")
	}

	// Retry recomputes the same interval from the original session start.
	store.appendErr = nil
	run, err := e.Flush(ctx)
	if err != nil {
		t.Fatalf("retry flush: %v", err)
	}
	if run.Entries != 1 {
		t.Fatalf("expected 1 entry on retry, got %d", run.Entries)
	}
	if store.entries[0].Duration() != time.Hour {
		t.Errorf("retry interval %v, want 1h", store.entries[0].Duration())
	}
}

func TestFlushRefreshesNames(t *testing.T) {
	store := newMemStore()
	clock := &TestClock{CurrentTime: at(2021, 6, 16, 13, 0, 0)}
	e := New(store, identity.Static{"100": "alice"}, clock, zerolog.Nop())
	ctx := context.Background()

	e.Online("100", at(2021, 6, 16, 12, 0, 0))
	e.Online("200", at(2021, 6, 16, 12, 30, 0))

	if _, err := e.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	// User 200 has no name in the provider; bookkeeping is unaffected.
	if store.names["100"] != "alice" {
		t.Errorf("expected alice persisted, got %v", store.names)
	}
	if _, ok := store.names["200"]; ok {
		t.Error("unresolvable user should not get a name entry")
	}
	if len(store.entries) != 2 {
		t.Errorf("expected 2 entries, got %d", len(store.entries))
	}
}

func TestFlushRecordsRun(t *testing.T) {
	store := newMemStore()
	clock := &TestClock{CurrentTime: at(2021, 6, 16, 13, 0, 0)}
	e := newTestEngine(store, clock)

	e.Online("100", at(2021, 6, 16, 12, 0, 0))
	if _, err := e.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if len(store.runs) != 1 {
		t.Fatalf("expected 1 flush run, got %d", len(store.runs))
	}
	if store.runs[0].ID == "" || store.runs[0].Entries != 1 {
		t.Errorf("unexpected flush run %+v", store.runs[0])
	}
}
