// Package engine owns the online-time accounting core: the presence state
// machine, the flush protocol that turns open sessions into durable log
// entries, and read access to the aggregation queries.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/goodtune/ontime/internal/identity"
	"github.com/goodtune/ontime/internal/interval"
	"github.com/goodtune/ontime/internal/metrics"
	"github.com/goodtune/ontime/internal/presence"
	"github.com/goodtune/ontime/internal/storage"
)

// Engine serializes all mutation of the (session map, log store) pair behind
// a single mutex: Online, Offline and Flush are atomic with respect to each
// other. Reads go straight to the store and never hold the engine lock.
type Engine struct {
	tracker  *presence.Tracker
	store    storage.Store
	resolver identity.Resolver
	clock    Clock
	logger   zerolog.Logger
	mu       sync.Mutex
}

// New creates an accounting engine. resolver may be nil when no identity
// provider is configured.
func New(store storage.Store, resolver identity.Resolver, clock Clock, logger zerolog.Logger) *Engine {
	if clock == nil {
		clock = RealClock{}
	}
	return &Engine{
		tracker:  presence.NewTracker(),
		store:    store,
		resolver: resolver,
		clock:    clock,
		logger:   logger.With().Str("component", "engine").Logger(),
	}
}

// Online records an online transition. Duplicate notifications for an
// already-online user are no-ops and do not move the session start.
func (e *Engine) Online(userID string, at time.Time) bool {
	e.mu.Lock()
	changed := e.tracker.MarkOnline(userID, at)
	open := e.tracker.Len()
	e.mu.Unlock()

	metrics.PresenceEventsTotal.WithLabelValues("online", boolLabel(changed)).Inc()
	metrics.SessionsOpen.Set(float64(open))

	if changed {
		e.logger.Info().Str("user_id", userID).Time("at", at).Msg("User now online")
	}
	return changed
}

// Offline records an offline transition, splitting the closed session across
// day boundaries and appending it to the store. A spurious offline event for
// a user with no open session changes nothing. If the append fails the
// session is kept open so a retry recomputes the same interval.
func (e *Engine) Offline(ctx context.Context, userID string, at time.Time) (bool, error) {
	e.mu.Lock()
	iv, ok := e.tracker.MarkOffline(userID, at)
	if !ok {
		e.mu.Unlock()
		metrics.PresenceEventsTotal.WithLabelValues("offline", "false").Inc()
		return false, nil
	}

	entries := entriesFor(userID, iv.Start, iv.End)
	if len(entries) > 0 {
		if err := e.store.Append(ctx, entries); err != nil {
			e.tracker.MarkOnline(userID, iv.Start)
			e.mu.Unlock()
			return false, fmt.Errorf("append session for %s: %w", userID, err)
		}
		metrics.LogEntriesWritten.Add(float64(len(entries)))
	}
	open := e.tracker.Len()
	e.mu.Unlock()

	metrics.PresenceEventsTotal.WithLabelValues("offline", "true").Inc()
	metrics.SessionsOpen.Set(float64(open))

	e.logger.Info().
		Str("user_id", userID).
		Time("at", at).
		Dur("session", iv.Duration()).
		Int("entries", len(entries)).
		Msg("User now offline")

	e.refreshNames(ctx, []string{userID})
	return true, nil
}

// Flush converts every open session into log entries up to now and restarts
// the sessions at now, in one atomic batch. On failure the session starts
// are left untouched so the next flush recomputes the same intervals.
func (e *Engine) Flush(ctx context.Context) (storage.FlushRun, error) {
	run := storage.FlushRun{ID: uuid.NewString()}
	started := time.Now()

	e.mu.Lock()
	now := e.clock.Now()
	run.At = now

	var entries []storage.LogEntry
	var userIDs []string
	for userID, sessionStart := range e.tracker.Sessions() {
		userEntries := entriesFor(userID, sessionStart, now)
		if len(userEntries) == 0 {
			continue
		}
		entries = append(entries, userEntries...)
		userIDs = append(userIDs, userID)
	}
	run.Entries = len(entries)

	if len(entries) > 0 {
		if err := e.store.Append(ctx, entries); err != nil {
			e.mu.Unlock()
			run.DurationMS = time.Since(started).Milliseconds()
			run.Err = err.Error()
			e.recordFlush(ctx, run)
			metrics.FlushesTotal.WithLabelValues("error").Inc()
			return run, fmt.Errorf("flush append: %w", err)
		}
		metrics.LogEntriesWritten.Add(float64(len(entries)))
	}
	e.tracker.Restart(now)
	open := e.tracker.Len()
	e.mu.Unlock()

	run.DurationMS = time.Since(started).Milliseconds()
	metrics.FlushesTotal.WithLabelValues("ok").Inc()
	metrics.FlushDuration.Observe(time.Since(started).Seconds())
	metrics.SessionsOpen.Set(float64(open))

	e.logger.Info().
		Str("run_id", run.ID).
		Int("entries", run.Entries).
		Int("open_sessions", open).
		Msg("Flushed open sessions")

	e.recordFlush(ctx, run)
	e.refreshNames(ctx, userIDs)
	return run, nil
}

// Restore warms process state from the store after a restart. Only the last
// known durations survive a crash; open sessions at crash time lose their
// unflushed tail.
func (e *Engine) Restore(ctx context.Context) error {
	point, err := e.store.RestorePoint(ctx)
	if err != nil {
		return fmt.Errorf("read restore point: %w", err)
	}

	e.logger.Info().
		Int("users", len(point)).
		Msg("Restored last known durations from store")
	return nil
}

// Totals returns the all-time total duration per user.
func (e *Engine) Totals(ctx context.Context) (map[string]time.Duration, error) {
	return e.store.Totals(ctx)
}

// DailyTotals returns per-user per-day durations ordered by day.
func (e *Engine) DailyTotals(ctx context.Context) (map[string][]storage.DayTotal, error) {
	return e.store.DailyTotals(ctx)
}

// CumulativeTotals returns per-user running totals ordered by day.
func (e *Engine) CumulativeTotals(ctx context.Context) (map[string][]storage.DayTotal, error) {
	return e.store.CumulativeTotals(ctx)
}

// DateRange returns the span of days with logged data.
func (e *Engine) DateRange(ctx context.Context) (storage.DateRange, error) {
	return e.store.DateRange(ctx)
}

// Names returns the persisted translation map.
func (e *Engine) Names(ctx context.Context) (map[string]string, error) {
	return e.store.Names(ctx)
}

// OpenSessions returns the number of currently open sessions.
func (e *Engine) OpenSessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.Len()
}

// refreshNames resolves display names for the given users and persists them,
// best-effort. Runs outside the engine lock; lookups may hit the network.
func (e *Engine) refreshNames(ctx context.Context, userIDs []string) {
	if e.resolver == nil || len(userIDs) == 0 {
		return
	}

	names := identity.ResolveAll(ctx, e.resolver, userIDs, e.logger)
	if failed := len(userIDs) - len(names); failed > 0 {
		metrics.IdentityLookupFailures.Add(float64(failed))
	}
	if len(names) == 0 {
		return
	}
	if err := e.store.SaveNames(ctx, names); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to persist display names")
	}
}

// recordFlush writes the flush audit record, best-effort.
func (e *Engine) recordFlush(ctx context.Context, run storage.FlushRun) {
	if err := e.store.RecordFlush(ctx, run); err != nil {
		e.logger.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to record flush run")
	}
}

// entriesFor splits a closed [start, end) session into day-bounded log
// entries, dropping zero-length pieces.
func entriesFor(userID string, start, end time.Time) []storage.LogEntry {
	spans := interval.Split(start, end)
	entries := make([]storage.LogEntry, 0, len(spans))
	for _, sp := range spans {
		if sp.Duration() <= 0 {
			continue
		}
		entries = append(entries, storage.EntryFromSpan(userID, sp))
	}
	return entries
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
