// Package presence holds the in-memory presence state machine: which users
// currently have an open session and since when.
package presence

import "time"

// Interval is a closed [Start, End) session span produced when a user goes
// offline.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Duration returns the interval length.
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Tracker maps user IDs to their open session start. It does no locking of
// its own; the accounting engine serializes all access.
type Tracker struct {
	sessions map[string]time.Time
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{sessions: make(map[string]time.Time)}
}

// MarkOnline opens a session for the user starting at the given time. Returns
// false if a session is already open; duplicate online notifications must not
// move the recorded session start.
func (t *Tracker) MarkOnline(userID string, at time.Time) bool {
	if _, open := t.sessions[userID]; open {
		return false
	}
	t.sessions[userID] = at
	return true
}

// MarkOffline closes the user's session and returns the closed interval.
// Returns ok=false when no session is open; spurious offline notifications
// are ignored. An offline time before the session start is clamped so the
// interval is never negative.
func (t *Tracker) MarkOffline(userID string, at time.Time) (Interval, bool) {
	start, open := t.sessions[userID]
	if !open {
		return Interval{}, false
	}
	delete(t.sessions, userID)

	if at.Before(start) {
		at = start
	}
	return Interval{Start: start, End: at}, true
}

// Sessions returns a copy of the open sessions.
func (t *Tracker) Sessions() map[string]time.Time {
	out := make(map[string]time.Time, len(t.sessions))
	for userID, start := range t.sessions {
		out[userID] = start
	}
	return out
}

// Restart moves every open session start to now. Called after a successful
// flush so already-persisted time is not counted again.
func (t *Tracker) Restart(now time.Time) {
	for userID := range t.sessions {
		t.sessions[userID] = now
	}
}

// Len returns the number of open sessions.
func (t *Tracker) Len() int {
	return len(t.sessions)
}
