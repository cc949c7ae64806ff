package presence

import (
	"testing"
	"time"
)

func TestMarkOnlineIdempotent(t *testing.T) {
	tracker := NewTracker()
	first := time.Date(2021, 6, 16, 12, 0, 0, 0, time.UTC)

	if !tracker.MarkOnline("100", first) {
		t.Fatal("first MarkOnline should report a state change")
	}
	if tracker.MarkOnline("100", first.Add(time.Minute)) {
		t.Fatal("duplicate MarkOnline should not report a state change")
	}

	iv, ok := tracker.MarkOffline("100", first.Add(time.Hour))
	if !ok {
		t.Fatal("expected an open session")
	}
	if !iv.Start.Equal(first) {
		t.Errorf("session start drifted: got %v, want %v", iv.Start, first)
	}
}

func TestMarkOfflineWithoutSession(t *testing.T) {
	tracker := NewTracker()
	if _, ok := tracker.MarkOffline("100", time.Now()); ok {
		t.Fatal("MarkOffline without a session should report nothing")
	}
	if tracker.Len() != 0 {
		t.Fatalf("expected no sessions, got %d", tracker.Len())
	}
}

func TestMarkOfflineClampsBackwardClock(t *testing.T) {
	tracker := NewTracker()
	start := time.Date(2021, 6, 16, 12, 0, 0, 0, time.UTC)

	tracker.MarkOnline("100", start)
	iv, ok := tracker.MarkOffline("100", start.Add(-time.Hour))
	if !ok {
		t.Fatal("expected an open session")
	}
	if iv.Duration() != 0 {
		t.Errorf("expected zero-length interval, got %v", iv.Duration())
	}
}

func TestRestart(t *testing.T) {
	tracker := NewTracker()
	start := time.Date(2021, 6, 16, 12, 0, 0, 0, time.UTC)
	now := start.Add(2 * time.Hour)

	tracker.MarkOnline("100", start)
	tracker.MarkOnline("200", start.Add(time.Hour))
	tracker.Restart(now)

	for userID, got := range tracker.Sessions() {
		if !got.Equal(now) {
			t.Errorf("user %s: session start %v, want %v", userID, got, now)
		}
	}
}

func TestSessionsReturnsCopy(t *testing.T) {
	tracker := NewTracker()
	start := time.Date(2021, 6, 16, 12, 0, 0, 0, time.UTC)
	tracker.MarkOnline("100", start)

	sessions := tracker.Sessions()
	sessions["100"] = start.Add(time.Hour)

	iv, _ := tracker.MarkOffline("100", start.Add(time.Minute))
	if !iv.Start.Equal(start) {
		t.Errorf("tracker state mutated through Sessions copy")
	}
}
