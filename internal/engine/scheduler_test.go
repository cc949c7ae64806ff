package engine

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSchedulerFlushesPeriodically(t *testing.T) {
	store := newMemStore()
	e := newTestEngine(store, RealClock{})
	e.Online("100", time.Now().Add(-time.Hour))

	s := NewScheduler(e, 10*time.Millisecond, time.Second, zerolog.Nop())
	s.Start()
	defer s.Stop()

	deadline := time.After(2 * time.Second)
	for store.runCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("scheduler never flushed")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSchedulerStops(t *testing.T) {
	s := NewScheduler(newTestEngine(newMemStore(), nil), time.Hour, time.Second, zerolog.Nop())
	s.Start()
	s.Stop()
}
