// Package interval splits a timestamp span into per-calendar-day spans.
package interval

import "time"

// FullDay is the span end marking "ran until the end of this day". Spans are
// half-open, so a day that was fully covered ends at the next midnight.
const FullDay = 24 * time.Hour

// Span is one day-bounded slice of a session. Day is midnight UTC; Start and
// End are offsets from that midnight, with Start <= End <= FullDay.
type Span struct {
	Day   time.Time
	Start time.Duration
	End   time.Duration
}

// Duration returns the length of the span.
func (s Span) Duration() time.Duration {
	return s.End - s.Start
}

// Split covers [start, end) with per-day spans: no gaps, no overlaps, and the
// span durations sum to exactly end-start. Calendar days are taken in UTC.
// An end before start is clamped to start, never a negative span.
func Split(start, end time.Time) []Span {
	start = start.UTC()
	end = end.UTC()
	if end.Before(start) {
		end = start
	}

	startDay := midnight(start)
	endDay := midnight(end)

	if startDay.Equal(endDay) {
		return []Span{{
			Day:   startDay,
			Start: start.Sub(startDay),
			End:   end.Sub(startDay),
		}}
	}

	spans := []Span{{
		Day:   startDay,
		Start: start.Sub(startDay),
		End:   FullDay,
	}}

	for day := startDay.AddDate(0, 0, 1); day.Before(endDay); day = day.AddDate(0, 0, 1) {
		spans = append(spans, Span{Day: day, Start: 0, End: FullDay})
	}

	// A session ending exactly at midnight contributes nothing to the new day.
	if !end.Equal(endDay) {
		spans = append(spans, Span{
			Day:   endDay,
			Start: 0,
			End:   end.Sub(endDay),
		})
	}

	return spans
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
