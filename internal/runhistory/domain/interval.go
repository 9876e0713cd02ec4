package runhistory

import (
	"context"
	"math"
	"time"
)

// Interval is one row of machine run-state history. A zero End means the
// interval is still open.
type Interval struct {
	ID     int64
	LineID string
	Status Status
	Start  time.Time
	End    time.Time
}

// Open reports whether the interval has not been closed yet.
func (i Interval) Open() bool { return i.End.IsZero() }

// Repository persists run intervals.
type Repository interface {
	// RecordStatus closes open intervals of the line with a different status
	// and opens one for status unless an open interval with that status exists.
	RecordStatus(ctx context.Context, lineID string, status Status, at time.Time) error
	// ListIntervals returns intervals overlapping [from, to), ordered by start.
	ListIntervals(ctx context.Context, lineID string, from, to time.Time) ([]Interval, error)
}

// Summary holds elapsed minutes per status inside a window.
type Summary struct {
	WindowStart time.Time
	WindowEnd   time.Time
	Minutes     map[Status]float64
}

// Running returns running minutes.
func (s Summary) Running() float64 { return s.Minutes[StatusRunning] }

// Total returns the minutes of all statuses.
func (s Summary) Total() float64 {
	var total float64
	for _, m := range s.Minutes {
		total += m
	}
	return total
}

// Summarize sums elapsed minutes per status, clipping every interval to
// [windowStart, windowEnd). Open intervals run until now or windowEnd,
// whichever is earlier.
func Summarize(intervals []Interval, windowStart, windowEnd, now time.Time) Summary {
	summary := Summary{WindowStart: windowStart, WindowEnd: windowEnd, Minutes: make(map[Status]float64)}
	if !windowEnd.After(windowStart) {
		return summary
	}
	for _, interval := range intervals {
		start := interval.Start
		if start.Before(windowStart) {
			start = windowStart
		}
		end := interval.End
		if interval.Open() {
			end = now
		}
		if end.After(windowEnd) {
			end = windowEnd
		}
		if !end.After(start) {
			continue
		}
		summary.Minutes[interval.Status] += end.Sub(start).Minutes()
	}
	return summary
}

// OA returns the operational availability percentage:
// running / (running + changeover + malfunction + scheduled downtime - breaks),
// clamped to [0, 100] and 0 when the denominator is not positive.
func OA(summary Summary, breakMinutes float64) float64 {
	running := summary.Minutes[StatusRunning]
	denominator := running +
		summary.Minutes[StatusChangeover] +
		summary.Minutes[StatusMalfunction] +
		summary.Minutes[StatusScheduledDowntime] -
		breakMinutes
	if denominator <= 0 {
		return 0
	}
	oa := running / denominator * 100
	if math.IsNaN(oa) || oa < 0 {
		return 0
	}
	if oa > 100 {
		return 100
	}
	return oa
}
