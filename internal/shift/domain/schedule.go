package shift

import (
	"context"
	"time"
)

// BreakWindow is a planned rest period subtracted from the OA denominator.
type BreakWindow struct {
	Schedule ScheduleType `yaml:"schedule"`
	Start    ClockTime    `yaml:"start"`
	End      ClockTime    `yaml:"end"`
}

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether the calendar date of t is within the range.
func (r DateRange) Contains(t time.Time) bool {
	if r.From.IsZero() || r.To.IsZero() {
		return false
	}
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	fy, fm, fd := r.From.Date()
	ty, tm, td := r.To.Date()
	from := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	to := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return !day.Before(from) && !day.After(to)
}

// Schedule bundles the shift reference data of the plant.
type Schedule struct {
	Windows  []Window
	Breaks   []BreakWindow
	Ramadan  DateRange
	Boundary ClockTime
	Location *time.Location
}

// WindowRepository loads shift windows from durable storage.
type WindowRepository interface {
	ListWindows(ctx context.Context) ([]Window, error)
}

// TypeAt returns the schedule type active on the production day of t.
func (s Schedule) TypeAt(t time.Time) ScheduleType {
	if s.Ramadan.Contains(EffectiveDate(s.local(t), s.Boundary)) {
		return ScheduleRamadan
	}
	return ScheduleNormal
}

// Resolve classifies now against the windows of the active schedule type.
func (s Schedule) Resolve(now time.Time) (Resolution, error) {
	now = s.local(now)
	return Resolve(s.Windows, s.TypeAt(now), now)
}

// EffectiveDate returns the production date of t.
func (s Schedule) EffectiveDate(t time.Time) time.Time {
	return EffectiveDate(s.local(t), s.Boundary)
}

// DayStart returns the boundary instant of the production day of t.
func (s Schedule) DayStart(t time.Time) time.Time {
	return DayStart(s.local(t), s.Boundary)
}

// BreakMinutes returns the minutes of configured breaks overlapping [from, to).
func (s Schedule) BreakMinutes(from, to time.Time) float64 {
	if len(s.Breaks) == 0 || !to.After(from) {
		return 0
	}
	from = s.local(from)
	to = s.local(to)
	var total time.Duration
	for day := from.AddDate(0, 0, -1); !day.After(to); day = day.AddDate(0, 0, 1) {
		scheduleType := s.TypeAt(day)
		for _, b := range s.Breaks {
			if b.Schedule != "" && b.Schedule != scheduleType {
				continue
			}
			start := b.Start.On(day)
			end := b.End.On(day)
			if !end.After(start) {
				end = end.AddDate(0, 0, 1)
			}
			total += overlap(start, end, from, to)
		}
	}
	return total.Minutes()
}

func (s Schedule) local(t time.Time) time.Time {
	if s.Location == nil {
		return t
	}
	return t.In(s.Location)
}

func overlap(aStart, aEnd, bStart, bEnd time.Time) time.Duration {
	start := aStart
	if bStart.After(start) {
		start = bStart
	}
	end := aEnd
	if bEnd.Before(end) {
		end = bEnd
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start)
}
