package shift

import (
	"fmt"
	"sort"
	"time"
)

// ScheduleType selects which set of shift windows applies.
type ScheduleType string

const (
	ScheduleNormal  ScheduleType = "NORMAL"
	ScheduleRamadan ScheduleType = "RAMADAN"
)

// ParseScheduleType normalizes a schedule type name.
func ParseScheduleType(value string) (ScheduleType, error) {
	switch ScheduleType(value) {
	case ScheduleNormal, ScheduleRamadan:
		return ScheduleType(value), nil
	case "":
		return ScheduleNormal, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSchedule, value)
	}
}

// Mode classifies an instant against the shift windows.
type Mode string

const (
	ModeInside Mode = "INSIDE"
	ModeGap    Mode = "GAP"
)

// Window is a configured shift. It is immutable reference data.
type Window struct {
	Schedule        ScheduleType `yaml:"schedule"`
	Code            string       `yaml:"code"`
	Start           ClockTime    `yaml:"start"`
	End             ClockTime    `yaml:"end"`
	CrossesMidnight bool         `yaml:"crosses_midnight"`
}

// Validate checks window invariants.
func (w Window) Validate() error {
	if w.Code == "" {
		return fmt.Errorf("%w: empty code", ErrInvalidWindow)
	}
	if !w.CrossesMidnight && !w.Start.Before(w.End) {
		return fmt.Errorf("%w: %s ends at or before its start without crossing midnight", ErrInvalidWindow, w.Code)
	}
	return nil
}

// Interval anchors the window on a calendar day. ok is false when the window
// cannot produce a positive-length interval.
func (w Window) Interval(anchor time.Time) (start, end time.Time, ok bool) {
	start = w.Start.On(anchor)
	end = w.End.On(anchor)
	if w.CrossesMidnight && !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return start, end, end.After(start)
}

// Resolution is the classification of an instant against shift windows.
// Exactly one of INSIDE or GAP is set.
type Resolution struct {
	Schedule ScheduleType
	Mode     Mode

	// INSIDE
	Code         string
	Start        time.Time
	End          time.Time
	SecondsToEnd int64
	MinutesToEnd int64

	// GAP
	PrevCode   string
	PrevEnd    time.Time
	NextCode   string
	NextStart  time.Time
	GapSeconds int64
	GapMinutes int64
}

// Inside reports whether the instant fell within an active shift.
func (r Resolution) Inside() bool { return r.Mode == ModeInside }

type candidate struct {
	code  string
	start time.Time
	end   time.Time
}

// Resolve classifies now against the windows of the given schedule type.
// Candidates are built for yesterday, today and tomorrow so that both the
// previous end and the next start are found for gaps spanning midnight.
func Resolve(windows []Window, schedule ScheduleType, now time.Time) (Resolution, error) {
	candidates := buildCandidates(windows, schedule, now)
	if len(candidates) == 0 {
		return Resolution{}, fmt.Errorf("%w: %s", ErrNoWindows, schedule)
	}

	var inside *candidate
	for i := range candidates {
		c := &candidates[i]
		if now.Before(c.start) || !now.Before(c.end) {
			continue
		}
		// Overlapping configuration: the most recently started shift wins.
		if inside == nil || c.start.After(inside.start) {
			inside = c
		}
	}

	if inside != nil {
		remaining := int64(inside.end.Sub(now) / time.Second)
		return Resolution{
			Schedule:     schedule,
			Mode:         ModeInside,
			Code:         inside.code,
			Start:        inside.start,
			End:          inside.end,
			SecondsToEnd: remaining,
			MinutesToEnd: remaining / 60,
		}, nil
	}

	var prev, next *candidate
	for i := range candidates {
		c := &candidates[i]
		if !c.end.After(now) && (prev == nil || c.end.After(prev.end)) {
			prev = c
		}
		if c.start.After(now) && (next == nil || c.start.Before(next.start)) {
			next = c
		}
	}

	res := Resolution{Schedule: schedule, Mode: ModeGap}
	if prev != nil {
		res.PrevCode = prev.code
		res.PrevEnd = prev.end
	}
	if next != nil {
		res.NextCode = next.code
		res.NextStart = next.start
		res.GapSeconds = int64(next.start.Sub(now) / time.Second)
		res.GapMinutes = res.GapSeconds / 60
	}
	return res, nil
}

func buildCandidates(windows []Window, schedule ScheduleType, now time.Time) []candidate {
	lower := now.Add(-24 * time.Hour)
	upper := now.Add(24 * time.Hour)
	var out []candidate
	for _, offset := range []int{-1, 0, 1} {
		anchor := now.AddDate(0, 0, offset)
		for _, w := range windows {
			if w.Schedule != schedule {
				continue
			}
			start, end, ok := w.Interval(anchor)
			if !ok {
				continue
			}
			if !end.After(lower) || !start.Before(upper) {
				continue
			}
			out = append(out, candidate{code: w.Code, start: start, end: end})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].start.Before(out[j].start) })
	return out
}
