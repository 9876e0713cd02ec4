package shift

import "errors"

var (
	// ErrNoWindows is returned when a schedule type has no shift windows configured.
	ErrNoWindows = errors.New("shift: no windows for schedule")
	// ErrInvalidClockTime is returned when a time of day cannot be parsed.
	ErrInvalidClockTime = errors.New("shift: invalid clock time")
	// ErrInvalidWindow is returned when a window is missing its code or has a non-positive length.
	ErrInvalidWindow = errors.New("shift: invalid window")
	// ErrUnknownSchedule is returned for schedule types other than NORMAL and RAMADAN.
	ErrUnknownSchedule = errors.New("shift: unknown schedule type")
)
