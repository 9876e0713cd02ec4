package shift

import "time"

// DefaultDayBoundary is the start of a production day.
var DefaultDayBoundary = ClockTime{Hour: 8}

// EffectiveDate returns the production-accounting date (midnight, in t's
// location) that t belongs to. Instants before the boundary belong to the
// previous calendar day.
func EffectiveDate(t time.Time, boundary ClockTime) time.Time {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	if t.Before(boundary.On(day)) {
		day = day.AddDate(0, 0, -1)
	}
	return day
}

// DayStart returns the boundary instant that opened the production day t belongs to.
func DayStart(t time.Time, boundary ClockTime) time.Time {
	return boundary.On(EffectiveDate(t, boundary))
}
