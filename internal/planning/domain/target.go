package planning

import "time"

// DailyTarget sums all hourly targets.
func DailyTarget(hourly map[int]int64) int64 {
	var total int64
	for _, qty := range hourly {
		total += qty
	}
	return total
}

// TargetToNow sums the hourly targets elapsed since dayStart, pro-rating the
// current hour by the fraction of it that has passed.
func TargetToNow(hourly map[int]int64, dayStart, now time.Time) float64 {
	if len(hourly) == 0 || !now.After(dayStart) {
		return 0
	}
	if now.Sub(dayStart) > 24*time.Hour {
		now = dayStart.Add(24 * time.Hour)
	}
	var total float64
	for hourStart := dayStart; hourStart.Before(now); hourStart = hourStart.Add(time.Hour) {
		qty := float64(hourly[hourStart.Hour()])
		hourEnd := hourStart.Add(time.Hour)
		if hourEnd.After(now) {
			total += qty * now.Sub(hourStart).Seconds() / time.Hour.Seconds()
			break
		}
		total += qty
	}
	return total
}

// Progress returns actual/plan as a percentage, 0 when there is no plan quantity.
func Progress(actual, planQty int64) float64 {
	if planQty <= 0 {
		return 0
	}
	return float64(actual) / float64(planQty) * 100
}
