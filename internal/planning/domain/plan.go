package planning

import (
	"context"
	"fmt"
	"time"
)

// Plan is a production plan row keyed by (line, product, plan date).
type Plan struct {
	ID        int64
	LineID    int64
	ProductID int64
	PlanDate  time.Time
	PlanQty   int64
	CreatedAt time.Time
}

// Validate checks plan invariants.
func (p Plan) Validate() error {
	if p.LineID == 0 || p.ProductID == 0 {
		return fmt.Errorf("%w: missing line or product", ErrInvalidPlan)
	}
	if p.PlanDate.IsZero() {
		return fmt.Errorf("%w: missing plan date", ErrInvalidPlan)
	}
	if p.PlanQty < 0 {
		return fmt.Errorf("%w: negative quantity", ErrInvalidPlan)
	}
	return nil
}

// History is the single actual-quantity row of a plan. It is overwritten, not appended.
type History struct {
	PlanID    int64
	ActualQty int64
	Timestamp time.Time
}

// PlanRepository persists production plans.
type PlanRepository interface {
	Find(ctx context.Context, lineID, productID int64, planDate time.Time) (*Plan, error)
	// Insert creates a plan and returns ErrDuplicatePlan on a uniqueness conflict.
	Insert(ctx context.Context, plan *Plan) error
}

// HistoryRepository persists production history rows.
type HistoryRepository interface {
	Get(ctx context.Context, planID int64) (*History, error)
	Upsert(ctx context.Context, history History) error
}

// TargetRepository looks up per-line hourly production targets.
type TargetRepository interface {
	// HourlyTargets maps hour of day (0-23) to the target quantity for that hour.
	HourlyTargets(ctx context.Context, lineID int64) (map[int]int64, error)
}

// DateKey normalizes a plan date to a calendar date string.
func DateKey(date time.Time) string {
	return date.Format("2006-01-02")
}
