package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	planning "coatline/internal/planning/domain"
)

// PlanRepository is an in-memory plan store with the same uniqueness rule as the database.
type PlanRepository struct {
	mu     sync.Mutex
	nextID int64
	plans  map[string]planning.Plan

	// Inserts counts insert attempts, including ones rejected as duplicates.
	Inserts int
}

// NewPlanRepository constructs a repository.
func NewPlanRepository() *PlanRepository {
	return &PlanRepository{plans: make(map[string]planning.Plan)}
}

func planKey(lineID, productID int64, date time.Time) string {
	return fmt.Sprintf("%d|%d|%s", lineID, productID, planning.DateKey(date))
}

// Find loads a plan.
func (r *PlanRepository) Find(ctx context.Context, lineID, productID int64, planDate time.Time) (*planning.Plan, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	plan, ok := r.plans[planKey(lineID, productID, planDate)]
	if !ok {
		return nil, nil
	}
	return &plan, nil
}

// Insert creates a plan or returns ErrDuplicatePlan.
func (r *PlanRepository) Insert(ctx context.Context, plan *planning.Plan) error {
	_ = ctx
	if err := plan.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Inserts++
	key := planKey(plan.LineID, plan.ProductID, plan.PlanDate)
	if _, exists := r.plans[key]; exists {
		return planning.ErrDuplicatePlan
	}
	r.nextID++
	plan.ID = r.nextID
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now().UTC()
	}
	r.plans[key] = *plan
	return nil
}

// Count returns the number of stored plans.
func (r *PlanRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.plans)
}

// HistoryRepository is an in-memory history store.
type HistoryRepository struct {
	mu      sync.Mutex
	rows    map[int64]planning.History
	Upserts int
}

// NewHistoryRepository constructs a repository.
func NewHistoryRepository() *HistoryRepository {
	return &HistoryRepository{rows: make(map[int64]planning.History)}
}

// Get loads the history row of a plan.
func (r *HistoryRepository) Get(ctx context.Context, planID int64) (*planning.History, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[planID]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

// Upsert overwrites the history row of a plan.
func (r *HistoryRepository) Upsert(ctx context.Context, history planning.History) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Upserts++
	r.rows[history.PlanID] = history
	return nil
}

// TargetRepository serves fixed hourly targets.
type TargetRepository struct {
	Targets map[int64]map[int]int64
}

// HourlyTargets returns the configured targets of a line.
func (r TargetRepository) HourlyTargets(ctx context.Context, lineID int64) (map[int]int64, error) {
	_ = ctx
	return r.Targets[lineID], nil
}
