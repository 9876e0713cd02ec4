package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	planning "coatline/internal/planning/domain"
	"coatline/internal/storage/pg"
)

const defaultPlansTable = "production_plans"

// PlanRepository is a Postgres implementation for production plans.
type PlanRepository struct {
	db    pg.DBTX
	table string
}

// NewPlanRepository constructs a repository.
func NewPlanRepository(db pg.DBTX) *PlanRepository {
	return &PlanRepository{db: db, table: defaultPlansTable}
}

// Find loads the plan for a line, product and plan date.
func (r *PlanRepository) Find(ctx context.Context, lineID, productID int64, planDate time.Time) (*planning.Plan, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("plan repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, line_id, product_id, plan_date, plan_qty, created_at
FROM %s
WHERE line_id = $1 AND product_id = $2 AND plan_date = $3::date
LIMIT 1`, r.table)

	var plan planning.Plan
	if err := r.db.QueryRowContext(ctx, query, lineID, productID, planning.DateKey(planDate)).Scan(
		&plan.ID,
		&plan.LineID,
		&plan.ProductID,
		&plan.PlanDate,
		&plan.PlanQty,
		&plan.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	plan.CreatedAt = plan.CreatedAt.UTC()
	return &plan, nil
}

// Insert creates a plan. The unique key (line_id, product_id, plan_date)
// turns a concurrent duplicate into ErrDuplicatePlan.
func (r *PlanRepository) Insert(ctx context.Context, plan *planning.Plan) error {
	if r == nil || r.db == nil {
		return errors.New("plan repo: nil db")
	}
	if plan == nil {
		return errors.New("plan repo: nil plan")
	}
	if err := plan.Validate(); err != nil {
		return err
	}
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now().UTC()
	}
	query := fmt.Sprintf(`
INSERT INTO %s (line_id, product_id, plan_date, plan_qty, created_at)
VALUES ($1, $2, $3::date, $4, $5)
RETURNING id`, r.table)

	err := r.db.QueryRowContext(ctx, query,
		plan.LineID,
		plan.ProductID,
		planning.DateKey(plan.PlanDate),
		plan.PlanQty,
		plan.CreatedAt,
	).Scan(&plan.ID)
	if err != nil {
		if pg.IsUniqueViolation(err) {
			return planning.ErrDuplicatePlan
		}
		return err
	}
	return nil
}
