package apihttp

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ProductionRow is one plan-versus-actual line of the production report.
type ProductionRow struct {
	PlanID    int64     `json:"plan_id"`
	LineCode  string    `json:"line"`
	Product   string    `json:"product"`
	PlanDate  time.Time `json:"plan_date"`
	PlanQty   int64     `json:"plan_qty"`
	ActualQty int64     `json:"actual_qty"`
	Progress  float64   `json:"progress"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// ProductionReader lists plan rows for a date range, inclusive on both ends.
type ProductionReader interface {
	ListProduction(ctx context.Context, lineCode string, from, to time.Time) ([]ProductionRow, error)
}

// SQLProductionReader reads the report from Postgres.
type SQLProductionReader struct {
	db *sql.DB
}

// NewSQLProductionReader constructs a reader.
func NewSQLProductionReader(db *sql.DB) *SQLProductionReader {
	return &SQLProductionReader{db: db}
}

// ListProduction joins plans with their products, lines and latest totals.
func (r *SQLProductionReader) ListProduction(ctx context.Context, lineCode string, from, to time.Time) ([]ProductionRow, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("production reader: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT
	p.id,
	l.code,
	pr.name,
	p.plan_date,
	p.plan_qty,
	COALESCE(h.actual_qty, 0),
	h.ts
FROM production_plans p
JOIN lines l ON l.id = p.line_id
JOIN products pr ON pr.id = p.product_id
LEFT JOIN production_histories h ON h.plan_id = p.id
WHERE ($1 = '' OR l.code = $1)
	AND p.plan_date >= $2
	AND p.plan_date <= $3
ORDER BY p.plan_date ASC, l.code ASC, pr.name ASC`, lineCode, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ProductionRow
	for rows.Next() {
		var row ProductionRow
		var updatedAt sql.NullTime
		if err := rows.Scan(
			&row.PlanID,
			&row.LineCode,
			&row.Product,
			&row.PlanDate,
			&row.PlanQty,
			&row.ActualQty,
			&updatedAt,
		); err != nil {
			return nil, err
		}
		row.PlanDate = row.PlanDate.UTC()
		if updatedAt.Valid {
			row.UpdatedAt = updatedAt.Time.UTC()
		}
		row.Progress = progress(row.ActualQty, row.PlanQty)
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func progress(actual, plan int64) float64 {
	if plan <= 0 {
		return 0
	}
	return float64(actual) / float64(plan) * 100
}
