package postgres

import (
	"context"
	"errors"
	"fmt"

	"coatline/internal/storage/pg"
)

const defaultTargetsTable = "production_targets"

// TargetRepository is a Postgres implementation for per-hour line targets.
type TargetRepository struct {
	db    pg.DBTX
	table string
}

// NewTargetRepository constructs a repository.
func NewTargetRepository(db pg.DBTX) *TargetRepository {
	return &TargetRepository{db: db, table: defaultTargetsTable}
}

// HourlyTargets maps hour of day to target quantity for a line.
func (r *TargetRepository) HourlyTargets(ctx context.Context, lineID int64) (map[int]int64, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("target repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT hour_of_day, target_qty
FROM %s
WHERE line_id = $1`, r.table)

	rows, err := r.db.QueryContext(ctx, query, lineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	targets := make(map[int]int64)
	for rows.Next() {
		var (
			hour int
			qty  int64
		)
		if err := rows.Scan(&hour, &qty); err != nil {
			return nil, err
		}
		if hour < 0 || hour > 23 {
			continue
		}
		targets[hour] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return targets, nil
}

// ReplaceTargets swaps the hourly targets of a line. Run it inside a
// transaction to keep readers from seeing a partial set.
func (r *TargetRepository) ReplaceTargets(ctx context.Context, lineID int64, targets map[int]int64) error {
	if r == nil || r.db == nil {
		return errors.New("target repo: nil db")
	}
	for hour, qty := range targets {
		if hour < 0 || hour > 23 {
			return fmt.Errorf("target repo: hour %d out of range", hour)
		}
		if qty < 0 {
			return fmt.Errorf("target repo: negative target for hour %d", hour)
		}
	}
	if _, err := r.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE line_id = $1`, r.table), lineID); err != nil {
		return err
	}
	insert := fmt.Sprintf(`INSERT INTO %s (line_id, hour_of_day, target_qty) VALUES ($1, $2, $3)`, r.table)
	for hour, qty := range targets {
		if _, err := r.db.ExecContext(ctx, insert, lineID, hour, qty); err != nil {
			return err
		}
	}
	return nil
}
