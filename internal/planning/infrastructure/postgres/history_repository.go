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

const defaultHistoriesTable = "production_histories"

// HistoryRepository is a Postgres implementation for production history.
type HistoryRepository struct {
	db    pg.DBTX
	table string
}

// NewHistoryRepository constructs a repository.
func NewHistoryRepository(db pg.DBTX) *HistoryRepository {
	return &HistoryRepository{db: db, table: defaultHistoriesTable}
}

// Get loads the history row of a plan.
func (r *HistoryRepository) Get(ctx context.Context, planID int64) (*planning.History, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("history repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT plan_id, actual_qty, ts
FROM %s
WHERE plan_id = $1`, r.table)

	var history planning.History
	if err := r.db.QueryRowContext(ctx, query, planID).Scan(&history.PlanID, &history.ActualQty, &history.Timestamp); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	history.Timestamp = history.Timestamp.UTC()
	return &history, nil
}

// Upsert overwrites the single history row of a plan.
func (r *HistoryRepository) Upsert(ctx context.Context, history planning.History) error {
	if r == nil || r.db == nil {
		return errors.New("history repo: nil db")
	}
	if history.PlanID == 0 {
		return errors.New("history repo: empty plan id")
	}
	if history.Timestamp.IsZero() {
		history.Timestamp = time.Now().UTC()
	}
	query := fmt.Sprintf(`
INSERT INTO %s (plan_id, actual_qty, ts)
VALUES ($1, $2, $3)
ON CONFLICT (plan_id)
DO UPDATE SET
	actual_qty = EXCLUDED.actual_qty,
	ts = EXCLUDED.ts`, r.table)

	_, err := r.db.ExecContext(ctx, query, history.PlanID, history.ActualQty, history.Timestamp.UTC())
	return err
}
