package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	runhistory "coatline/internal/runhistory/domain"
)

const defaultRunHistoryTable = "machine_run_histories"

// Repository is a Postgres implementation for machine run intervals.
type Repository struct {
	db    *sql.DB
	table string
}

// NewRepository constructs a repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, table: defaultRunHistoryTable}
}

// RecordStatus closes and opens intervals inside one transaction. A
// transaction-scoped advisory lock on the line keeps concurrent writers from
// different processes from interleaving.
func (r *Repository) RecordStatus(ctx context.Context, lineID string, status runhistory.Status, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("run history repo: nil db")
	}
	if lineID == "" {
		return runhistory.ErrEmptyLine
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lineID); err != nil {
		return fmt.Errorf("run history repo: lock line %s: %w", lineID, err)
	}

	// A sample older than the open interval closes it at its own start, so
	// no interval ends before it begins.
	var openStart sql.NullTime
	latestQuery := fmt.Sprintf(`
SELECT MAX(start_at)
FROM %s
WHERE line_code = $1 AND end_at IS NULL`, r.table)
	if err := tx.QueryRowContext(ctx, latestQuery, lineID).Scan(&openStart); err != nil {
		return fmt.Errorf("run history repo: load open interval: %w", err)
	}
	if openStart.Valid && at.Before(openStart.Time) {
		at = openStart.Time
	}

	closeQuery := fmt.Sprintf(`
UPDATE %s
SET end_at = $3
WHERE line_code = $1 AND end_at IS NULL AND status <> $2`, r.table)
	if _, err := tx.ExecContext(ctx, closeQuery, lineID, string(status), at.UTC()); err != nil {
		return fmt.Errorf("run history repo: close open intervals: %w", err)
	}

	openQuery := fmt.Sprintf(`
INSERT INTO %[1]s (line_code, status, start_at)
SELECT $1, $2, $3
WHERE NOT EXISTS (
	SELECT 1 FROM %[1]s WHERE line_code = $1 AND status = $2 AND end_at IS NULL
)`, r.table)
	if _, err := tx.ExecContext(ctx, openQuery, lineID, string(status), at.UTC()); err != nil {
		return fmt.Errorf("run history repo: open interval: %w", err)
	}

	return tx.Commit()
}

// ListIntervals returns intervals overlapping [from, to).
func (r *Repository) ListIntervals(ctx context.Context, lineID string, from, to time.Time) ([]runhistory.Interval, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("run history repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, line_code, status, start_at, end_at
FROM %s
WHERE line_code = $1 AND start_at < $3 AND (end_at IS NULL OR end_at > $2)
ORDER BY start_at`, r.table)

	rows, err := r.db.QueryContext(ctx, query, lineID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []runhistory.Interval
	for rows.Next() {
		var (
			interval runhistory.Interval
			status   string
			endAt    sql.NullTime
		)
		if err := rows.Scan(&interval.ID, &interval.LineID, &status, &interval.Start, &endAt); err != nil {
			return nil, err
		}
		if interval.Status, err = runhistory.ParseStatus(status); err != nil {
			return nil, err
		}
		interval.Start = interval.Start.UTC()
		if endAt.Valid {
			interval.End = endAt.Time.UTC()
		}
		result = append(result, interval)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CountOpen returns the number of open intervals across all lines.
func (r *Repository) CountOpen(ctx context.Context) (int64, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("run history repo: nil db")
	}
	var count int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE end_at IS NULL`, r.table)
	if err := r.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
