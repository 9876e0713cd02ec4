package postgres

import (
	"context"
	"errors"
	"fmt"

	shift "coatline/internal/shift/domain"
	"coatline/internal/storage/pg"
)

const defaultShiftWindowsTable = "shift_windows"

// WindowRepository is a Postgres implementation for shift windows.
type WindowRepository struct {
	db    pg.DBTX
	table string
}

// NewWindowRepository constructs a repository.
func NewWindowRepository(db pg.DBTX) *WindowRepository {
	return &WindowRepository{db: db, table: defaultShiftWindowsTable}
}

// ListWindows loads every configured window ordered by schedule and start time.
func (r *WindowRepository) ListWindows(ctx context.Context) ([]shift.Window, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("shift window repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT schedule_type, code, to_char(start_time, 'HH24:MI:SS'), to_char(end_time, 'HH24:MI:SS'), crosses_midnight
FROM %s
ORDER BY schedule_type, start_time`, r.table)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var windows []shift.Window
	for rows.Next() {
		var (
			scheduleType string
			window       shift.Window
			start, end   string
		)
		if err := rows.Scan(&scheduleType, &window.Code, &start, &end, &window.CrossesMidnight); err != nil {
			return nil, err
		}
		if window.Schedule, err = shift.ParseScheduleType(scheduleType); err != nil {
			return nil, err
		}
		if window.Start, err = shift.ParseClockTime(start); err != nil {
			return nil, err
		}
		if window.End, err = shift.ParseClockTime(end); err != nil {
			return nil, err
		}
		windows = append(windows, window)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return windows, nil
}

// CountWindows returns the number of stored windows.
func (r *WindowRepository) CountWindows(ctx context.Context) (int64, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("shift window repo: nil db")
	}
	var count int64
	err := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, r.table)).Scan(&count)
	return count, err
}

// SaveWindow inserts or replaces a window keyed by schedule type and code.
func (r *WindowRepository) SaveWindow(ctx context.Context, window shift.Window) error {
	if r == nil || r.db == nil {
		return errors.New("shift window repo: nil db")
	}
	if err := window.Validate(); err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (schedule_type, code, start_time, end_time, crosses_midnight)
VALUES ($1, $2, $3::time, $4::time, $5)
ON CONFLICT (schedule_type, code)
DO UPDATE SET
	start_time = EXCLUDED.start_time,
	end_time = EXCLUDED.end_time,
	crosses_midnight = EXCLUDED.crosses_midnight`, r.table)

	_, err := r.db.ExecContext(ctx, query, string(window.Schedule), window.Code, window.Start.String(), window.End.String(), window.CrossesMidnight)
	return err
}
