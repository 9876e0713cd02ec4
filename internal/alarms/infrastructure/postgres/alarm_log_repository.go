package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	alarms "coatline/internal/alarms/domain"
)

const (
	defaultAlarmLogTable = "alarm_logs"
	defaultListLimit     = 100
)

// AlarmLogRepository appends alarm rows.
type AlarmLogRepository struct {
	db    *sql.DB
	table string
}

// NewAlarmLogRepository constructs a repository.
func NewAlarmLogRepository(db *sql.DB) *AlarmLogRepository {
	return &AlarmLogRepository{db: db, table: defaultAlarmLogTable}
}

// Insert appends an alarm row and assigns its id.
func (r *AlarmLogRepository) Insert(ctx context.Context, event *alarms.Event) error {
	if r == nil || r.db == nil {
		return errors.New("alarm log repo: nil db")
	}
	if event == nil {
		return errors.New("alarm log repo: nil event")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	query := fmt.Sprintf(`
INSERT INTO %s (machine, line_no, message, ts)
VALUES ($1, $2, $3, $4)
RETURNING id`, r.table)
	return r.db.QueryRowContext(ctx, query,
		event.Machine,
		event.LineNo,
		event.Message,
		event.Timestamp.UTC(),
	).Scan(&event.ID)
}

// ListRecent returns the newest rows of a line, or of all lines when lineNo is empty.
func (r *AlarmLogRepository) ListRecent(ctx context.Context, lineNo string, limit int) ([]alarms.Event, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alarm log repo: nil db")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := fmt.Sprintf(`
SELECT id, machine, line_no, message, ts
FROM %s
WHERE ($1 = '' OR line_no = $1)
ORDER BY ts DESC, id DESC
LIMIT $2`, r.table)

	rows, err := r.db.QueryContext(ctx, query, lineNo, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alarms.Event
	for rows.Next() {
		var event alarms.Event
		if err := rows.Scan(&event.ID, &event.Machine, &event.LineNo, &event.Message, &event.Timestamp); err != nil {
			return nil, err
		}
		event.Timestamp = event.Timestamp.UTC()
		result = append(result, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
