package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	masterdata "coatline/internal/masterdata/domain"
	"coatline/internal/storage/pg"
)

const defaultLinesTable = "lines"

// LineRepository is a Postgres implementation for lines.
type LineRepository struct {
	db    pg.DBTX
	table string
}

// NewLineRepository constructs a repository.
func NewLineRepository(db pg.DBTX, opts ...LineOption) *LineRepository {
	repo := &LineRepository{db: db, table: defaultLinesTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// LineOption configures the repository.
type LineOption func(*LineRepository)

// WithLineTable overrides the default table name.
func WithLineTable(table string) LineOption {
	return func(repo *LineRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// FindByName loads a line by code or display name.
func (r *LineRepository) FindByName(ctx context.Context, name string) (*masterdata.Line, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("line repo: nil db")
	}
	if name == "" {
		return nil, errors.New("line repo: empty name")
	}

	query := fmt.Sprintf(`
SELECT id, code, name, created_at, updated_at
FROM %s
WHERE code = $1 OR name = $1
ORDER BY (code = $1) DESC
LIMIT 1`, r.table)

	var line masterdata.Line
	if err := r.db.QueryRowContext(ctx, query, name).Scan(
		&line.ID,
		&line.Code,
		&line.Name,
		&line.CreatedAt,
		&line.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	line.CreatedAt = line.CreatedAt.UTC()
	line.UpdatedAt = line.UpdatedAt.UTC()
	return &line, nil
}

// Save inserts the line or refreshes its display name, keyed by code, and
// sets line.ID.
func (r *LineRepository) Save(ctx context.Context, line *masterdata.Line) error {
	if r == nil || r.db == nil {
		return errors.New("line repo: nil db")
	}
	if line == nil {
		return errors.New("line repo: nil line")
	}
	if err := line.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if line.CreatedAt.IsZero() {
		line.CreatedAt = now
	}
	line.UpdatedAt = now

	query := fmt.Sprintf(`
INSERT INTO %s (code, name, created_at, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (code)
DO UPDATE SET
	name = EXCLUDED.name,
	updated_at = EXCLUDED.updated_at
RETURNING id`, r.table)

	return r.db.QueryRowContext(ctx, query, line.Code, line.Name, line.CreatedAt, line.UpdatedAt).Scan(&line.ID)
}
