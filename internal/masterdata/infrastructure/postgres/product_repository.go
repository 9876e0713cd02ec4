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

const defaultProductsTable = "products"

// ProductRepository is a Postgres implementation for products.
type ProductRepository struct {
	db    pg.DBTX
	table string
}

// NewProductRepository constructs a repository.
func NewProductRepository(db pg.DBTX, opts ...ProductOption) *ProductRepository {
	repo := &ProductRepository{db: db, table: defaultProductsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// ProductOption configures the repository.
type ProductOption func(*ProductRepository)

// WithProductTable overrides the default table name.
func WithProductTable(table string) ProductOption {
	return func(repo *ProductRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// FindByName loads a product of a line by name.
func (r *ProductRepository) FindByName(ctx context.Context, lineID int64, name string) (*masterdata.Product, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("product repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, line_id, name, created_at
FROM %s
WHERE line_id = $1 AND name = $2
LIMIT 1`, r.table)

	var product masterdata.Product
	if err := r.db.QueryRowContext(ctx, query, lineID, name).Scan(
		&product.ID,
		&product.LineID,
		&product.Name,
		&product.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	product.CreatedAt = product.CreatedAt.UTC()
	return &product, nil
}

// Create inserts a product row and fills its id.
func (r *ProductRepository) Create(ctx context.Context, product *masterdata.Product) error {
	if r == nil || r.db == nil {
		return errors.New("product repo: nil db")
	}
	if product == nil {
		return errors.New("product repo: nil product")
	}
	if err := product.Validate(); err != nil {
		return err
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}

	query := fmt.Sprintf(`
INSERT INTO %s (line_id, name, created_at)
VALUES ($1, $2, $3)
RETURNING id`, r.table)

	if err := r.db.QueryRowContext(ctx, query, product.LineID, product.Name, product.CreatedAt).Scan(&product.ID); err != nil {
		if pg.IsUniqueViolation(err) {
			return masterdata.ErrDuplicateProduct
		}
		return err
	}
	return nil
}
