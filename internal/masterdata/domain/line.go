package masterdata

import (
	"context"
	"errors"
	"time"
)

// Line is a coating line known to the plant.
type Line struct {
	ID        int64
	Code      string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks line invariants.
func (l Line) Validate() error {
	if l.Code == "" {
		return errors.New("line: empty code")
	}
	if l.Name == "" {
		return errors.New("line: empty name")
	}
	return nil
}

// Product is a product model that runs on a line.
type Product struct {
	ID        int64
	LineID    int64
	Name      string
	CreatedAt time.Time
}

// Validate checks product invariants.
func (p Product) Validate() error {
	if p.LineID == 0 {
		return errors.New("product: empty line id")
	}
	if p.Name == "" {
		return errors.New("product: empty name")
	}
	return nil
}

// LineRepository looks up lines.
type LineRepository interface {
	// FindByName matches either the line code or its display name.
	FindByName(ctx context.Context, name string) (*Line, error)
}

// ProductRepository manages product master rows.
type ProductRepository interface {
	FindByName(ctx context.Context, lineID int64, name string) (*Product, error)
	// Create inserts a product and returns ErrDuplicateProduct on a uniqueness conflict.
	Create(ctx context.Context, product *Product) error
}
