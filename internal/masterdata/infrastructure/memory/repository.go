package memory

import (
	"context"
	"sync"
	"time"

	masterdata "coatline/internal/masterdata/domain"
)

// Repository is an in-memory line and product store.
type Repository struct {
	mu       sync.RWMutex
	nextID   int64
	lines    map[string]masterdata.Line
	products map[int64]map[string]masterdata.Product
}

// NewRepository constructs a repository seeded with lines.
func NewRepository(lines ...masterdata.Line) *Repository {
	repo := &Repository{
		lines:    make(map[string]masterdata.Line),
		products: make(map[int64]map[string]masterdata.Product),
	}
	for _, line := range lines {
		repo.AddLine(line)
	}
	return repo
}

// AddLine registers a line; a zero id gets one assigned.
func (r *Repository) AddLine(line masterdata.Line) masterdata.Line {
	r.mu.Lock()
	defer r.mu.Unlock()
	if line.ID == 0 {
		r.nextID++
		line.ID = r.nextID
	}
	r.lines[line.Code] = line
	return line
}

// FindByName matches the line code first, then the display name.
func (r *Repository) FindByName(ctx context.Context, name string) (*masterdata.Line, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	if line, ok := r.lines[name]; ok {
		return &line, nil
	}
	for _, line := range r.lines {
		if line.Name == name {
			l := line
			return &l, nil
		}
	}
	return nil, nil
}

// ProductRepository exposes the product half of the store.
func (r *Repository) ProductRepository() *ProductRepository {
	return &ProductRepository{repo: r}
}

// ProductRepository is the in-memory product store view.
type ProductRepository struct {
	repo *Repository
}

// FindByName loads a product of a line by name.
func (p *ProductRepository) FindByName(ctx context.Context, lineID int64, name string) (*masterdata.Product, error) {
	_ = ctx
	p.repo.mu.RLock()
	defer p.repo.mu.RUnlock()
	product, ok := p.repo.products[lineID][name]
	if !ok {
		return nil, nil
	}
	return &product, nil
}

// Create inserts a product, reporting duplicates like the database would.
func (p *ProductRepository) Create(ctx context.Context, product *masterdata.Product) error {
	_ = ctx
	if err := product.Validate(); err != nil {
		return err
	}
	p.repo.mu.Lock()
	defer p.repo.mu.Unlock()
	byName := p.repo.products[product.LineID]
	if byName == nil {
		byName = make(map[string]masterdata.Product)
		p.repo.products[product.LineID] = byName
	}
	if _, exists := byName[product.Name]; exists {
		return masterdata.ErrDuplicateProduct
	}
	p.repo.nextID++
	product.ID = p.repo.nextID
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	byName[product.Name] = *product
	return nil
}
