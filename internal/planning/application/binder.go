package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	masterdata "coatline/internal/masterdata/domain"
	"coatline/internal/observability/metrics"
	planning "coatline/internal/planning/domain"
)

// DayResolver maps an instant to its production date.
type DayResolver interface {
	EffectiveDate(t time.Time) time.Time
}

// Binding is the resolved plan of a telemetry sample.
type Binding struct {
	Line      masterdata.Line
	ProductID int64
	Plan      planning.Plan
	Created   bool
}

// Binder resolves, and when missing creates, the production plan a sample belongs to.
type Binder struct {
	lines    masterdata.LineRepository
	products masterdata.ProductRepository
	plans    planning.PlanRepository
	targets  planning.TargetRepository
	days     DayResolver
	logger   *log.Logger
	group    singleflight.Group
}

// BinderOption customizes the binder.
type BinderOption func(*Binder)

// WithTargets enables daily-target plan quantities for auto-registered plans.
func WithTargets(targets planning.TargetRepository) BinderOption {
	return func(b *Binder) {
		b.targets = targets
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) BinderOption {
	return func(b *Binder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBinder constructs a plan binder.
func NewBinder(lines masterdata.LineRepository, products masterdata.ProductRepository, plans planning.PlanRepository, days DayResolver, opts ...BinderOption) (*Binder, error) {
	if lines == nil || products == nil || plans == nil {
		return nil, errors.New("planning: nil repository")
	}
	if days == nil {
		return nil, errors.New("planning: nil day resolver")
	}
	binder := &Binder{
		lines:    lines,
		products: products,
		plans:    plans,
		days:     days,
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(binder)
	}
	return binder, nil
}

// Resolve returns the plan for (line, product, production day of at),
// creating it when absent. Concurrent calls for the same key inside this
// process share one lookup; calls racing from other processes converge
// through the store's uniqueness rule.
func (b *Binder) Resolve(ctx context.Context, lineName, productName string, at time.Time) (*Binding, error) {
	productName = strings.TrimSpace(productName)
	if productName == "" {
		return nil, planning.ErrEmptyProduct
	}
	planDate := b.days.EffectiveDate(at)
	key := lineName + "|" + productName + "|" + planning.DateKey(planDate)

	value, err, _ := b.group.Do(key, func() (any, error) {
		return b.resolve(ctx, lineName, productName, planDate)
	})
	if err != nil {
		return nil, err
	}
	binding := *value.(*Binding)
	return &binding, nil
}

func (b *Binder) resolve(ctx context.Context, lineName, productName string, planDate time.Time) (*Binding, error) {
	line, err := b.lines.FindByName(ctx, lineName)
	if err != nil {
		return nil, fmt.Errorf("planning: find line %s: %w", lineName, err)
	}
	if line == nil {
		return nil, fmt.Errorf("%w: %s", masterdata.ErrLineNotFound, lineName)
	}

	product, err := b.products.FindByName(ctx, line.ID, productName)
	if err != nil {
		return nil, fmt.Errorf("planning: find product %s: %w", productName, err)
	}
	if product != nil {
		plan, err := b.plans.Find(ctx, line.ID, product.ID, planDate)
		if err != nil {
			return nil, fmt.Errorf("planning: find plan: %w", err)
		}
		if plan != nil {
			return &Binding{Line: *line, ProductID: product.ID, Plan: *plan}, nil
		}
	}
	return b.AutoRegister(ctx, *line, productName, planDate)
}

// AutoRegister resolves or creates the product row, then inserts the plan.
// A uniqueness conflict means another creator won; the existing row is
// re-fetched and returned instead of failing.
func (b *Binder) AutoRegister(ctx context.Context, line masterdata.Line, productName string, planDate time.Time) (*Binding, error) {
	product, err := b.ensureProduct(ctx, line.ID, productName)
	if err != nil {
		return nil, err
	}

	plan := &planning.Plan{
		LineID:    line.ID,
		ProductID: product.ID,
		PlanDate:  planDate,
		PlanQty:   b.dailyTarget(ctx, line),
	}
	err = b.plans.Insert(ctx, plan)
	if errors.Is(err, planning.ErrDuplicatePlan) {
		existing, findErr := b.plans.Find(ctx, line.ID, product.ID, planDate)
		if findErr != nil {
			return nil, fmt.Errorf("planning: refetch plan after conflict: %w", findErr)
		}
		if existing == nil {
			return nil, fmt.Errorf("%w: line=%s product=%s date=%s", planning.ErrPlanNotFound, line.Code, productName, planning.DateKey(planDate))
		}
		return &Binding{Line: line, ProductID: product.ID, Plan: *existing}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("planning: insert plan: %w", err)
	}

	metrics.IncPlanAutoRegistered(line.Code)
	b.logger.Printf("planning: auto-registered plan id=%d line=%s product=%s date=%s qty=%d",
		plan.ID, line.Code, productName, planning.DateKey(planDate), plan.PlanQty)
	return &Binding{Line: line, ProductID: product.ID, Plan: *plan, Created: true}, nil
}

func (b *Binder) ensureProduct(ctx context.Context, lineID int64, name string) (*masterdata.Product, error) {
	product, err := b.products.FindByName(ctx, lineID, name)
	if err != nil {
		return nil, fmt.Errorf("planning: find product %s: %w", name, err)
	}
	if product != nil {
		return product, nil
	}
	product = &masterdata.Product{LineID: lineID, Name: name}
	err = b.products.Create(ctx, product)
	if errors.Is(err, masterdata.ErrDuplicateProduct) {
		existing, findErr := b.products.FindByName(ctx, lineID, name)
		if findErr != nil {
			return nil, fmt.Errorf("planning: refetch product after conflict: %w", findErr)
		}
		if existing == nil {
			return nil, fmt.Errorf("planning: product %s vanished after conflict", name)
		}
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("planning: create product %s: %w", name, err)
	}
	return product, nil
}

func (b *Binder) dailyTarget(ctx context.Context, line masterdata.Line) int64 {
	if b.targets == nil {
		return 0
	}
	hourly, err := b.targets.HourlyTargets(ctx, line.ID)
	if err != nil {
		b.logger.Printf("planning: target lookup failed: line=%s err=%v", line.Code, err)
		return 0
	}
	return planning.DailyTarget(hourly)
}
