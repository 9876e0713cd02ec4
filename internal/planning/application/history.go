package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	planning "coatline/internal/planning/domain"
)

// HistoryWriter keeps the single actual-quantity row of each plan current.
type HistoryWriter struct {
	repo   planning.HistoryRepository
	logger *log.Logger
}

// NewHistoryWriter constructs a history writer.
func NewHistoryWriter(repo planning.HistoryRepository, logger *log.Logger) (*HistoryWriter, error) {
	if repo == nil {
		return nil, errors.New("planning: nil history repository")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &HistoryWriter{repo: repo, logger: logger}, nil
}

// Record overwrites the plan's actual quantity. A zero quantity is never
// written. A quantity that did not grow is logged but still written, so a
// corrected counter replaces the stored value.
func (w *HistoryWriter) Record(ctx context.Context, planID, qty int64, at time.Time) (bool, error) {
	if planID == 0 {
		return false, fmt.Errorf("%w: missing plan id", planning.ErrInvalidPlan)
	}
	if qty <= 0 {
		return false, nil
	}
	existing, err := w.repo.Get(ctx, planID)
	if err != nil {
		return false, fmt.Errorf("planning: load history %d: %w", planID, err)
	}
	if existing != nil {
		switch {
		case qty < existing.ActualQty:
			w.logger.Printf("planning: history qty decreased: plan=%d stored=%d new=%d", planID, existing.ActualQty, qty)
		case qty == existing.ActualQty:
			w.logger.Printf("planning: history qty unchanged: plan=%d qty=%d", planID, qty)
		}
	}
	if err := w.repo.Upsert(ctx, planning.History{PlanID: planID, ActualQty: qty, Timestamp: at.UTC()}); err != nil {
		return false, fmt.Errorf("planning: upsert history %d: %w", planID, err)
	}
	return true, nil
}
