package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	runhistory "coatline/internal/runhistory/domain"
)

// Repository is an in-memory run-history store.
type Repository struct {
	mu        sync.Mutex
	nextID    int64
	intervals map[string][]runhistory.Interval
}

// NewRepository constructs a repository.
func NewRepository() *Repository {
	return &Repository{intervals: make(map[string][]runhistory.Interval)}
}

// RecordStatus closes differing open intervals and opens a new one if needed.
func (r *Repository) RecordStatus(ctx context.Context, lineID string, status runhistory.Status, at time.Time) error {
	_ = ctx
	if lineID == "" {
		return runhistory.ErrEmptyLine
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rows := r.intervals[lineID]
	for _, row := range rows {
		if row.Open() && at.Before(row.Start) {
			at = row.Start
		}
	}
	sameOpen := false
	for i := range rows {
		if !rows[i].Open() {
			continue
		}
		if rows[i].Status == status {
			sameOpen = true
			continue
		}
		rows[i].End = at
	}
	if !sameOpen {
		r.nextID++
		rows = append(rows, runhistory.Interval{ID: r.nextID, LineID: lineID, Status: status, Start: at})
	}
	r.intervals[lineID] = rows
	return nil
}

// ListIntervals returns intervals overlapping [from, to).
func (r *Repository) ListIntervals(ctx context.Context, lineID string, from, to time.Time) ([]runhistory.Interval, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []runhistory.Interval
	for _, interval := range r.intervals[lineID] {
		if !interval.Start.Before(to) {
			continue
		}
		if !interval.Open() && !interval.End.After(from) {
			continue
		}
		out = append(out, interval)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// OpenCount returns the number of open intervals of a line.
func (r *Repository) OpenCount(lineID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, interval := range r.intervals[lineID] {
		if interval.Open() {
			count++
		}
	}
	return count
}
