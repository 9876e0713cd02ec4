package application

import (
	"context"
	"errors"
	"log"
	"time"

	runhistory "coatline/internal/runhistory/domain"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Tracker records machine status changes and summarizes runtime per status.
type Tracker struct {
	repo   runhistory.Repository
	clock  Clock
	logger *log.Logger
}

// TrackerOption customizes the tracker.
type TrackerOption func(*Tracker)

// WithClock assigns a clock.
func WithClock(clock Clock) TrackerOption {
	return func(t *Tracker) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) TrackerOption {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewTracker constructs a run-history tracker.
func NewTracker(repo runhistory.Repository, opts ...TrackerOption) (*Tracker, error) {
	if repo == nil {
		return nil, errors.New("runhistory: nil repository")
	}
	tracker := &Tracker{repo: repo, clock: systemClock{}, logger: log.Default()}
	for _, opt := range opts {
		opt(tracker)
	}
	return tracker, nil
}

// RecordStatus stores a status observation for the line.
func (t *Tracker) RecordStatus(ctx context.Context, lineID string, status runhistory.Status, at time.Time) error {
	if lineID == "" {
		return runhistory.ErrEmptyLine
	}
	if _, err := runhistory.ParseStatus(string(status)); err != nil {
		return err
	}
	if at.IsZero() {
		at = t.clock.Now()
	}
	return t.repo.RecordStatus(ctx, lineID, status, at)
}

// SummarizeRuntime returns minutes per status inside [windowStart, windowEnd).
func (t *Tracker) SummarizeRuntime(ctx context.Context, lineID string, windowStart, windowEnd time.Time) (runhistory.Summary, error) {
	if lineID == "" {
		return runhistory.Summary{}, runhistory.ErrEmptyLine
	}
	intervals, err := t.repo.ListIntervals(ctx, lineID, windowStart, windowEnd)
	if err != nil {
		return runhistory.Summary{}, err
	}
	open := 0
	for _, interval := range intervals {
		if interval.Open() {
			open++
		}
	}
	if open > 1 {
		t.logger.Printf("runhistory: %v: line=%s open=%d", runhistory.ErrMultipleOpen, lineID, open)
	}
	return runhistory.Summarize(intervals, windowStart, windowEnd, t.clock.Now()), nil
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
