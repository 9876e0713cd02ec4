package linestate

import (
	"context"
	"math"
	"time"
)

// State is the in-flight counter and baseline record of one line.
type State struct {
	LineID           string
	LastRawCounter   int64
	DailyAccumulated int64
	LastReset        time.Time
	Model            string
	BaselineCounter  int64
	BaselineInstant  time.Time
}

// Store loads and saves line state in the ephemeral cache.
type Store interface {
	// Load returns the cached state and whether any field existed.
	Load(ctx context.Context, lineID string) (State, bool, error)
	Save(ctx context.Context, state State) error
}

// New returns the empty state of a line.
func New(lineID string) State {
	return State{LineID: lineID}
}

// HasBaseline reports whether a model baseline has been recorded.
func (s State) HasBaseline() bool {
	return !s.BaselineInstant.IsZero()
}

// ResetDay clears the daily total when the last reset predates dayStart.
// The raw baseline is cleared too, so the first sample of the day counts in full.
func (s *State) ResetDay(dayStart, now time.Time) bool {
	if !s.LastReset.Before(dayStart) {
		return false
	}
	s.DailyAccumulated = 0
	s.LastRawCounter = 0
	s.LastReset = now
	return true
}

// Apply folds a raw machine counter into the daily total and returns the
// increment. A drop below the last raw value is a counter reset and counts
// raw in full. A zero reading never replaces the stored raw value.
func (s *State) Apply(raw int64) int64 {
	if raw < 0 {
		return 0
	}
	var delta int64
	if raw >= s.LastRawCounter {
		delta = raw - s.LastRawCounter
	} else {
		delta = raw
	}
	s.DailyAccumulated += delta
	if raw != 0 {
		s.LastRawCounter = raw
	}
	return delta
}

// UpdateBaseline starts a new model run when the line is running a product
// other than the recorded one, or has no baseline yet.
func (s *State) UpdateBaseline(running bool, product string, raw int64, now time.Time) bool {
	if !running {
		return false
	}
	if s.HasBaseline() && s.Model == product {
		return false
	}
	s.Model = product
	s.BaselineCounter = raw
	s.BaselineInstant = now
	return true
}

// ModelRunCount returns the pieces produced since the model baseline. A raw
// value below the baseline means the counter was reset and raw is the count.
func (s State) ModelRunCount(raw int64) int64 {
	if raw < s.BaselineCounter {
		return raw
	}
	return raw - s.BaselineCounter
}

// HourlyThroughput normalizes a model-run count to pieces per running hour.
// Runs of at most an hour report the count itself.
func HourlyThroughput(count int64, runningMinutes float64) int64 {
	if runningMinutes <= 60 {
		return count
	}
	return int64(math.Round(float64(count) * 60 / runningMinutes))
}
