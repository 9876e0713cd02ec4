package memory

import (
	"context"
	"sync"

	linestate "coatline/internal/linestate/domain"
)

// Store is an in-memory line state store.
type Store struct {
	mu     sync.Mutex
	states map[string]linestate.State
	err    error
}

// NewStore constructs a store.
func NewStore() *Store {
	return &Store{states: make(map[string]linestate.State)}
}

// Load returns the stored state of a line.
func (s *Store) Load(ctx context.Context, lineID string) (linestate.State, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return linestate.New(lineID), false, s.err
	}
	state, ok := s.states[lineID]
	if !ok {
		return linestate.New(lineID), false, nil
	}
	return state, true, nil
}

// Save replaces the stored state of a line.
func (s *Store) Save(ctx context.Context, state linestate.State) error {
	_ = ctx
	if state.LineID == "" {
		return linestate.ErrEmptyLine
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.states[state.LineID] = state
	return nil
}

// SetErr makes every call fail with err until it is cleared with nil.
func (s *Store) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}
