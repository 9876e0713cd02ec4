package memory

import (
	"context"
	"sort"
	"sync"

	alarms "coatline/internal/alarms/domain"
)

// EventRepository is an in-memory alarm log.
type EventRepository struct {
	mu     sync.Mutex
	nextID int64
	events []alarms.Event
}

// NewEventRepository constructs a repository.
func NewEventRepository() *EventRepository {
	return &EventRepository{}
}

// Insert appends an event.
func (r *EventRepository) Insert(ctx context.Context, event *alarms.Event) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	event.ID = r.nextID
	r.events = append(r.events, *event)
	return nil
}

// ListRecent returns the newest events of a line.
func (r *EventRepository) ListRecent(ctx context.Context, lineNo string, limit int) ([]alarms.Event, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []alarms.Event
	for _, event := range r.events {
		if lineNo == "" || event.LineNo == lineNo {
			out = append(out, event)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len returns the number of stored events.
func (r *EventRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// StateStore is an in-memory dedup state store.
type StateStore struct {
	mu     sync.Mutex
	states map[alarms.Key]alarms.Status
}

// NewStateStore constructs a store.
func NewStateStore() *StateStore {
	return &StateStore{states: make(map[alarms.Key]alarms.Status)}
}

// Get returns the stored status or StatusNone.
func (s *StateStore) Get(ctx context.Context, key alarms.Key) (alarms.Status, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[key], nil
}

// Set stores the status of a key.
func (s *StateStore) Set(ctx context.Context, key alarms.Key, status alarms.Status) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[key] = status
	return nil
}
