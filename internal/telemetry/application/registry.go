package application

import (
	"sort"
	"sync"

	telemetry "coatline/internal/telemetry/domain"
)

// Registry holds the latest aggregate of every line for republishing.
type Registry struct {
	mu     sync.RWMutex
	latest map[string]telemetry.Aggregate
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{latest: make(map[string]telemetry.Aggregate)}
}

// Put replaces the snapshot of the aggregate's line.
func (r *Registry) Put(agg telemetry.Aggregate) {
	if agg.Line == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latest[agg.Line] = agg
}

// Get returns the snapshot of a line.
func (r *Registry) Get(line string) (telemetry.Aggregate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agg, ok := r.latest[line]
	return agg, ok
}

// All returns every snapshot ordered by line.
func (r *Registry) All() []telemetry.Aggregate {
	r.mu.RLock()
	out := make([]telemetry.Aggregate, 0, len(r.latest))
	for _, agg := range r.latest {
		out = append(out, agg)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Line < out[j].Line })
	return out
}
