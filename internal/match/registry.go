package match

import (
	"sort"
	"sync"
)

// Registry indexes live matches by identifier. It has its own lock,
// distinct from the per-match mutexes, and is the single lookup structure
// shared by the lifecycle manager and the transport layer.
type Registry struct {
	mu      sync.RWMutex
	matches map[string]*Match
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{matches: make(map[string]*Match)}
}

// Register adds a match. Identifier collisions are a programming defect
// (identifiers are 128-bit random) and are surfaced as an error rather than
// silently overwriting.
func (r *Registry) Register(m *Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.matches[m.ID]; exists {
		return ErrDuplicateID
	}
	r.matches[m.ID] = m
	return nil
}

// Get returns the match with the given identifier.
func (r *Registry) Get(id string) (*Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.matches[id]
	return m, ok
}

// Remove evicts a match from the registry.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.matches, id)
}

// Count returns the number of registered matches.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.matches)
}

// ListActive returns up to limit active matches, ordered by creation time
// for stable output. limit <= 0 returns all.
func (r *Registry) ListActive(limit int) []*Match {
	r.mu.RLock()
	var active []*Match
	for _, m := range r.matches {
		if m.GetStatus() == StatusActive {
			active = append(active, m)
		}
	}
	r.mu.RUnlock()

	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})
	if limit > 0 && len(active) > limit {
		active = active[:limit]
	}
	return active
}
