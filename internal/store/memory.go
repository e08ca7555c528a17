// Package store provides implementations of the match persistence
// collaborator: an in-memory store used by default and in tests, and a
// postgres-backed store for deployments that need recovery across restarts.
package store

import (
	"context"
	"sync"

	"github.com/gungifree/gungi-server-go/internal/match"
)

// MemoryStore keeps snapshots in process memory. It satisfies the
// collaborator contract but obviously does not survive a restart; it exists
// for tests and single-node development.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]match.Snapshot
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]match.Snapshot)}
}

// SaveMatch stores the latest snapshot of a match.
func (s *MemoryStore) SaveMatch(_ context.Context, snap match.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[snap.ID] = snap
	return nil
}

// LoadMatch returns the stored snapshot for id.
func (s *MemoryStore) LoadMatch(_ context.Context, id string) (match.Snapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[id]
	return snap, ok, nil
}

// ListRecoverable returns every stored match that was not final.
func (s *MemoryStore) ListRecoverable(_ context.Context) ([]match.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []match.Snapshot
	for _, snap := range s.snaps {
		if snap.Status == match.StatusPending || snap.Status == match.StatusActive {
			out = append(out, snap)
		}
	}
	return out, nil
}
