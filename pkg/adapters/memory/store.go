package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bert-systems/canvas/pkg/domain"
)

// Store implements ports.OutboxStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]domain.OutboxEntry
	mu   sync.RWMutex
}

// NewStore creates a new in-memory outbox store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]domain.OutboxEntry),
	}
}

// Save persists the entry in memory.
func (s *Store) Save(ctx context.Context, entry domain.OutboxEntry) error {
	// Copy so the caller can keep mutating its patch.
	entry.Patch = entry.Patch.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[entry.NodeID] = entry
	return nil
}

// Load retrieves the entry for a node.
func (s *Store) Load(ctx context.Context, nodeID string) (domain.OutboxEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.data[nodeID]
	if !ok {
		return domain.OutboxEntry{}, domain.ErrOutboxEntryNotFound
	}
	entry.Patch = entry.Patch.Clone()
	return entry, nil
}

// Delete removes the entry.
func (s *Store) Delete(ctx context.Context, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, nodeID)
	return nil
}

// List returns all entries ordered by node id.
func (s *Store) List(ctx context.Context) ([]domain.OutboxEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.OutboxEntry, 0, len(s.data))
	for _, id := range slices.Sorted(maps.Keys(s.data)) {
		e := s.data[id]
		e.Patch = e.Patch.Clone()
		out = append(out, e)
	}
	return out, nil
}

// Due returns live entries ready for a retry, oldest first.
func (s *Store) Due(ctx context.Context, now time.Time, limit int) ([]domain.OutboxEntry, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.OutboxEntry, 0, len(all))
	for _, e := range all {
		if !e.DeadLetter && !e.NextAttempt.After(now) {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b domain.OutboxEntry) int {
		return cmp.Or(a.NextAttempt.Compare(b.NextAttempt), strings.Compare(a.NodeID, b.NodeID))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
