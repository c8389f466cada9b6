package ports_test

import (
	"context"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bert-systems/canvas/pkg/domain"
	"github.com/bert-systems/canvas/pkg/ports"
)

// MockStore is a minimal in-memory OutboxStore used to check the contract suite itself.
type MockStore struct {
	mu   sync.Mutex
	data map[string]domain.OutboxEntry
}

func NewMockStore() *MockStore {
	return &MockStore{data: make(map[string]domain.OutboxEntry)}
}

func (m *MockStore) Save(ctx context.Context, entry domain.OutboxEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[entry.NodeID] = entry
	return nil
}

func (m *MockStore) Load(ctx context.Context, nodeID string) (domain.OutboxEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data[nodeID]
	if !ok {
		return domain.OutboxEntry{}, domain.ErrOutboxEntryNotFound
	}
	return e, nil
}

func (m *MockStore) Delete(ctx context.Context, nodeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, nodeID)
	return nil
}

func (m *MockStore) List(ctx context.Context) ([]domain.OutboxEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.OutboxEntry
	for _, e := range m.data {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b domain.OutboxEntry) int { return strings.Compare(a.NodeID, b.NodeID) })
	return out, nil
}

func (m *MockStore) Due(ctx context.Context, now time.Time, limit int) ([]domain.OutboxEntry, error) {
	all, _ := m.List(ctx)
	var out []domain.OutboxEntry
	for _, e := range all {
		if !e.DeadLetter && !e.NextAttempt.After(now) {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(a, b domain.OutboxEntry) int { return a.NextAttempt.Compare(b.NextAttempt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func TestOutboxStore_Contract(t *testing.T) {
	ports.RunOutboxStoreContract(t, NewMockStore())
}
