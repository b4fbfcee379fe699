package storage

import (
	"context"
	"sync"

	"github.com/stellar-expert/relgraph/pkg/graph"
)

// MemoryStore keeps snapshots in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]*graph.Snapshot
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]*graph.Snapshot)}
}

func (m *MemoryStore) Save(ctx context.Context, snap *graph.Snapshot) (string, error) {
	c, err := prepare(snap)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[c.ID] = c
	return c.ID, nil
}

func (m *MemoryStore) Load(ctx context.Context, id string) (*graph.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.snaps[id]
	if !ok {
		return nil, notFound(id)
	}
	return clone(s), nil
}

func (m *MemoryStore) List(ctx context.Context, limit int) ([]Summary, error) {
	m.mu.RLock()
	sums := make([]Summary, 0, len(m.snaps))
	for _, s := range m.snaps {
		sums = append(sums, summarize(s))
	}
	m.mu.RUnlock()

	sortNewestFirst(sums)
	return sums[:min(len(sums), listLimit(limit))], nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.snaps[id]; !ok {
		return notFound(id)
	}
	delete(m.snaps, id)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
