package app

import (
	"context"
	"sync"

	"github.com/jaminalder/codex-greed/internal/domain"
)

// Store holds at most one pending play per channel.
type Store interface {
	Get(ctx context.Context, channel string) (domain.PlayRecord, bool, error)
	Put(ctx context.Context, channel string, rec domain.PlayRecord) error
	Delete(ctx context.Context, channel string) error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.Mutex
	plays map[string]domain.PlayRecord
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{plays: make(map[string]domain.PlayRecord)}
}

func (m *MemoryStore) Get(_ context.Context, channel string) (domain.PlayRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.plays[channel]
	return rec, ok, nil
}

func (m *MemoryStore) Put(_ context.Context, channel string, rec domain.PlayRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plays[channel] = rec
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.plays, channel)
	return nil
}

// Len returns the number of channels with a pending play.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.plays)
}
