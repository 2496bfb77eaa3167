package stats

import (
	"context"
	"sync"
)

type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]Stats
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{rows: make(map[string]Stats)} }

func (m *MemoryStore) GetStats(_ context.Context, username string) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[username]
	if !ok {
		return Stats{Username: username}, nil
	}
	return s, nil
}

func (m *MemoryStore) RecordGame(_ context.Context, username string, won bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.rows[username]
	s.Username = username
	s.TotalGames++
	s.TotalScore += scoreOf(won)
	m.rows[username] = s
	return nil
}

func (m *MemoryStore) Close() error { return nil }
