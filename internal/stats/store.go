// Package stats persists per-username game totals.
package stats

import (
	"context"
	"fmt"
	"strings"
)

// Stats are cumulative totals. A username that never played reads as zeros.
type Stats struct {
	Username   string
	TotalGames int
	TotalScore int
}

// Store is safe for concurrent use; RecordGame increments atomically so two
// sessions sharing a username cannot lose updates.
type Store interface {
	GetStats(ctx context.Context, username string) (Stats, error)
	// RecordGame adds one game, and one point when won.
	RecordGame(ctx context.Context, username string, won bool) error
	Close() error
}

// Open builds the store named by backend ("memory", "redis" or "postgres").
func Open(ctx context.Context, backend, url string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStoreURL(ctx, url)
	case "postgres":
		s, err := NewPostgresStore(ctx, url)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown stats backend %q", backend)
	}
}

func scoreOf(won bool) int {
	if won {
		return 1
	}
	return 0
}
