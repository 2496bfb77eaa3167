package stats

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldGames = "games"
	fieldScore = "score"
)

// RedisStore keeps one hash per user: stats:user:<name> {games, score}.
type RedisStore struct {
	rdb   *redis.Client
	owned bool
}

func NewRedisStore(rdb *redis.Client) *RedisStore { return &RedisStore{rdb: rdb} }

// NewRedisStoreURL parses a redis:// URL and pings the server.
func NewRedisStoreURL(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{rdb: rdb, owned: true}, nil
}

func (s *RedisStore) keyUser(username string) string { return "stats:user:" + username }

func (s *RedisStore) GetStats(ctx context.Context, username string) (Stats, error) {
	vals, err := s.rdb.HMGet(ctx, s.keyUser(username), fieldGames, fieldScore).Result()
	if err != nil {
		return Stats{}, err
	}
	out := Stats{Username: username}
	out.TotalGames = atoiAny(vals[0])
	out.TotalScore = atoiAny(vals[1])
	return out, nil
}

func (s *RedisStore) RecordGame(ctx context.Context, username string, won bool) error {
	pipe := s.rdb.TxPipeline()
	pipe.HIncrBy(ctx, s.keyUser(username), fieldGames, 1)
	pipe.HIncrBy(ctx, s.keyUser(username), fieldScore, int64(scoreOf(won)))
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.rdb.Close()
}

func atoiAny(v any) int {
	str, ok := v.(string)
	if !ok {
		return 0
	}
	n, _ := strconv.Atoi(str)
	return n
}
