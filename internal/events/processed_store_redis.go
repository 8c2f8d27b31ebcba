package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "bridge:processed:"

// RedisSet is a ProcessedSet backed by Redis. Entries age out via TTL, which
// bounds growth across process restarts.
type RedisSet struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSet creates a Redis-backed set. A non-positive ttl means entries
// never expire.
func NewRedisSet(client *redis.Client, ttl time.Duration) *RedisSet {
	if client == nil {
		panic("events: redis client required")
	}
	return &RedisSet{client: client, ttl: ttl}
}

// MarkIfNew implements ProcessedSet via SET NX, which is atomic server-side.
func (s *RedisSet) MarkIfNew(ctx context.Context, id string) (bool, error) {
	recorded, err := s.client.SetNX(ctx, redisKeyPrefix+id, "1", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("events: redis mark processed: %w", err)
	}
	return recorded, nil
}
