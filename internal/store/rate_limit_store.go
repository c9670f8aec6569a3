package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimitStore keeps fixed-window hit counters in Redis.
type RateLimitStore struct {
	rdb *redis.Client
}

func NewRateLimitStore(rdb *redis.Client) *RateLimitStore {
	return &RateLimitStore{rdb: rdb}
}

func (s *RateLimitStore) key(id string) string { return "ratelimit:" + id }

// Hit increments the counter of id and returns the new value. The first hit
// of a window sets its expiry.
func (s *RateLimitStore) Hit(ctx context.Context, id string, window time.Duration) (int64, error) {
	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, s.key(id))
	pipe.ExpireNX(ctx, s.key(id), window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
