package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisWindow is a fixed-window limiter whose counters live in Redis, so all
// replicas behind a load balancer share one budget per client.
type RedisWindow struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

func NewRedisWindow(client redis.UniversalClient, prefix string, limit int, window time.Duration) *RedisWindow {
	if prefix == "" {
		prefix = "frontend:rl:"
	}
	return &RedisWindow{client: client, prefix: prefix, limit: limit, window: window}
}

func (r *RedisWindow) Allow(ctx context.Context, key string) (Decision, error) {
	k := r.prefix + key
	var incr *redis.IntCmd
	var pttl *redis.DurationCmd
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		pttl = p.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	count, ttl := incr.Val(), pttl.Val()

	// No TTL means either the first hit of a window or a lost expire from an
	// earlier call; either way the window starts now.
	if ttl < 0 {
		if err := r.client.PExpire(ctx, k, r.window).Err(); err != nil {
			return Decision{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		ttl = r.window
	}

	var retry time.Duration
	if int(count) > r.limit {
		retry = ttl
	}
	return decide(int(count), r.limit, retry), nil
}
