package docnumber

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/stockledger/internal/platform/cache"
)

// counters outlive their month so late callers in the same period still see them.
const counterTTL = 45 * 24 * time.Hour

// RedisAllocator draws sequences from INCR on a per (prefix, period) key.
type RedisAllocator struct {
	client redis.Cmdable
	now    func() time.Time
}

// RedisOption customises RedisAllocator.
type RedisOption func(*RedisAllocator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) RedisOption {
	return func(a *RedisAllocator) { a.now = now }
}

// NewRedisAllocator builds the allocator.
func NewRedisAllocator(client redis.Cmdable, opts ...RedisOption) *RedisAllocator {
	a := &RedisAllocator{client: client, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Next increments and returns the month's counter for prefix.
func (a *RedisAllocator) Next(ctx context.Context, prefix string) (string, error) {
	if err := validPrefix(prefix); err != nil {
		return "", err
	}
	now := a.now()
	key := cache.Key("docseq", prefix, Period(now))
	seq, err := a.client.Incr(ctx, key).Result()
	if err != nil {
		return "", fmt.Errorf("docnumber: incr %s: %w", key, err)
	}
	if seq == 1 {
		if err := a.client.Expire(ctx, key, counterTTL).Err(); err != nil {
			return "", fmt.Errorf("docnumber: expire %s: %w", key, err)
		}
	}
	return Format(prefix, now, seq), nil
}
