package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps the redis connection used as the consumer's idempotency
// guard: at-least-once delivery means a task id may land on two workers at
// once, and the guard keeps only one of them processing.
type Client struct {
	rdb     *redis.Client
	lockTTL time.Duration
}

func NewClient(ctx context.Context, redisURL string, lockTTL time.Duration) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &Client{rdb: rdb, lockTTL: lockTTL}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Acquire takes the lock for key; false means another worker holds it. The
// TTL bounds the hold so a crashed worker cannot block a task forever.
func (c *Client) Acquire(ctx context.Context, key string) (bool, error) {
	return c.rdb.SetNX(ctx, key, "locked", c.lockTTL).Result()
}

func (c *Client) Release(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
