// Package dimension resolves the school dimension: name in, durable id out,
// creating the row on first reference.
package dimension

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache memoizes resolved school ids in Redis so repeat uploads for a known
// school skip the store lookup. It is advisory only: the store's uniqueness
// constraint stays the correctness mechanism, and schools are never deleted,
// so a cached id cannot go stale.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewCache connects to Redis and verifies the connection.
func NewCache(redisURL string) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewCacheWithClient(client), nil
}

// NewCacheWithClient wraps an existing Redis client.
func NewCacheWithClient(client *redis.Client) *Cache {
	return &Cache{
		client: client,
		prefix: "school:",
		ttl:    24 * time.Hour,
	}
}

func (c *Cache) key(name string) string {
	return c.prefix + name
}

// Get returns the cached id for a school name, if present.
func (c *Cache) Get(ctx context.Context, name string) (int, bool) {
	value, err := c.client.Get(ctx, c.key(name)).Result()
	if err != nil {
		return 0, false
	}
	id, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Put records a resolved id. Failures are ignored; the cache is best effort.
func (c *Cache) Put(ctx context.Context, name string, id int) {
	_ = c.client.Set(ctx, c.key(name), strconv.Itoa(id), c.ttl).Err()
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}
