// Package rediscache persists query records in Redis so several coinwatch
// processes share one warm cache.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/derickschaefer/coinwatch/internal/query"
)

const defaultPrefix = "coinwatch:query:"

// Options configures a Cache.
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration // expiry of each record; zero keeps records forever
	Prefix   string
}

// Cache implements query.Persister on Redis.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ query.Persister = (*Cache)(nil)

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, opts Options) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis %s: %w", opts.Addr, err)
	}
	return newWithClient(client, opts), nil
}

func newWithClient(client *redis.Client, opts Options) *Cache {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Cache{client: client, prefix: prefix, ttl: opts.TTL}
}

// Load fetches the record for key.
func (c *Cache) Load(ctx context.Context, key string) (query.Record, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return query.Record{}, false, nil
	}
	if err != nil {
		return query.Record{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	var rec query.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return query.Record{}, false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return rec, true, nil
}

// Save writes the record for key with the configured expiry.
func (c *Cache) Save(ctx context.Context, key string, rec query.Record) error {
	rec.Key = key
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	return c.client.Set(ctx, c.prefix+key, data, c.ttl).Err()
}

// Keys lists every stored cache key, without the prefix.
func (c *Cache) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val()[len(c.prefix):])
	}
	return keys, iter.Err()
}

// Clear deletes every record under the prefix and returns the count.
func (c *Cache) Clear(ctx context.Context) (int, error) {
	keys, err := c.Keys(ctx)
	if err != nil || len(keys) == 0 {
		return 0, err
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.prefix + k
	}
	n, err := c.client.Del(ctx, full...).Result()
	return int(n), err
}

// Close releases the connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}
