package macro

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"SectorPulse/internal/model"
)

// Cache stores sentiment snapshots by analysis date so reruns of the same
// day do not call the model again.
type Cache interface {
	Get(ctx context.Context, date string) (*model.MacroSentiment, bool, error)
	Set(ctx context.Context, date string, s *model.MacroSentiment) error
}

const cacheKeyPrefix = "sectorpulse:macro:"

// RedisCache is a Cache backed by Redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to addr and verifies the connection.
func NewRedisCache(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &RedisCache{client: client, ttl: ttl}, nil
}

func cacheKey(date string) string { return cacheKeyPrefix + date }

// Get returns the cached snapshot for date. A miss is (nil, false, nil).
func (c *RedisCache) Get(ctx context.Context, date string) (*model.MacroSentiment, bool, error) {
	data, err := c.client.Get(ctx, cacheKey(date)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var s model.MacroSentiment
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, false, fmt.Errorf("decode cached sentiment: %w", err)
	}
	return &s, true, nil
}

// Set stores s under date with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, date string, s *model.MacroSentiment) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, cacheKey(date), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (c *RedisCache) Close() error { return c.client.Close() }
