package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"toolshed/internal/config"
	"toolshed/internal/schedule"

	"github.com/redis/go-redis/v9"
)

// RedisCalendarCache holds rendered availability calendars. Entries expire on
// TTL and are dropped eagerly whenever the resource's bookings change, so a
// stale calendar can only outlive a write by a failed invalidation.
type RedisCalendarCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient creates a Redis client from config.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisCalendarCache(client *redis.Client, ttl time.Duration) *RedisCalendarCache {
	return &RedisCalendarCache{client: client, ttl: ttl}
}

func calendarKey(resourceID string, rangeStart, rangeEnd time.Time, slot time.Duration) string {
	return fmt.Sprintf("calendar:%s:%d:%d:%d", resourceID, rangeStart.Unix(), rangeEnd.Unix(), int64(slot/time.Second))
}

func calendarIndexKey(resourceID string) string {
	return "calendar_keys:" + resourceID
}

func (c *RedisCalendarCache) Get(ctx context.Context, resourceID string, rangeStart, rangeEnd time.Time, slot time.Duration) ([]schedule.Slot, bool, error) {
	if c.client == nil {
		return nil, false, fmt.Errorf("redis client is nil")
	}
	val, err := c.client.Get(ctx, calendarKey(resourceID, rangeStart, rangeEnd, slot)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get calendar from redis: %w", err)
	}

	var slots []schedule.Slot
	if err := json.Unmarshal([]byte(val), &slots); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal calendar: %w", err)
	}
	return slots, true, nil
}

func (c *RedisCalendarCache) Set(ctx context.Context, resourceID string, rangeStart, rangeEnd time.Time, slot time.Duration, slots []schedule.Slot) error {
	if c.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(slots)
	if err != nil {
		return fmt.Errorf("failed to marshal calendar: %w", err)
	}

	key := calendarKey(resourceID, rangeStart, rangeEnd, slot)
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set calendar in redis: %w", err)
	}

	// Track keys per resource so Invalidate can drop every cached shape.
	index := calendarIndexKey(resourceID)
	if err := c.client.SAdd(ctx, index, key).Err(); err != nil {
		return fmt.Errorf("failed to index calendar key: %w", err)
	}
	c.client.Expire(ctx, index, c.ttl)
	return nil
}

func (c *RedisCalendarCache) Invalidate(ctx context.Context, resourceID string) error {
	if c.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	index := calendarIndexKey(resourceID)
	keys, err := c.client.SMembers(ctx, index).Result()
	if err != nil {
		return fmt.Errorf("failed to list calendar keys: %w", err)
	}
	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to delete calendar keys: %w", err)
		}
	}
	if err := c.client.Del(ctx, index).Err(); err != nil {
		return fmt.Errorf("failed to delete calendar index: %w", err)
	}
	return nil
}

// CheckRateLimit counts calls per caller in a fixed window. Returns false
// once the count exceeds the limit.
func (c *RedisCalendarCache) CheckRateLimit(ctx context.Context, callerID string, limit int, window time.Duration) (bool, error) {
	if c.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	key := "rate_limit:" + callerID
	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		c.client.Expire(ctx, key, window)
	}

	return count <= int64(limit), nil
}

// Ping verifies the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}
