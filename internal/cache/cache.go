package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/podbrief/podbrief/pkg/models"
)

// Cache provides caching functionality using Redis
type Cache struct {
	client *redis.Client
}

// NewCache creates a new cache instance
func NewCache(host string, port int, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks connectivity
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Profile cache

// SetProfile caches a user's profile
func (c *Cache) SetProfile(ctx context.Context, profile *models.Profile, ttl time.Duration) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	key := fmt.Sprintf("profile:%s", profile.UserID)
	return c.client.Set(ctx, key, data, ttl).Err()
}

// GetProfile retrieves a cached profile. A cache miss returns (nil, nil).
func (c *Cache) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	key := fmt.Sprintf("profile:%s", userID)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get profile from cache: %w", err)
	}

	var profile models.Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}

	return &profile, nil
}

// DeleteProfile invalidates a cached profile after a usage or plan change.
func (c *Cache) DeleteProfile(ctx context.Context, userID string) error {
	key := fmt.Sprintf("profile:%s", userID)
	return c.client.Del(ctx, key).Err()
}

// Shared result cache

// SetSharedResult caches a public share snapshot
func (c *Cache) SetSharedResult(ctx context.Context, result *models.SharedResult, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal shared result: %w", err)
	}

	key := fmt.Sprintf("share:%s", result.ShareID)
	return c.client.Set(ctx, key, data, ttl).Err()
}

// GetSharedResult retrieves a cached share snapshot. A cache miss returns
// (nil, nil).
func (c *Cache) GetSharedResult(ctx context.Context, shareID string) (*models.SharedResult, error) {
	key := fmt.Sprintf("share:%s", shareID)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get shared result from cache: %w", err)
	}

	var result models.SharedResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal shared result: %w", err)
	}

	return &result, nil
}

// Stats

// IncrementStat increments a statistic counter
func (c *Cache) IncrementStat(ctx context.Context, stat string) error {
	key := fmt.Sprintf("stats:%s", stat)
	return c.client.Incr(ctx, key).Err()
}

// GetStat retrieves a statistic value
func (c *Cache) GetStat(ctx context.Context, stat string) (int64, error) {
	key := fmt.Sprintf("stats:%s", stat)
	return c.client.Get(ctx, key).Int64()
}
