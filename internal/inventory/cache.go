package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores vehicle lookups in Redis as JSON.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewCache constructs a cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl, prefix: "inventory:vehicle:"}
}

func (c *Cache) key(vin string) string {
	return c.prefix + vin
}

// Get loads a cached vehicle. It reports whether the key existed.
func (c *Cache) Get(ctx context.Context, vin string) (Vehicle, bool, error) {
	var v Vehicle
	if c == nil || c.client == nil || vin == "" {
		return v, false, nil
	}
	data, err := c.client.Get(ctx, c.key(vin)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return v, false, nil
		}
		return v, false, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, false, err
	}
	return v, true, nil
}

// Set stores v under its VIN with the configured TTL.
func (c *Cache) Set(ctx context.Context, v Vehicle) error {
	if c == nil || c.client == nil || v.VIN == "" || c.ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(v.VIN), data, c.ttl).Err()
}

// Invalidate drops the cached entry for vin.
func (c *Cache) Invalidate(ctx context.Context, vin string) error {
	if c == nil || c.client == nil || vin == "" {
		return nil
	}
	return c.client.Del(ctx, c.key(vin)).Err()
}
