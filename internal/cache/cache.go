// Package cache stores optimization outcomes in Redis, keyed by a content
// hash of the model scope, request and search options.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"price-optimizer/pkg/api"
)

const keyPrefix = "priceopt:outcome:"

// Client is the subset of the Redis client the cache uses.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Entry is a cached optimization outcome.
type Entry struct {
	Result api.OptimizationResult `json:"result"`
	Search api.SearchSummary      `json:"search"`
}

// ResultCache is a Redis-backed outcome cache.
type ResultCache struct {
	client Client
	ttl    time.Duration
}

// New wraps a Redis client. A zero ttl keeps entries until evicted.
func New(client Client, ttl time.Duration) *ResultCache {
	return &ResultCache{client: client, ttl: ttl}
}

// Dial connects to Redis at addr and verifies it answers.
func Dial(ctx context.Context, addr, password string, database int, ttl time.Duration) (*ResultCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       database,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return New(rdb, ttl), nil
}

// Scope identifies the model artifact and sweep settings an outcome was
// computed under. Processes sharing Redis only share entries within a scope.
type Scope struct {
	ModelVersion    string  `json:"version"`
	ModelChecksum   string  `json:"sha256"`
	Samples         int     `json:"samples"`
	UpperMultiplier float64 `json:"upper_multiplier"`
	PriceFloor      float64 `json:"price_floor"`
}

// Key derives the cache key for an optimization.
func Key(scope Scope, req api.PricingRequest, opts api.SearchOptions) (string, error) {
	payload, err := json.Marshal(struct {
		Scope   Scope              `json:"s"`
		Request api.PricingRequest `json:"r"`
		Options api.SearchOptions  `json:"o"`
	}{scope, req, opts})
	if err != nil {
		return "", fmt.Errorf("failed to encode cache key: %w", err)
	}
	sum := sha256.Sum256(payload)
	return keyPrefix + hex.EncodeToString(sum[:]), nil
}

// Get returns the cached entry, or ok=false on a miss.
func (c *ResultCache) Get(ctx context.Context, key string) (*Entry, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("could not fetch %s from cache: %w", key, err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, fmt.Errorf("could not decode cached outcome: %w", err)
	}
	return &entry, true, nil
}

// Set stores an entry under key.
func (c *ResultCache) Set(ctx context.Context, key string, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("could not encode outcome: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("could not write %s to cache: %w", key, err)
	}
	return nil
}

// Ping checks Redis connectivity.
func (c *ResultCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *ResultCache) Close() error {
	return c.client.Close()
}
