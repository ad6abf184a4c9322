package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mikey/llm-phish-detector/internal/core"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// redisKeyPrefix namespaces verdict keys
	redisKeyPrefix = "phish:verdict:"

	// minRedisTTL keeps already-expired entries around long enough to be
	// reported as expired rather than missing
	minRedisTTL = time.Second

	redisScanCount      = 100
	redisPingTimeout    = 5 * time.Second
	redisDefaultAddress = "localhost:6379"
)

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// redisEntry is the JSON document stored under each key
type redisEntry struct {
	Fingerprint    string    `json:"fingerprint"`
	Sender         string    `json:"sender"`
	Score          int       `json:"score"`
	Classification string    `json:"classification"`
	Reasoning      string    `json:"reasoning"`
	ModelUsed      string    `json:"model_used"`
	LastSeen       time.Time `json:"last_seen"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// RedisCache is a Redis implementation of the CacheRepository interface.
// Keys carry a server-side TTL matching the entry's expiry.
type RedisCache struct {
	client   redis.UniversalClient
	logger   *zap.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	if cfg.Address == "" {
		cfg.Address = redisDefaultAddress
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, nil
}

// NewRedisCache creates a cache on top of an existing client
func NewRedisCache(client redis.UniversalClient, logger *zap.Logger, cleanupFreq time.Duration) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	cache := &RedisCache{
		client: client,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	if cleanupFreq > 0 {
		go startCleanupTask(cache, cleanupFreq, cache.stopCh, logger)
	}

	return cache
}

func redisKey(fingerprint string) string {
	return redisKeyPrefix + fingerprint
}

// Get retrieves the cached verdict for a message fingerprint
func (c *RedisCache) Get(ctx context.Context, fingerprint string) (*core.CacheEntry, error) {
	data, err := c.client.Get(ctx, redisKey(fingerprint)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query cache: %w", err)
	}

	var stored redisEntry
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	if time.Now().After(stored.ExpiresAt) {
		return nil, ErrExpired
	}

	return &core.CacheEntry{
		Fingerprint:    stored.Fingerprint,
		Sender:         stored.Sender,
		Score:          stored.Score,
		Classification: core.Classification(stored.Classification),
		Reasoning:      stored.Reasoning,
		ModelUsed:      stored.ModelUsed,
		LastSeen:       stored.LastSeen,
		ExpiresAt:      stored.ExpiresAt,
	}, nil
}

// Set stores a cache entry
func (c *RedisCache) Set(ctx context.Context, entry *core.CacheEntry) error {
	if entry == nil || entry.Fingerprint == "" {
		return errors.New("cache entry requires a fingerprint")
	}

	data, err := json.Marshal(redisEntry{
		Fingerprint:    entry.Fingerprint,
		Sender:         entry.Sender,
		Score:          entry.Score,
		Classification: string(entry.Classification),
		Reasoning:      entry.Reasoning,
		ModelUsed:      entry.ModelUsed,
		LastSeen:       entry.LastSeen,
		ExpiresAt:      entry.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	ttl := time.Until(entry.ExpiresAt)
	if ttl < minRedisTTL {
		ttl = minRedisTTL
	}

	if err := c.client.Set(ctx, redisKey(entry.Fingerprint), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to insert cache entry: %w", err)
	}
	return nil
}

// Delete removes a cache entry
func (c *RedisCache) Delete(ctx context.Context, fingerprint string) error {
	if err := c.client.Del(ctx, redisKey(fingerprint)).Err(); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Cleanup removes entries whose expiry has passed but whose key is still
// alive. Redis drops the rest on its own.
func (c *RedisCache) Cleanup(ctx context.Context) error {
	expiredCount := 0

	iter := c.client.Scan(ctx, 0, redisKeyPrefix+"*", redisScanCount).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		_, err := c.Get(ctx, strings.TrimPrefix(key, redisKeyPrefix))
		if !errors.Is(err, ErrExpired) {
			continue
		}
		if err := c.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("failed to clean up expired entries: %w", err)
		}
		expiredCount++
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}

	c.logger.Debug("Cleaned up expired cache entries", zap.Int("expired_count", expiredCount))
	return nil
}

// Stop stops the background cleanup task and closes the client
func (c *RedisCache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		if err := c.client.Close(); err != nil {
			c.logger.Error("Failed to close Redis client", zap.Error(err))
		}
	})
}
