package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/costcast/internal/models"
)

const (
	TierLocal = "local"
	TierRedis = "redis"

	defaultPrefix = "forecast_cache:"
)

// ForecastCacheEntry is the value stored in Redis
type ForecastCacheEntry struct {
	Result   *models.ForecastResult `json:"result"`
	CachedAt time.Time              `json:"cached_at"`
}

// ForecastCacheStats tracks cache performance
type ForecastCacheStats struct {
	LocalHits int64 `json:"local_hits"`
	RedisHits int64 `json:"redis_hits"`
	Misses    int64 `json:"misses"`
	Sets      int64 `json:"sets"`
	Errors    int64 `json:"errors"`
}

// HitRate is the share of lookups served from either tier, in [0,1]
func (s ForecastCacheStats) HitRate() float64 {
	total := s.LocalHits + s.RedisHits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.LocalHits+s.RedisHits) / float64(total)
}

// LookupObserver receives one call per tier consulted
type LookupObserver interface {
	ObserveCache(tier string, hit bool)
}

// OperationLogger receives one entry per lookup with its outcome and latency in milliseconds
type OperationLogger interface {
	LogCacheOperation(operation string, key string, hit bool, duration int64)
}

// Options configures a ForecastCache
type Options struct {
	TTL        time.Duration
	LocalSize  int
	Prefix     string
	Observer   LookupObserver
	Operations OperationLogger
}

// ForecastCache keeps forecast results keyed by request fingerprint in an
// in-process LRU backed by Redis. Either tier may be absent. Entries are held
// as JSON so every hit returns an independent copy.
type ForecastCache struct {
	local    *expirable.LRU[string, []byte]
	redis    *redis.Client
	ttl      time.Duration
	prefix   string
	observer LookupObserver
	ops      OperationLogger
	logger   *logrus.Logger

	mu    sync.Mutex
	stats ForecastCacheStats
}

func NewForecastCache(redisClient *redis.Client, opts Options, logger *logrus.Logger) *ForecastCache {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.Prefix == "" {
		opts.Prefix = defaultPrefix
	}

	c := &ForecastCache{
		redis:    redisClient,
		ttl:      opts.TTL,
		prefix:   opts.Prefix,
		observer: opts.Observer,
		ops:      opts.Operations,
		logger:   logger,
	}
	if opts.LocalSize > 0 {
		c.local = expirable.NewLRU[string, []byte](opts.LocalSize, nil, opts.TTL)
	}
	return c
}

// Get looks the key up locally, then in Redis. A Redis hit is promoted to the local tier.
func (c *ForecastCache) Get(ctx context.Context, key string) (*models.ForecastResult, bool) {
	started := time.Now()
	result, hit := c.lookup(ctx, key)
	if c.ops != nil {
		c.ops.LogCacheOperation("get", key, hit, time.Since(started).Milliseconds())
	}
	return result, hit
}

func (c *ForecastCache) lookup(ctx context.Context, key string) (*models.ForecastResult, bool) {
	if c.local != nil {
		if data, ok := c.local.Get(key); ok {
			if result, err := decodeResult(data); err == nil {
				c.record(TierLocal, true, func(s *ForecastCacheStats) { s.LocalHits++ })
				return result, true
			}
			c.local.Remove(key)
		}
		c.observe(TierLocal, false)
	}

	if c.redis == nil {
		c.record("", false, func(s *ForecastCacheStats) { s.Misses++ })
		return nil, false
	}

	data, err := c.redis.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.record(TierRedis, false, func(s *ForecastCacheStats) { s.Misses++ })
		return nil, false
	}
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Redis error reading forecast cache")
		c.record(TierRedis, false, func(s *ForecastCacheStats) { s.Misses++; s.Errors++ })
		return nil, false
	}

	var entry ForecastCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Result == nil {
		c.logger.WithField("key", key).Warn("Discarding undecodable forecast cache entry")
		c.record(TierRedis, false, func(s *ForecastCacheStats) { s.Misses++; s.Errors++ })
		return nil, false
	}

	if c.local != nil {
		if local, err := json.Marshal(entry.Result); err == nil {
			c.local.Add(key, local)
		}
	}
	c.record(TierRedis, true, func(s *ForecastCacheStats) { s.RedisHits++ })
	return entry.Result, true
}

// Set stores result in both tiers. A Redis failure is returned after the local tier is populated.
func (c *ForecastCache) Set(ctx context.Context, key string, result *models.ForecastResult) error {
	if result == nil {
		return nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode forecast for cache: %w", err)
	}
	if c.local != nil {
		c.local.Add(key, data)
	}
	c.record("", false, func(s *ForecastCacheStats) { s.Sets++ })

	if c.redis == nil {
		return nil
	}
	entry, err := json.Marshal(ForecastCacheEntry{Result: result, CachedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to encode forecast cache entry: %w", err)
	}
	if err := c.redis.Set(ctx, c.prefix+key, entry, c.ttl).Err(); err != nil {
		c.record("", false, func(s *ForecastCacheStats) { s.Errors++ })
		return fmt.Errorf("failed to store forecast in redis: %w", err)
	}
	return nil
}

// Clear removes every entry under the cache prefix
func (c *ForecastCache) Clear(ctx context.Context) error {
	if c.local != nil {
		c.local.Purge()
	}
	if c.redis == nil {
		return nil
	}

	var keys []string
	iter := c.redis.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("error scanning cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("error clearing cache: %w", err)
	}
	c.logger.WithField("entries", len(keys)).Info("Cleared forecast cache")
	return nil
}

// GetStats returns a snapshot of the counters
func (c *ForecastCache) GetStats() ForecastCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// LocalLen is the number of entries in the in-process tier
func (c *ForecastCache) LocalLen() int {
	if c.local == nil {
		return 0
	}
	return c.local.Len()
}

func (c *ForecastCache) record(tier string, hit bool, update func(*ForecastCacheStats)) {
	c.mu.Lock()
	update(&c.stats)
	c.mu.Unlock()
	if tier != "" {
		c.observe(tier, hit)
	}
}

func (c *ForecastCache) observe(tier string, hit bool) {
	if c.observer != nil {
		c.observer.ObserveCache(tier, hit)
	}
}

func decodeResult(data []byte) (*models.ForecastResult, error) {
	var result models.ForecastResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
