package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/liamcoop/staffrules/internal/logger"
)

const redisCacheTimeout = 250 * time.Millisecond

// RedisEvaluationCache shares evaluation results between server replicas.
// Keys carry the content fingerprint instead of the store version, so two
// replicas only share an entry when their rules and roster match. Entries expire after the freshness window; Redis failures are logged and
// treated as misses so evaluation never depends on Redis being up.
type RedisEvaluationCache struct {
	client    redis.Cmdable
	prefix    string
	freshness time.Duration
}

// NewRedisEvaluationCache creates a cache whose keys are "<prefix>:<start>:<days>:<fingerprint>"
func NewRedisEvaluationCache(client redis.Cmdable, prefix string, config CacheConfig) *RedisEvaluationCache {
	if config.Freshness <= 0 {
		config.Freshness = DefaultCacheConfig().Freshness
	}
	return &RedisEvaluationCache{client: client, prefix: prefix, freshness: config.Freshness}
}

func (c *RedisEvaluationCache) redisKey(key CacheKey) string {
	return fmt.Sprintf("%s:%d:%d:%s", c.prefix, key.Start, key.Days, key.Fingerprint)
}

func (c *RedisEvaluationCache) Get(key CacheKey) ([]*Violation, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisCacheTimeout)
	defer cancel()

	raw, err := c.client.Get(ctx, c.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		logger.WarnCache("get", err)
		return nil, false
	}

	var violations []*Violation
	if err := json.Unmarshal(raw, &violations); err != nil {
		logger.WarnCache("decode", err)
		return nil, false
	}
	return violations, true
}

func (c *RedisEvaluationCache) Set(key CacheKey, violations []*Violation) {
	if violations == nil {
		violations = []*Violation{}
	}
	data, err := json.Marshal(violations)
	if err != nil {
		logger.WarnCache("encode", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisCacheTimeout)
	defer cancel()

	if err := c.client.Set(ctx, c.redisKey(key), data, c.freshness).Err(); err != nil {
		logger.WarnCache("set", err)
	}
}

// Invalidate deletes every key under the prefix
func (c *RedisEvaluationCache) Invalidate() {
	ctx, cancel := context.WithTimeout(context.Background(), 4*redisCacheTimeout)
	defer cancel()

	iter := c.client.Scan(ctx, 0, c.prefix+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		logger.WarnCache("scan", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		logger.WarnCache("del", err)
	}
}
