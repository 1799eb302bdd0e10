package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FamilyExplorer/pkg/errors"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrCacheMiss means the key is absent.
	ErrCacheMiss = errors.New(errors.ErrCodeCacheError, "cache miss")
	// ErrCachedNull means a negative result was cached for the key.
	ErrCachedNull = errors.New(errors.ErrCodeCacheError, "cached null")
	// ErrSerializationFailed wraps JSON encode/decode failures.
	ErrSerializationFailed = errors.New(errors.ErrCodeSerialization, "cache serialization failed")
)

const nullMarker = "__null__"

// Loader produces the value for a missing key. Returning (nil, nil) stores a
// null marker for the null TTL.
type Loader func(ctx context.Context) (interface{}, error)

// Cache is a JSON value cache with negative caching and request collapsing.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	SetNull(ctx context.Context, key string) error
	Delete(ctx context.Context, keys ...string) error
	// MGet returns the raw JSON for every key that holds a non-null value.
	MGet(ctx context.Context, keys []string) (map[string][]byte, error)
	// GetOrLoad fills dest from the cache or from load. fromCache reports
	// whether the value was served from Redis. Concurrent misses share one
	// load that no caller's cancellation aborts; a cancelled caller returns
	// its ctx error while the others still receive the value.
	GetOrLoad(ctx context.Context, key string, dest interface{}, ttl time.Duration, load Loader) (fromCache bool, err error)
	DeleteByPrefix(ctx context.Context, prefix string) (int64, error)
	Ping(ctx context.Context) error
}

type redisCache struct {
	client  *Client
	logger  logging.Logger
	prefix  string
	ttl     time.Duration
	nullTTL time.Duration
	jitter  float64
	group   singleflight.Group
}

// CacheOption configures the cache.
type CacheOption func(*redisCache)

func WithPrefix(prefix string) CacheOption {
	return func(c *redisCache) { c.prefix = prefix }
}

func WithDefaultTTL(ttl time.Duration) CacheOption {
	return func(c *redisCache) { c.ttl = ttl }
}

func WithNullTTL(ttl time.Duration) CacheOption {
	return func(c *redisCache) { c.nullTTL = ttl }
}

// WithJitter sets the ± fraction applied to every TTL. Zero disables jitter.
func WithJitter(fraction float64) CacheOption {
	return func(c *redisCache) { c.jitter = fraction }
}

// NewRedisCache builds a Cache over client.
func NewRedisCache(client *Client, log logging.Logger, opts ...CacheOption) Cache {
	if log == nil {
		log = logging.NewNopLogger()
	}
	c := &redisCache{
		client:  client,
		logger:  log,
		prefix:  "fx:",
		ttl:     time.Hour,
		nullTTL: 5 * time.Minute,
		jitter:  0.1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *redisCache) fullKey(key string) string { return c.prefix + key }

func (c *redisCache) jitterTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 || c.jitter <= 0 {
		return ttl
	}
	return ttl + time.Duration(float64(ttl)*c.jitter*(rand.Float64()*2-1))
}

func (c *redisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, c.fullKey(key)).Bytes()
	if err == redis.Nil {
		return ErrCacheMiss
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to get from cache")
	}
	if string(data) == nullMarker {
		return ErrCachedNull
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return ErrSerializationFailed.WithCause(err)
	}
	return nil
}

func (c *redisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.ttl
	}
	data, err := json.Marshal(value)
	if err != nil {
		return ErrSerializationFailed.WithCause(err)
	}
	if err := c.client.Set(ctx, c.fullKey(key), data, c.jitterTTL(ttl)).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to set cache")
	}
	return nil
}

func (c *redisCache) SetNull(ctx context.Context, key string) error {
	if err := c.client.Set(ctx, c.fullKey(key), nullMarker, c.jitterTTL(c.nullTTL)).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to set null marker")
	}
	return nil
}

func (c *redisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.fullKey(k)
	}
	return c.client.Del(ctx, full...).Err()
}

func (c *redisCache) MGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.fullKey(k)
	}
	vals, err := c.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCacheError, "failed to mget")
	}
	out := make(map[string][]byte, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok || s == nullMarker {
			continue
		}
		out[keys[i]] = []byte(s)
	}
	return out, nil
}

func (c *redisCache) GetOrLoad(ctx context.Context, key string, dest interface{}, ttl time.Duration, load Loader) (bool, error) {
	err := c.Get(ctx, key, dest)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrCachedNull):
		return true, ErrCachedNull
	case !errors.Is(err, ErrCacheMiss):
		// cache unavailable: serve from the loader without writing back
		c.logger.Warn("cache read failed, loading directly", logging.String("key", key), logging.Err(err))
		v, lerr := load(ctx)
		if lerr != nil {
			return false, lerr
		}
		if v == nil {
			return false, ErrCachedNull
		}
		return false, remarshal(v, dest)
	}

	// The shared load outlives any single caller: it runs detached from the
	// first caller's cancellation and each caller waits on its own ctx.
	// load must bound itself.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		v, lerr := load(shared)
		if lerr != nil {
			return nil, lerr
		}
		if v == nil {
			if serr := c.SetNull(shared, key); serr != nil {
				c.logger.Warn("failed to cache null", logging.String("key", key), logging.Err(serr))
			}
			return nil, nil
		}
		if serr := c.Set(shared, key, v, ttl); serr != nil {
			c.logger.Warn("failed to populate cache", logging.String("key", key), logging.Err(serr))
		}
		return v, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return false, res.Err
	}
	if res.Val == nil {
		return false, ErrCachedNull
	}
	return false, remarshal(res.Val, dest)
}

// remarshal copies v into dest through JSON so shared singleflight results
// are never aliased between callers.
func remarshal(v, dest interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return ErrSerializationFailed.WithCause(err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return ErrSerializationFailed.WithCause(err)
	}
	return nil
}

func (c *redisCache) DeleteByPrefix(ctx context.Context, prefix string) (int64, error) {
	var deleted int64
	var cursor uint64
	match := c.fullKey(prefix) + "*"
	for {
		keys, next, err := c.client.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return deleted, err
			}
			deleted += int64(len(keys))
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

func (c *redisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx)
}
