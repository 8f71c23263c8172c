// Package cache stores resolved query pages in Redis. Keys embed the index
// generation, so any index mutation makes older entries unreachable and they
// expire on their TTL. Redis calls are bounded and go through a circuit
// breaker; while it is open every lookup is a miss.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/searcher/resolver"
	pkgredis "github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/book-search-engine/pkg/resilience"
	"golang.org/x/sync/singleflight"
)

const (
	keyPrefix        = "search:"
	defaultOpTimeout = 250 * time.Millisecond
)

type Key struct {
	Query      string
	Page       int
	PageSize   int
	Generation uint64
}

type QueryCache struct {
	client    *pkgredis.Client
	ttl       time.Duration
	opTimeout time.Duration
	breaker   *resilience.Breaker
	group     singleflight.Group
	logger    *slog.Logger
	hits      atomic.Int64
	misses    atomic.Int64
}

func New(client *pkgredis.Client, ttl time.Duration) *QueryCache {
	return &QueryCache{
		client:    client,
		ttl:       ttl,
		opTimeout: defaultOpTimeout,
		breaker:   resilience.NewBreaker("redis-cache", resilience.DefaultBreakerConfig()),
		logger:    slog.Default().With("component", "query-cache"),
	}
}

// call runs one Redis operation through the breaker. Cache misses and
// caller cancellations do not count as failures.
func (c *QueryCache) call(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if err := c.breaker.Allow(); err != nil {
		return err
	}
	err := resilience.Bound(ctx, c.opTimeout, name, fn)
	if pkgredis.IsNilError(err) || errors.Is(err, context.Canceled) {
		c.breaker.Record(nil)
	} else {
		c.breaker.Record(err)
	}
	return err
}

// CircuitState reports the state of the Redis circuit breaker.
func (c *QueryCache) CircuitState() resilience.State {
	return c.breaker.State()
}

func (c *QueryCache) Get(ctx context.Context, key Key) (*resolver.Result, bool) {
	k := BuildKey(key)
	var data []byte
	err := c.call(ctx, "cache get", func(ctx context.Context) error {
		var err error
		data, err = c.client.Get(ctx, k)
		return err
	})
	if err != nil {
		switch {
		case pkgredis.IsNilError(err):
		case errors.Is(err, resilience.ErrCircuitOpen):
			c.logger.Debug("cache bypassed", "key", k)
		default:
			c.logger.Error("cache get failed", "key", k, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var result resolver.Result
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", k, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "query", key.Query, "key", k)
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, key Key, result *resolver.Result) {
	k := BuildKey(key)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", k, "error", err)
		return
	}
	err = c.call(ctx, "cache set", func(ctx context.Context) error {
		return c.client.Set(ctx, k, data, c.ttl)
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Error("cache set failed", "key", k, "error", err)
	}
}

// GetOrCompute returns a cached page or computes it once per key, even under
// concurrent identical requests. The boolean reports a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	key Key,
	computeFn func() (*resolver.Result, error),
) (*resolver.Result, bool, error) {
	if result, ok := c.Get(ctx, key); ok {
		return result, true, nil
	}
	val, err, _ := c.group.Do(BuildKey(key), func() (any, error) {
		if result, ok := c.Get(ctx, key); ok {
			return result, nil
		}
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*resolver.Result), false, nil
}

func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx)
}

// BuildKey hashes the normalized query with the paging and generation.
func BuildKey(key Key) string {
	raw := fmt.Sprintf("%s|page=%d|size=%d|gen=%d",
		normalizeQuery(key.Query), key.Page, key.PageSize, key.Generation)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

// normalizeQuery collapses case and whitespace; word order is significant.
func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
