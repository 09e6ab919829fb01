// Package cache implements the two-level cache fronting the license and
// entitlement planes: an in-process LRU tier backed by a remote Redis
// tier, both TTL-scoped, eventually consistent across nodes.
package cache

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

// entry is the Tier 1 value: the raw bytes plus the instant it expires,
// mirrored from EventDedup's (value, addedAt) pair but carrying an
// explicit expiry instead of a fixed TTL re-applied on every check.
type entry struct {
	value  []byte
	expiry time.Time
}

// Cache is the two-level store described by spec.md §4.C2. Tier 1 never
// blocks; Tier 2 failures degrade to Tier-1-only operation with a logged
// warning rather than failing the caller's read or write.
type Cache struct {
	tier1    *lru.Cache[string, entry]
	tier2    *redis.Client
	retries  int
	backoff  time.Duration
	mu       sync.Mutex // guards tier1 during InvalidateByPattern's full clear
}

// Option configures retry behaviour for Tier 2 operations.
type Option func(*Cache)

// WithRetry sets the number of linear-backoff retries and the base delay
// between them for Tier 2 operations (spec.md §4.C2 "Failure handling").
func WithRetry(retries int, backoff time.Duration) Option {
	return func(c *Cache) {
		c.retries = retries
		c.backoff = backoff
	}
}

// New builds a Cache with a Tier 1 of the given capacity and a Tier 2
// client. tier1Size follows the same bounded-map sizing as teacher's
// EventDedup LRU.
func New(tier1Size int, tier2 *redis.Client, opts ...Option) (*Cache, error) {
	t1, err := lru.New[string, entry](tier1Size)
	if err != nil {
		return nil, err
	}
	c := &Cache{tier1: t1, tier2: tier2, retries: 3, backoff: 50 * time.Millisecond}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get implements the §4.C2 read path: Tier 1 first, then Tier 2 on miss,
// repopulating Tier 1 with the remote TTL on a Tier 2 hit.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if e, ok := c.tier1.Get(key); ok {
		if time.Now().Before(e.expiry) {
			return e.value, true
		}
		c.tier1.Remove(key)
	}

	val, ttl, ok := c.getTier2(ctx, key)
	if !ok {
		return nil, false
	}
	c.tier1.Add(key, entry{value: val, expiry: time.Now().Add(ttl)})
	return val, true
}

func (c *Cache) getTier2(ctx context.Context, key string) ([]byte, time.Duration, bool) {
	var val []byte
	var ttl time.Duration
	err := c.withRetry(ctx, func(ctx context.Context) error {
		v, err := c.tier2.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil
			}
			return err
		}
		d, err := c.tier2.TTL(ctx, key).Result()
		if err != nil {
			return err
		}
		val, ttl = v, d
		return nil
	})
	if err != nil {
		log.Printf("cache: tier 2 read failed for %q: %v", key, err)
		return nil, 0, false
	}
	if val == nil {
		return nil, 0, false
	}
	return val, ttl, true
}

// Set implements the §4.C2 write path. ttl<=0 means "do not cache" and is
// a no-op in both tiers, matching the documented boundary behaviour.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.tier1.Add(key, entry{value: value, expiry: time.Now().Add(ttl)})

	err := c.withRetry(ctx, func(ctx context.Context) error {
		return c.tier2.Set(ctx, key, value, ttl).Err()
	})
	if err != nil {
		log.Printf("cache: tier 2 write dropped for %q: %v", key, err)
	}
}

// Invalidate removes key from both tiers.
func (c *Cache) Invalidate(ctx context.Context, key string) {
	c.tier1.Remove(key)
	err := c.withRetry(ctx, func(ctx context.Context) error {
		return c.tier2.Del(ctx, key).Err()
	})
	if err != nil {
		log.Printf("cache: tier 2 invalidate failed for %q: %v", key, err)
	}
}

// InvalidateByPattern clears all of Tier 1 (coarser but correct per
// spec.md §4.C2) and issues a Tier 2 pattern delete via SCAN+DEL, since
// Redis has no atomic pattern-delete primitive.
func (c *Cache) InvalidateByPattern(ctx context.Context, pattern string) {
	c.mu.Lock()
	c.tier1.Purge()
	c.mu.Unlock()

	err := c.withRetry(ctx, func(ctx context.Context) error {
		var cursor uint64
		for {
			keys, next, err := c.tier2.Scan(ctx, cursor, pattern, 100).Result()
			if err != nil {
				return err
			}
			if len(keys) > 0 {
				if err := c.tier2.Del(ctx, keys...).Err(); err != nil {
					return err
				}
			}
			cursor = next
			if cursor == 0 {
				return nil
			}
		}
	})
	if err != nil {
		log.Printf("cache: tier 2 pattern invalidate failed for %q: %v", pattern, err)
	}
}

// withRetry applies linear backoff: attempt, sleep backoff, attempt,
// sleep 2*backoff, … up to c.retries attempts total.
func (c *Cache) withRetry(ctx context.Context, fn func(context.Context) error) error {
	var err error
	for i := 0; i < c.retries; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if i == c.retries-1 {
			break
		}
		select {
		case <-time.After(c.backoff * time.Duration(i+1)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
