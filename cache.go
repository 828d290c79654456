package tenantcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bool64/ctxd"
	"github.com/bool64/stats"
)

// Config controls cache instance.
type Config struct {
	// Logger is an instance of contextualized logger, can be nil.
	Logger ctxd.Logger

	// Stats is metrics collector, can be nil.
	Stats stats.Tracker

	// Name is cache instance name, used in stats and logging.
	Name string

	// Shards is a number of RWMutex buckets, must be a power of two.
	// Default 0 selects lock-free xsync table.
	Shards int

	// SizeHint is an expected number of entries to preallocate table.
	SizeHint int
}

// TenantCache is a concurrent in-memory cache with entries isolated by tenant.
//
// Cache is a passive store: it keeps hard and soft expiration markers of every entry,
// but does not evaluate them, see Entry.State.
//
// Zero value is ready to use with default configuration.
// Please use New to create configured instance.
type TenantCache[V any] struct {
	once    sync.Once
	data    table[V]
	initErr error

	config Config
	log    ctxd.Logger
	stat   stats.Tracker
}

// New creates an instance of tenant cache with optional configuration.
func New[V any](options ...func(cfg *Config)) *TenantCache[V] {
	c := &TenantCache[V]{}

	for _, option := range options {
		option(&c.config)
	}

	c.log = c.config.Logger
	c.stat = c.config.Stats

	return c
}

// Initialize creates backing table if it does not exist yet.
//
// It is safe to call Initialize multiple times and concurrently, table is only created once.
// Construction error is returned by every call. Other methods initialize cache implicitly
// and panic if table can not be constructed.
func (c *TenantCache[V]) Initialize() error {
	c.once.Do(func() {
		shards := c.config.Shards

		switch {
		case shards == 0:
			c.data = newSyncTable[V](c.config.SizeHint)
		case shards < 0 || shards&(shards-1) != 0:
			c.initErr = fmt.Errorf("%w: shards count must be a power of two, %d received", ErrInvalidConfig, shards)
		default:
			c.data = newShardedTable[V](shards, c.config.SizeHint)
		}
	})

	return c.initErr
}

func (c *TenantCache[V]) table() table[V] {
	if err := c.Initialize(); err != nil {
		panic(err)
	}

	return c.data
}

// Get returns a copy of stored entry.
//
// Expiration is not checked, hard expired entry is returned as found.
func (c *TenantCache[V]) Get(ctx context.Context, tenant TenantID, key string) (Entry[V], bool) {
	e, found := c.table().load(Key{Tenant: tenant, Key: key})
	if !found {
		if c.log != nil {
			c.log.Debug(ctx, "cache miss",
				"name", c.config.Name,
				"tenant", tenant,
				"key", key)
		}

		if c.stat != nil {
			c.stat.Add(ctx, MetricMiss, 1, "name", c.config.Name)
		}

		return Entry[V]{}, false
	}

	if c.stat != nil {
		c.stat.Add(ctx, MetricHit, 1, "name", c.config.Name)
	}

	if c.log != nil {
		c.log.Debug(ctx, "cache hit",
			"name", c.config.Name,
			"tenant", tenant,
			"key", key,
			"hardExpireAt", e.e.HardExpireAt,
			"softExpireAt", e.e.SoftExpireAt)
	}

	return e.e, true
}

// Put inserts or replaces an entry.
//
// Value and both expiration markers become visible together, previous entry is discarded.
func (c *TenantCache[V]) Put(ctx context.Context, tenant TenantID, key string, value V, hardExpireAt, softExpireAt time.Time) {
	k := Key{Tenant: tenant, Key: key}

	c.table().store(k, &entry[V]{
		k: k,
		e: Entry[V]{Value: value, HardExpireAt: hardExpireAt, SoftExpireAt: softExpireAt},
	})

	if c.log != nil {
		c.log.Debug(ctx, "wrote to cache",
			"name", c.config.Name,
			"tenant", tenant,
			"key", key,
			"hardExpireAt", hardExpireAt,
			"softExpireAt", softExpireAt)
	}

	if c.stat != nil {
		c.stat.Add(ctx, MetricWrite, 1, "name", c.config.Name)
	}
}

// Delete removes an entry, missing entry is ignored.
func (c *TenantCache[V]) Delete(ctx context.Context, tenant TenantID, key string) {
	if !c.table().delete(Key{Tenant: tenant, Key: key}) {
		return
	}

	if c.log != nil {
		c.log.Debug(ctx, "deleted cache entry",
			"name", c.config.Name,
			"tenant", tenant,
			"key", key)
	}

	if c.stat != nil {
		c.stat.Add(ctx, MetricDelete, 1, "name", c.config.Name)
	}
}

// Len returns number of entries in cache, including expired.
func (c *TenantCache[V]) Len() int {
	return c.table().len()
}

// Walk calls walkFn for every entry in cache and stops on first error.
//
// Count of processed entries is returned.
func (c *TenantCache[V]) Walk(walkFn func(k Key, e Entry[V]) error) (int, error) {
	var (
		n       = 0
		lastErr error
	)

	c.table().walk(func(e *entry[V]) bool {
		if err := walkFn(e.k, e.e); err != nil {
			lastErr = err

			return false
		}

		n++

		return true
	})

	return n, lastErr
}

// ExpireAll marks all entries as hard expired, so that Loader and views rebuild them.
func (c *TenantCache[V]) ExpireAll(ctx context.Context) {
	c.expire(ctx, nil)
}

// ExpireTenant marks all entries of a tenant as hard expired.
func (c *TenantCache[V]) ExpireTenant(ctx context.Context, tenant TenantID) {
	c.expire(ctx, &tenant)
}

// DeleteAll erases all entries.
func (c *TenantCache[V]) DeleteAll(ctx context.Context) {
	c.deleteMatching(ctx, "deleted all entries in cache", func(e *entry[V]) bool {
		return true
	})
}

// DeleteTenant erases all entries of a tenant.
func (c *TenantCache[V]) DeleteTenant(ctx context.Context, tenant TenantID) {
	c.deleteMatching(ctx, "deleted tenant entries in cache", func(e *entry[V]) bool {
		return e.k.Tenant == tenant
	}, "tenant", tenant)
}

// DeleteExpired erases entries that have hard expired before a boundary and returns their count.
//
// Entry rewritten concurrently with a newer expiration is kept.
func (c *TenantCache[V]) DeleteExpired(ctx context.Context, before time.Time) int {
	return c.deleteMatching(ctx, "deleted expired entries in cache", func(e *entry[V]) bool {
		return e.e.HardExpireAt.Before(before)
	}, "before", before)
}

func (c *TenantCache[V]) expire(ctx context.Context, tenant *TenantID) {
	now := time.Now()
	cnt := 0
	t := c.table()

	t.walk(func(e *entry[V]) bool {
		if tenant != nil && e.k.Tenant != *tenant {
			return true
		}

		if e.e.HardExpired(now) {
			return true
		}

		t.compute(e.k, func(cur *entry[V], found bool) *entry[V] {
			if !found || cur != e {
				return cur
			}

			cnt++

			expired := *e
			expired.e.HardExpireAt = now

			if expired.e.SoftExpireAt.After(now) {
				expired.e.SoftExpireAt = now
			}

			return &expired
		})

		return true
	})

	if c.log != nil {
		kv := []interface{}{
			"name", c.config.Name,
			"elapsed", time.Since(now).String(),
			"count", cnt,
		}

		if tenant != nil {
			kv = append(kv, "tenant", *tenant)
		}

		c.log.Important(ctx, "expired entries in cache", kv...)
	}
}

func (c *TenantCache[V]) deleteMatching(ctx context.Context, msg string, match func(e *entry[V]) bool, keysAndValues ...interface{}) int {
	start := time.Now()
	cnt := 0
	t := c.table()

	t.walk(func(e *entry[V]) bool {
		if !match(e) {
			return true
		}

		// Only the entry that was matched is removed, a concurrent write survives.
		t.compute(e.k, func(cur *entry[V], found bool) *entry[V] {
			if !found || cur != e {
				return cur
			}

			cnt++

			return nil
		})

		return true
	})

	if c.stat != nil && cnt > 0 {
		c.stat.Add(ctx, MetricDelete, float64(cnt), "name", c.config.Name)
	}

	if c.log != nil {
		c.log.Important(ctx, msg, append([]interface{}{
			"name", c.config.Name,
			"elapsed", time.Since(start).String(),
			"count", cnt,
		}, keysAndValues...)...)
	}

	return cnt
}
