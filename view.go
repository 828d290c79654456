package tenantcache

import (
	"context"
	"fmt"
	"time"

	"github.com/bool64/cache"
	"github.com/bool64/ctxd"
)

// ViewConfig controls tenant view.
type ViewConfig struct {
	// TimeToLive is delay before written value hard expires, default 5m.
	// It can be overridden for a particular write with cache.WithTTL.
	TimeToLive time.Duration

	// SoftTTLFraction is a fraction of TTL after which value becomes soft stale, default 0.8.
	// Use -1 to set soft expiration equal to hard expiration.
	SoftTTLFraction float64

	// Now is a time source, default time.Now.
	Now func() time.Time
}

var (
	_ cache.ReadWriter = &View[int]{}
	_ cache.Deleter    = &View[int]{}
)

// View is a cache backend scoped to a single tenant.
//
// It implements github.com/bool64/cache contracts, hard expired entries are reported as missing.
type View[V any] struct {
	c      *TenantCache[V]
	tenant TenantID
	config ViewConfig
}

// View returns a tenant scoped backend.
func (c *TenantCache[V]) View(tenant TenantID, options ...func(cfg *ViewConfig)) *View[V] {
	config := ViewConfig{}

	for _, option := range options {
		option(&config)
	}

	if config.TimeToLive == 0 {
		config.TimeToLive = 5 * time.Minute
	}

	if config.SoftTTLFraction == 0 {
		config.SoftTTLFraction = 0.8
	}

	if config.Now == nil {
		config.Now = time.Now
	}

	return &View[V]{
		c:      c,
		tenant: tenant,
		config: config,
	}
}

// Tenant returns tenant of view.
func (v *View[V]) Tenant() TenantID {
	return v.tenant
}

// Read gets value.
func (v *View[V]) Read(ctx context.Context, key []byte) (interface{}, error) {
	if cache.SkipRead(ctx) {
		return nil, cache.ErrNotFound
	}

	e, found := v.c.Get(ctx, v.tenant, string(key))
	if !found {
		return nil, cache.ErrNotFound
	}

	if e.HardExpired(v.config.Now()) {
		if v.c.stat != nil {
			v.c.stat.Add(ctx, MetricExpired, 1, "name", v.c.config.Name)
		}

		return nil, cache.ErrNotFound
	}

	return e.Value, nil
}

// Write sets value.
func (v *View[V]) Write(ctx context.Context, key []byte, value interface{}) error {
	val, ok := value.(V)
	if !ok {
		return ctxd.WrapError(ctx, ErrUnexpectedType, "failed to write to tenant view",
			"tenant", v.tenant,
			"key", string(key),
			"type", fmt.Sprintf("%T", value))
	}

	ttl := cache.TTL(ctx)
	if ttl == cache.DefaultTTL {
		ttl = v.config.TimeToLive
	}

	now := v.config.Now()
	hardExpireAt := now.Add(ttl)
	softExpireAt := hardExpireAt

	if v.config.SoftTTLFraction > 0 && v.config.SoftTTLFraction < 1 {
		softExpireAt = now.Add(time.Duration(float64(ttl) * v.config.SoftTTLFraction))
	}

	// Conversion to string copies key, so caller can reuse its buffer.
	v.c.Put(ctx, v.tenant, string(key), val, hardExpireAt, softExpireAt)

	return nil
}

// Delete removes value, missing value is not an error.
func (v *View[V]) Delete(ctx context.Context, key []byte) error {
	v.c.Delete(ctx, v.tenant, string(key))

	return nil
}
