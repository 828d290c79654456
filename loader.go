package tenantcache

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/bool64/ctxd"
	"github.com/bool64/stats"
	"golang.org/x/sync/singleflight"
)

// LoaderConfig is optional configuration for NewLoader.
type LoaderConfig struct {
	// Name is added to logs and stats.
	Name string

	// Logger collects messages with context.
	Logger ctxd.Logger

	// Stats tracks stats.
	Stats stats.Tracker

	// TimeToLive is delay before built value hard expires, default 5m.
	// It can be overridden for a particular call with WithTTL.
	TimeToLive time.Duration

	// SoftTTLFraction is a fraction of TTL after which value becomes soft stale, default 0.8.
	// Use -1 to disable early refresh.
	SoftTTLFraction float64

	// ExpirationJitter is a fraction of TTL to randomize, default 0.1.
	// Use -1 to disable.
	// If enabled, entry TTL will be randomly altered in bounds of ±(ExpirationJitter * TTL / 2).
	ExpirationJitter float64

	// FailedBuildTTL is ttl of failed build cache, default 20s, -1 disables errors cache.
	FailedBuildTTL time.Duration

	// FailedBuildCleanupInterval is delay between two consecutive cleanups of failed build cache, default 1m.
	FailedBuildCleanupInterval time.Duration

	// Now is a time source, default time.Now.
	Now func() time.Time

	// Rand returns uniform sample from [0, 1), default rand.Float64.
	Rand func() float64
}

// BuildFunc computes a value for a cache miss.
type BuildFunc[V any] func(ctx context.Context) (V, error)

// Loader reads values from TenantCache and builds missing or expired ones.
//
// Concurrent builds of the same key are coalesced. Soft stale values are served
// while being probabilistically refreshed in background, this spreads rebuilds of
// a popular key over the stale window instead of a stampede at hard expiration.
//
// Please use NewLoader to create instance.
type Loader[V any] struct {
	// Errors caches errors of failed builds.
	Errors *TenantCache[error]

	cache   *TenantCache[V]
	janitor *Janitor
	group   singleflight.Group
	config LoaderConfig
	log    ctxd.Logger
	stat   stats.Tracker
}

// NewLoader creates a Loader on top of cache instance.
func NewLoader[V any](c *TenantCache[V], options ...func(cfg *LoaderConfig)) *Loader[V] {
	config := LoaderConfig{}

	for _, option := range options {
		option(&config)
	}

	if config.TimeToLive == 0 {
		config.TimeToLive = 5 * time.Minute
	}

	if config.SoftTTLFraction == 0 {
		config.SoftTTLFraction = 0.8
	}

	if config.ExpirationJitter == 0 {
		config.ExpirationJitter = 0.1
	}

	if config.FailedBuildTTL == 0 {
		config.FailedBuildTTL = 20 * time.Second
	}

	if config.FailedBuildCleanupInterval == 0 {
		config.FailedBuildCleanupInterval = time.Minute
	}

	if config.Now == nil {
		config.Now = time.Now
	}

	if config.Rand == nil {
		config.Rand = rand.Float64 // nolint:gosec // Refresh decision does not need crypto randomness.
	}

	l := &Loader[V]{
		cache:  c,
		config: config,
	}

	l.log = config.Logger
	if l.log == nil {
		l.log = ctxd.NoOpLogger{}
	}

	l.stat = config.Stats
	if l.stat == nil {
		l.stat = stats.NoOp{}
	}

	if config.FailedBuildTTL > -1 {
		l.Errors = New[error](func(cfg *Config) {
			cfg.Name = "err_" + config.Name
			cfg.Logger = config.Logger
			cfg.Stats = config.Stats
		})

		// Errors are dropped soon after expiration, they can be heavy.
		l.janitor = NewJanitor(l.Errors, func(cfg *JanitorConfig) {
			cfg.Logger = config.Logger
			cfg.Name = "err_" + config.Name
			cfg.DeleteExpiredAfter = time.Minute
			cfg.DeleteExpiredJobInterval = config.FailedBuildCleanupInterval
			cfg.Now = config.Now
		})
	}

	return l
}

// Close stops background cleanup of failed build cache.
func (l *Loader[V]) Close() {
	if l.janitor != nil {
		l.janitor.Close()
	}
}

// Get returns value from cache or from build function.
func (l *Loader[V]) Get(ctx context.Context, tenant TenantID, key string, buildFunc BuildFunc[V]) (V, error) {
	var (
		now = l.config.Now()
		k   = Key{Tenant: tenant, Key: key}
	)

	if !SkipRead(ctx) {
		if e, found := l.cache.Get(ctx, tenant, key); found {
			switch e.State(now) {
			case Fresh:
				return e.Value, nil
			case SoftStale:
				l.stat.Add(ctx, MetricSoftStale, 1, "name", l.config.Name)

				if e.ShouldRefresh(now, l.config.Rand()) {
					l.refresh(ctx, k, buildFunc)
				}

				return e.Value, nil
			case HardExpired:
				l.stat.Add(ctx, MetricExpired, 1, "name", l.config.Name)
				l.log.Debug(ctx, "cache value hard expired",
					"name", l.config.Name,
					"tenant", tenant,
					"key", key,
					"hardExpireAt", e.HardExpireAt)
			}
		}
	}

	// Check if build failed recently.
	if err := l.recentlyFailed(ctx, k, now); err != nil {
		var zero V

		return zero, err
	}

	// Build is shared between callers, so it is detached from cancellation of the first one.
	res, err, shared := l.group.Do(k.flightKey(), func() (interface{}, error) {
		return l.build(detachedContext{parent: ctx}, k, buildFunc)
	})

	if shared {
		l.log.Debug(ctx, "shared cache value build",
			"name", l.config.Name,
			"tenant", tenant,
			"key", key)
	}

	v, _ := res.(V)

	return v, err
}

// refresh starts a background build unless one is in progress for the same key.
func (l *Loader[V]) refresh(ctx context.Context, k Key, buildFunc BuildFunc[V]) {
	// Detaching context into background, so that refresh is not canceled with request.
	ctx = detachedContext{parent: ctx}

	// Result channel is buffered, it is fine to not read from it.
	l.group.DoChan(k.flightKey(), func() (res interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic in background build: %v", r)

				l.log.Error(ctx, "background cache build panicked",
					"name", l.config.Name,
					"tenant", k.Tenant,
					"key", k.Key,
					"panic", r)
			}
		}()

		l.log.Debug(ctx, "refreshing soft stale value",
			"name", l.config.Name,
			"tenant", k.Tenant,
			"key", k.Key)
		l.stat.Add(ctx, MetricRefreshed, 1, "name", l.config.Name)

		res, err = l.build(ctx, k, buildFunc)
		if err != nil {
			l.log.Warn(ctx, "failed to refresh soft stale cache value in background",
				"error", err,
				"name", l.config.Name,
				"tenant", k.Tenant,
				"key", k.Key)
		}

		return res, err
	})
}

func (l *Loader[V]) build(ctx context.Context, k Key, buildFunc BuildFunc[V]) (V, error) {
	defer func() {
		l.stat.Add(ctx, MetricBuild, 1, "name", l.config.Name)
	}()

	l.log.Debug(ctx, "building cache value",
		"name", l.config.Name,
		"tenant", k.Tenant,
		"key", k.Key)

	v, err := buildFunc(ctx)
	if err != nil {
		l.stat.Add(ctx, MetricFailed, 1, "name", l.config.Name)

		// Cancellation is not a property of the key, it is not cached.
		if l.Errors != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			exp := l.config.Now().Add(l.config.FailedBuildTTL)
			l.Errors.Put(ctx, k.Tenant, k.Key, err, exp, exp)
		}

		return v, err
	}

	hardExpireAt, softExpireAt := l.expiration(ctx)
	l.cache.Put(ctx, k.Tenant, k.Key, v, hardExpireAt, softExpireAt)

	if l.Errors != nil {
		l.Errors.Delete(ctx, k.Tenant, k.Key)
	}

	return v, nil
}

// expiration calculates hard and soft expiration markers for a new value.
func (l *Loader[V]) expiration(ctx context.Context) (hardExpireAt, softExpireAt time.Time) {
	ttl := TTL(ctx)
	if ttl == 0 {
		ttl = l.config.TimeToLive
	}

	if l.config.ExpirationJitter > 0 {
		ttl += time.Duration(float64(ttl) * l.config.ExpirationJitter * (l.config.Rand() - 0.5))
	}

	now := l.config.Now()
	hardExpireAt = now.Add(ttl)
	softExpireAt = hardExpireAt

	if l.config.SoftTTLFraction > 0 && l.config.SoftTTLFraction < 1 {
		softExpireAt = now.Add(time.Duration(float64(ttl) * l.config.SoftTTLFraction))
	}

	return hardExpireAt, softExpireAt
}

func (l *Loader[V]) recentlyFailed(ctx context.Context, k Key, now time.Time) error {
	if l.Errors == nil {
		return nil
	}

	e, found := l.Errors.Get(ctx, k.Tenant, k.Key)
	if !found || e.HardExpired(now) {
		return nil
	}

	return ctxd.WrapError(ctx, e.Value, "recently failed to build cache value",
		"name", l.config.Name,
		"tenant", k.Tenant,
		"key", k.Key)
}
