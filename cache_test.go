package tenantcache_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/bool64/ctxd"
	"github.com/bool64/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vearutop/tenantcache"
)

var backends = []struct {
	name string
	opt  func(cfg *tenantcache.Config)
}{
	{name: "xsync", opt: func(cfg *tenantcache.Config) {}},
	{name: "sharded", opt: func(cfg *tenantcache.Config) { cfg.Shards = 16 }},
}

func forEachBackend(t *testing.T, f func(t *testing.T, c *tenantcache.TenantCache[string])) {
	t.Helper()

	for _, b := range backends {
		b := b

		t.Run(b.name, func(t *testing.T) {
			f(t, tenantcache.New[string](b.opt))
		})
	}
}

func TestTenantCache_trace(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c *tenantcache.TenantCache[string]) {
		ctx := context.Background()
		now := time.Now()

		c.Put(ctx, "A", "session:42", "data-v1", now.Add(60*time.Second), now.Add(30*time.Second))

		e, found := c.Get(ctx, "A", "session:42")
		assert.True(t, found)
		assert.Equal(t, "data-v1", e.Value)
		assert.Equal(t, now.Add(60*time.Second), e.HardExpireAt)
		assert.Equal(t, now.Add(30*time.Second), e.SoftExpireAt)

		_, found = c.Get(ctx, "B", "session:42")
		assert.False(t, found)

		c.Delete(ctx, "A", "session:42")

		_, found = c.Get(ctx, "A", "session:42")
		assert.False(t, found)
	})
}

func TestTenantCache_isolation(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c *tenantcache.TenantCache[string]) {
		ctx := context.Background()
		exp := time.Now().Add(time.Hour)

		c.Put(ctx, "ab", "c", "v1", exp, exp)
		c.Put(ctx, "a", "bc", "v2", exp, exp)
		c.Put(ctx, "", "abc", "v3", exp, exp)

		e, found := c.Get(ctx, "ab", "c")
		assert.True(t, found)
		assert.Equal(t, "v1", e.Value)

		e, found = c.Get(ctx, "a", "bc")
		assert.True(t, found)
		assert.Equal(t, "v2", e.Value)

		e, found = c.Get(ctx, "", "abc")
		assert.True(t, found)
		assert.Equal(t, "v3", e.Value)

		_, found = c.Get(ctx, "abc", "")
		assert.False(t, found)

		c.Delete(ctx, "a", "bc")

		e, found = c.Get(ctx, "ab", "c")
		assert.True(t, found)
		assert.Equal(t, "v1", e.Value)
		assert.Equal(t, 2, c.Len())
	})
}

func TestTenantCache_overwrite(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c *tenantcache.TenantCache[string]) {
		ctx := context.Background()
		now := time.Now()

		c.Put(ctx, "T", "K", "v1", now.Add(time.Minute), now.Add(time.Second))
		c.Put(ctx, "T", "K", "v2", now.Add(2*time.Minute), now.Add(2*time.Second))

		e, found := c.Get(ctx, "T", "K")
		assert.True(t, found)
		assert.Equal(t, tenantcache.Entry[string]{
			Value:        "v2",
			HardExpireAt: now.Add(2 * time.Minute),
			SoftExpireAt: now.Add(2 * time.Second),
		}, e)
		assert.Equal(t, 1, c.Len())
	})
}

func TestTenantCache_reversedExpirationIsKept(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c *tenantcache.TenantCache[string]) {
		ctx := context.Background()
		now := time.Now()

		c.Put(ctx, "T", "K", "v", now, now.Add(time.Hour))

		e, found := c.Get(ctx, "T", "K")
		assert.True(t, found)
		assert.Equal(t, now, e.HardExpireAt)
		assert.Equal(t, now.Add(time.Hour), e.SoftExpireAt)
	})
}

func TestTenantCache_Delete_idempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c *tenantcache.TenantCache[string]) {
		ctx := context.Background()

		c.Delete(ctx, "T", "missing")
		c.Delete(ctx, "T", "missing")

		c.Put(ctx, "T", "K", "v", time.Now().Add(time.Hour), time.Now())
		c.Delete(ctx, "T", "K")
		c.Delete(ctx, "T", "K")

		_, found := c.Get(ctx, "T", "K")
		assert.False(t, found)
		assert.Equal(t, 0, c.Len())
	})
}

func TestTenantCache_readAfterWrite(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c *tenantcache.TenantCache[string]) {
		ctx := context.Background()
		exp := time.Now().Add(time.Hour)

		wg := sync.WaitGroup{}

		for r := 0; r < 20; r++ {
			r := r

			wg.Add(1)

			go func() {
				defer wg.Done()

				tenant := tenantcache.TenantID("t" + strconv.Itoa(r))

				for i := 0; i < 200; i++ {
					v := strconv.Itoa(i)
					c.Put(ctx, tenant, "key", v, exp, exp)

					e, found := c.Get(ctx, tenant, "key")
					assert.True(t, found)
					assert.Equal(t, v, e.Value)
				}
			}()
		}

		wg.Wait()
		assert.Equal(t, 20, c.Len())
	})
}

func TestTenantCache_concurrentWriters(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c *tenantcache.TenantCache[string]) {
		ctx := context.Background()
		now := time.Now()
		n := 100

		written := make(map[string]time.Time, n)
		for i := 0; i < n; i++ {
			written["v"+strconv.Itoa(i)] = now.Add(time.Duration(i) * time.Second)
		}

		start := make(chan struct{})
		wg := sync.WaitGroup{}

		for v, exp := range written {
			v, exp := v, exp

			wg.Add(1)

			go func() {
				defer wg.Done()
				<-start

				c.Put(ctx, "T", "K", v, exp, exp)
			}()
		}

		close(start)
		wg.Wait()

		e, found := c.Get(ctx, "T", "K")
		require.True(t, found)
		require.Contains(t, written, e.Value)

		// Value and expiration come from the same write.
		assert.Equal(t, written[e.Value], e.HardExpireAt)
		assert.Equal(t, written[e.Value], e.SoftExpireAt)
		assert.Equal(t, 1, c.Len())
	})
}

func TestTenantCache_Initialize(t *testing.T) {
	c := tenantcache.New[int]()

	wg := sync.WaitGroup{}

	for i := 0; i < 10; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			assert.NoError(t, c.Initialize())
		}()
	}

	wg.Wait()

	ctx := context.Background()
	c.Put(ctx, "T", "K", 1, time.Now(), time.Now())

	// Repeated initialization keeps existing table.
	require.NoError(t, c.Initialize())

	e, found := c.Get(ctx, "T", "K")
	assert.True(t, found)
	assert.Equal(t, 1, e.Value)
}

func TestTenantCache_zeroValue(t *testing.T) {
	var c tenantcache.TenantCache[int]

	ctx := context.Background()

	_, found := c.Get(ctx, "T", "K")
	assert.False(t, found)

	c.Put(ctx, "T", "K", 1, time.Now(), time.Now())
	assert.Equal(t, 1, c.Len())
}

func TestTenantCache_Initialize_invalid(t *testing.T) {
	c := tenantcache.New[int](func(cfg *tenantcache.Config) {
		cfg.Shards = 3
	})

	err := c.Initialize()
	assert.True(t, errors.Is(err, tenantcache.ErrInvalidConfig))
	assert.Equal(t, err, c.Initialize())

	assert.Panics(t, func() {
		c.Put(context.Background(), "T", "K", 1, time.Now(), time.Now())
	})
}

func TestTenantCache_Walk(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c *tenantcache.TenantCache[string]) {
		ctx := context.Background()
		exp := time.Now().Add(time.Hour)

		for i := 0; i < 10; i++ {
			c.Put(ctx, "T", strconv.Itoa(i), "v"+strconv.Itoa(i), exp, exp)
		}

		seen := map[string]string{}
		n, err := c.Walk(func(k tenantcache.Key, e tenantcache.Entry[string]) error {
			assert.Equal(t, tenantcache.TenantID("T"), k.Tenant)
			seen[k.Key] = e.Value

			return nil
		})

		assert.NoError(t, err)
		assert.Equal(t, 10, n)
		assert.Len(t, seen, 10)
		assert.Equal(t, "v3", seen["3"])

		stop := errors.New("stop")
		n, err = c.Walk(func(k tenantcache.Key, e tenantcache.Entry[string]) error {
			return stop
		})

		assert.Equal(t, stop, err)
		assert.Equal(t, 0, n)
	})
}

func TestTenantCache_ExpireTenant(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c *tenantcache.TenantCache[string]) {
		ctx := context.Background()
		exp := time.Now().Add(time.Hour)

		c.Put(ctx, "A", "K", "a", exp, exp)
		c.Put(ctx, "B", "K", "b", exp, exp)

		c.ExpireTenant(ctx, "A")

		now := time.Now()

		e, found := c.Get(ctx, "A", "K")
		assert.True(t, found)
		assert.Equal(t, "a", e.Value)
		assert.Equal(t, tenantcache.HardExpired, e.State(now))

		e, found = c.Get(ctx, "B", "K")
		assert.True(t, found)
		assert.Equal(t, tenantcache.Fresh, e.State(now))

		c.ExpireAll(ctx)

		e, found = c.Get(ctx, "B", "K")
		assert.True(t, found)
		assert.Equal(t, "b", e.Value)
		assert.Equal(t, tenantcache.HardExpired, e.State(time.Now()))
		assert.False(t, e.SoftExpireAt.After(e.HardExpireAt))
	})
}

func TestTenantCache_DeleteTenant(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c *tenantcache.TenantCache[string]) {
		ctx := context.Background()
		exp := time.Now().Add(time.Hour)

		for i := 0; i < 5; i++ {
			c.Put(ctx, "A", strconv.Itoa(i), "a", exp, exp)
			c.Put(ctx, "B", strconv.Itoa(i), "b", exp, exp)
		}

		c.DeleteTenant(ctx, "A")
		assert.Equal(t, 5, c.Len())

		_, found := c.Get(ctx, "A", "1")
		assert.False(t, found)

		_, found = c.Get(ctx, "B", "1")
		assert.True(t, found)

		c.DeleteAll(ctx)
		assert.Equal(t, 0, c.Len())
	})
}

func TestTenantCache_DeleteExpired(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c *tenantcache.TenantCache[string]) {
		ctx := context.Background()
		now := time.Now()

		for i := 0; i < 10; i++ {
			c.Put(ctx, "T", strconv.Itoa(i), "v", now.Add(time.Duration(i)*time.Minute), now)
		}

		// Entries 0-4 hard expired before boundary.
		cnt := c.DeleteExpired(ctx, now.Add(4*time.Minute+time.Second))
		assert.Equal(t, 5, cnt)
		assert.Equal(t, 5, c.Len())

		_, found := c.Get(ctx, "T", "4")
		assert.False(t, found)

		_, found = c.Get(ctx, "T", "5")
		assert.True(t, found)
	})
}

func TestTenantCache_stats(t *testing.T) {
	st := &stats.TrackerMock{}
	c := tenantcache.New[int](func(cfg *tenantcache.Config) {
		cfg.Name = "test"
		cfg.Stats = st
		cfg.Logger = ctxd.NoOpLogger{}
	})

	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	_, _ = c.Get(ctx, "T", "K")
	c.Put(ctx, "T", "K", 1, exp, exp)
	_, _ = c.Get(ctx, "T", "K")
	c.Put(ctx, "T", "K", 2, exp, exp)
	c.Delete(ctx, "T", "K")
	c.Delete(ctx, "T", "K")

	assert.Equal(t, map[string]float64{
		tenantcache.MetricMiss:   1,
		tenantcache.MetricHit:    1,
		tenantcache.MetricWrite:  2,
		tenantcache.MetricDelete: 1,
	}, st.Values())
}

type pointerValue struct {
	n int
}

func TestTenantCache_getReturnsCopy(t *testing.T) {
	c := tenantcache.New[pointerValue]()
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	c.Put(ctx, "T", "K", pointerValue{n: 1}, exp, exp)

	e, _ := c.Get(ctx, "T", "K")
	e.Value.n = 2
	e.HardExpireAt = time.Time{}

	e, _ = c.Get(ctx, "T", "K")
	assert.Equal(t, 1, e.Value.n)
	assert.Equal(t, exp, e.HardExpireAt)
}
