// Package tenantcache provides an in-memory multi-tenant cache with hard and soft expiration.
//
// Features:
//
//   - Entries are isolated by tenant, equal keys of different tenants never collide.
//   - Lock-free (xsync) or sharded (RWMutex) concurrent tables.
//   - Cache is a passive store, it keeps expiration markers and leaves their evaluation to callers.
//   - Soft expiration enables probabilistic early refresh to avoid synchronized rebuilds.
//   - Loader coalesces concurrent builds of the same key and caches build errors with low TTL.
//   - Janitor removes hard expired entries in background.
//   - Tenant views implement github.com/bool64/cache contracts.
//   - Allows logging, stats collection.
//   - Allows mass expiration and removal, for whole cache or a single tenant.
package tenantcache
