package tenantcache

// Metric names reported to stats.Tracker, every metric is labeled with "name".
const (
	MetricHit       = "cache_hit"
	MetricMiss      = "cache_miss"
	MetricWrite     = "cache_write"
	MetricDelete    = "cache_delete"
	MetricExpired   = "cache_expired"
	MetricSoftStale = "cache_soft_stale"
	MetricItems     = "cache_items"
	MetricBuild     = "cache_build"
	MetricFailed    = "cache_failed"
	MetricRefreshed = "cache_refreshed"
)
