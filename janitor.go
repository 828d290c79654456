package tenantcache

import (
	"context"
	"sync"
	"time"

	"github.com/bool64/ctxd"
	"github.com/bool64/stats"
)

// JanitorConfig controls background removal of expired entries.
type JanitorConfig struct {
	// Logger is an instance of contextualized logger, can be nil.
	Logger ctxd.Logger

	// Stats is metrics collector, can be nil.
	Stats stats.Tracker

	// Name is cache instance name, used in stats and logging.
	Name string

	// DeleteExpiredAfter is delay before hard expired entry is deleted from cache, default 1h.
	DeleteExpiredAfter time.Duration

	// DeleteExpiredJobInterval is delay between two consecutive cleanups, default 10m.
	DeleteExpiredJobInterval time.Duration

	// ItemsCountReportInterval is items count metric report interval, default 1m.
	ItemsCountReportInterval time.Duration

	// Now is a time source, default time.Now.
	Now func() time.Time
}

// Sweeper removes expired entries.
type Sweeper interface {
	DeleteExpired(ctx context.Context, before time.Time) int
	Len() int
}

var _ Sweeper = &TenantCache[int]{}

// Janitor periodically deletes expired entries of a cache.
//
// Please use NewJanitor to create instance and Close to stop it.
type Janitor struct {
	cache     Sweeper
	config    JanitorConfig
	closed    chan struct{}
	closeOnce sync.Once
	done      sync.WaitGroup
}

// NewJanitor starts background cleanup of a cache.
func NewJanitor(c Sweeper, options ...func(cfg *JanitorConfig)) *Janitor {
	config := JanitorConfig{}

	for _, option := range options {
		option(&config)
	}

	if config.DeleteExpiredAfter == 0 {
		config.DeleteExpiredAfter = time.Hour
	}

	if config.DeleteExpiredJobInterval == 0 {
		config.DeleteExpiredJobInterval = 10 * time.Minute
	}

	if config.ItemsCountReportInterval == 0 {
		config.ItemsCountReportInterval = time.Minute
	}

	if config.Now == nil {
		config.Now = time.Now
	}

	j := &Janitor{
		cache:  c,
		config: config,
		closed: make(chan struct{}),
	}

	j.done.Add(1)

	go j.cleaner()

	if config.Stats != nil {
		j.done.Add(1)

		go j.reportItemsCount()
	}

	return j
}

// Close stops background jobs and waits for them to finish.
func (j *Janitor) Close() {
	j.closeOnce.Do(func() {
		close(j.closed)
	})

	j.done.Wait()
}

// Sweep deletes entries that are hard expired longer than DeleteExpiredAfter.
func (j *Janitor) Sweep(ctx context.Context) int {
	boundary := j.config.Now().Add(-j.config.DeleteExpiredAfter)
	cnt := j.cache.DeleteExpired(ctx, boundary)

	if j.config.Logger != nil {
		j.config.Logger.Debug(ctx, "cleared expired cache items",
			"name", j.config.Name,
			"count", cnt,
			"boundary", boundary,
		)
	}

	return cnt
}

func (j *Janitor) cleaner() {
	defer j.done.Done()

	ticker := time.NewTicker(j.config.DeleteExpiredJobInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.Sweep(context.Background())
		case <-j.closed:
			return
		}
	}
}

func (j *Janitor) reportItemsCount() {
	defer j.done.Done()

	ticker := time.NewTicker(j.config.ItemsCountReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			count := j.cache.Len()

			if j.config.Logger != nil {
				j.config.Logger.Debug(context.Background(), "cache items count",
					"name", j.config.Name,
					"count", count,
				)
			}

			j.config.Stats.Set(context.Background(), MetricItems, float64(count), "name", j.config.Name)
		case <-j.closed:
			return
		}
	}
}
