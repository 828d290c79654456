package tenantcache

import "time"

// State is an expiration state of cache entry at a given time.
type State int

// Entry states, transitions are driven by time only.
const (
	// Fresh entry can be served as is.
	Fresh State = iota
	// SoftStale entry can be served, but may be refreshed in background.
	SoftStale
	// HardExpired entry must be treated as missing.
	HardExpired
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case SoftStale:
		return "soft_stale"
	case HardExpired:
		return "hard_expired"
	default:
		return "unknown"
	}
}

// Entry is a copy of cached value with its expiration markers.
//
// SoftExpireAt <= HardExpireAt is a contract of the writer, cache stores both values as given.
type Entry[V any] struct {
	Value        V
	HardExpireAt time.Time
	SoftExpireAt time.Time
}

// HardExpired returns true if entry must not be served at now.
func (e Entry[V]) HardExpired(now time.Time) bool {
	return !now.Before(e.HardExpireAt)
}

// SoftExpired returns true if entry has reached its early refresh marker at now.
func (e Entry[V]) SoftExpired(now time.Time) bool {
	return !now.Before(e.SoftExpireAt)
}

// State returns expiration state at now.
func (e Entry[V]) State(now time.Time) State {
	switch {
	case e.HardExpired(now):
		return HardExpired
	case e.SoftExpired(now):
		return SoftStale
	default:
		return Fresh
	}
}

// StaleFraction returns elapsed fraction of [SoftExpireAt, HardExpireAt) window at now, in [0, 1].
func (e Entry[V]) StaleFraction(now time.Time) float64 {
	switch e.State(now) {
	case Fresh:
		return 0
	case HardExpired:
		return 1
	}

	window := e.HardExpireAt.Sub(e.SoftExpireAt)
	if window <= 0 {
		return 1
	}

	f := float64(now.Sub(e.SoftExpireAt)) / float64(window)
	if f > 1 {
		f = 1
	}

	return f
}

// ShouldRefresh makes a probabilistic early refresh decision.
//
// It returns true for a soft stale entry when rnd, a uniform sample from [0, 1),
// is less than elapsed fraction of stale window. The closer entry is to hard expiration,
// the more likely a refresh, so concurrent readers do not all rebuild at the same instant.
func (e Entry[V]) ShouldRefresh(now time.Time, rnd float64) bool {
	if e.State(now) != SoftStale {
		return false
	}

	return rnd < e.StaleFraction(now)
}

// entry is an immutable stored entry, replaced as a whole on write.
type entry[V any] struct {
	k Key
	e Entry[V]
}
