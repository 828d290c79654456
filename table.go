package tenantcache

// table is a concurrent storage of immutable entries.
//
// Entries are stored by pointer and never mutated after store, so a reader
// always observes a value together with its own expiration markers.
type table[V any] interface {
	load(k Key) (*entry[V], bool)
	store(k Key, e *entry[V])
	delete(k Key) bool

	// compute atomically replaces (or deletes with nil result) an entry for key.
	compute(k Key, fn func(e *entry[V], found bool) *entry[V])

	// walk iterates entries, fn may modify table.
	walk(fn func(e *entry[V]) bool)
	len() int
}
