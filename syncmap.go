package tenantcache

import (
	"github.com/puzpuzpuz/xsync/v3"
)

var _ table[int] = &syncTable[int]{}

// syncTable is a lock-free table backed by xsync.MapOf.
type syncTable[V any] struct {
	data *xsync.MapOf[Key, *entry[V]]
}

func newSyncTable[V any](sizeHint int) *syncTable[V] {
	var options []func(*xsync.MapConfig)

	if sizeHint > 0 {
		options = append(options, xsync.WithPresize(sizeHint))
	}

	return &syncTable[V]{
		data: xsync.NewMapOfWithHasher[Key, *entry[V]](Key.hash, options...),
	}
}

func (t *syncTable[V]) load(k Key) (*entry[V], bool) {
	return t.data.Load(k)
}

func (t *syncTable[V]) store(k Key, e *entry[V]) {
	t.data.Store(k, e)
}

func (t *syncTable[V]) delete(k Key) bool {
	_, found := t.data.LoadAndDelete(k)

	return found
}

func (t *syncTable[V]) compute(k Key, fn func(e *entry[V], found bool) *entry[V]) {
	t.data.Compute(k, func(oldValue *entry[V], loaded bool) (*entry[V], bool) {
		newValue := fn(oldValue, loaded)

		return newValue, newValue == nil
	})
}

func (t *syncTable[V]) walk(fn func(e *entry[V]) bool) {
	t.data.Range(func(_ Key, value *entry[V]) bool {
		return fn(value)
	})
}

func (t *syncTable[V]) len() int {
	return t.data.Size()
}
