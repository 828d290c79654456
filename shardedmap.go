package tenantcache

import (
	"sync"
)

var _ table[int] = &shardedTable[int]{}

type bucket[V any] struct {
	sync.RWMutex
	data map[Key]*entry[V]
}

// shardedTable is a table of RWMutex-protected maps, bucket is selected with key hash.
type shardedTable[V any] struct {
	buckets []bucket[V]
	mask    uint64
}

func newShardedTable[V any](shards int, sizeHint int) *shardedTable[V] {
	t := &shardedTable[V]{
		buckets: make([]bucket[V], shards),
		mask:    uint64(shards - 1),
	}

	for i := range t.buckets {
		t.buckets[i].data = make(map[Key]*entry[V], sizeHint/shards)
	}

	return t
}

func (t *shardedTable[V]) pick(k Key) *bucket[V] {
	return &t.buckets[k.hash(0)&t.mask]
}

func (t *shardedTable[V]) load(k Key) (*entry[V], bool) {
	b := t.pick(k)

	b.RLock()
	e, found := b.data[k]
	b.RUnlock()

	return e, found
}

func (t *shardedTable[V]) store(k Key, e *entry[V]) {
	b := t.pick(k)

	b.Lock()
	b.data[k] = e
	b.Unlock()
}

func (t *shardedTable[V]) delete(k Key) bool {
	b := t.pick(k)

	b.Lock()
	_, found := b.data[k]
	delete(b.data, k)
	b.Unlock()

	return found
}

func (t *shardedTable[V]) compute(k Key, fn func(e *entry[V], found bool) *entry[V]) {
	b := t.pick(k)

	b.Lock()
	defer b.Unlock()

	e, found := b.data[k]

	if e = fn(e, found); e == nil {
		delete(b.data, k)
	} else {
		b.data[k] = e
	}
}

func (t *shardedTable[V]) walk(fn func(e *entry[V]) bool) {
	entries := make([]*entry[V], 0, 100)

	for i := range t.buckets {
		b := &t.buckets[i]

		// Collecting bucket snapshot to release lock before calling fn, so that fn can modify table.
		entries = entries[:0]

		b.RLock()
		for _, e := range b.data {
			entries = append(entries, e)
		}
		b.RUnlock()

		for _, e := range entries {
			if !fn(e) {
				return
			}
		}
	}
}

func (t *shardedTable[V]) len() int {
	cnt := 0

	for i := range t.buckets {
		b := &t.buckets[i]

		b.RLock()
		cnt += len(b.data)
		b.RUnlock()
	}

	return cnt
}
