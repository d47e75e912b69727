package tempuscache

import (
	"sync/atomic"
	"time"
)

// entry is the per-cached-item record. hits and refcount are accessed
// without any lock: hit fires after the segment's shared (read) lock has
// been dropped, from many goroutines at once, and borrow/release race with
// each other from goroutines that may hold a segment lock or none, so both
// must be atomic.
type entry[T any] struct {
	key       string
	value     T
	expiresAt int64 // unix seconds
	weight    uint32

	hits     atomic.Uint64
	refcount atomic.Int64

	nodeRef *node[T]
}

func newEntry[T any](key string, value T, expiresAt int64, weight uint32) *entry[T] {
	e := &entry[T]{
		key:       key,
		value:     value,
		expiresAt: expiresAt,
		weight:    weight,
	}
	e.refcount.Store(1) // the cache's own reference
	e.nodeRef = &node[T]{entry: e}
	return e
}

// ttl returns the signed number of seconds remaining before e expires.
func (e *entry[T]) ttl(now time.Time) int64 {
	return e.expiresAt - now.Unix()
}

// expired reports whether e's ttl has reached zero or gone negative.
func (e *entry[T]) expired(now time.Time) bool {
	return e.ttl(now) <= 0
}

// hit atomically increments the hit counter and returns the post-increment
// (wrapping) value.
func (e *entry[T]) hit() uint64 {
	return e.hits.Add(1)
}

// borrow atomically increments the reference count. Every borrowed handle
// handed to a caller must eventually call release exactly once.
func (e *entry[T]) borrow() {
	e.refcount.Add(1)
}

// release atomically decrements the reference count. When it reaches zero,
// the node backing e must already be detached from its recency list; the
// value's removal hook fires exactly once, here.
func (e *entry[T]) release() {
	n := e.refcount.Add(-1)
	if n < 0 {
		panic(ErrDoubleRelease)
	}
	if n == 0 {
		if e.nodeRef.prev != nil || e.nodeRef.next != nil {
			panic("tempuscache: entry released while still linked into its recency list")
		}
		notifyRemoved(e.value)
		e.nodeRef.entry = nil
		e.nodeRef = nil
	}
}
