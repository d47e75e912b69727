package tempuscache

import (
	"fmt"
	"math/bits"
	"time"
)

/*
Cache is a thread-safe, expiration-aware, sharded cache with an
LRU-with-frequency-bias eviction policy, generic over a caller-supplied
value type T.

================================================================================
ARCHITECTURAL OVERVIEW
================================================================================

Cache is a thin façade over a fixed array of segments:

  1. segments []*segment[T]
     - Each segment owns its own index, recency list, lock, and size
       budget. Segments are fully independent of one another.

  2. segmentMask uint64
     - segmentCount is always a power of two, so segment selection is a
       mask instead of a modulo: segments[hash(key) & segmentMask].

Every per-key operation hashes the key once and dispatches to exactly one
segment; only delete-by-prefix fans out across all of them.

================================================================================
CONCURRENCY MODEL
================================================================================

At most one segment lock is ever held by a given call. Segments are
disjoint, so concurrent operations on different shards never contend with
each other. Within a segment, see segment.go for the lock-ordering rule
between its RWMutex and its recency list's own mutex.

================================================================================
EXPIRATION AND EVICTION
================================================================================

Lazy expiration happens on Get, which evicts an expired entry it
discovers; Peek deliberately leaves expired entries in place so they
remain candidates for size-driven eviction. There is no background
janitor: eviction is triggered only by Put pushing a segment over its
max size (see segment.shrink), never by a timer. A caller that wants
proactive cleanup of rarely-read expired keys should call Get or
rely on shrink pressure; this cache trades a background goroutine for
simplicity and predictable eviction timing.
*/
type Cache[T any] struct {
	segments    []*segment[T]
	segmentMask uint64

	perSegmentMaxSize uint64
	segmentCount      uint32
}

/*
New initializes and returns a configured Cache.

CONFIGURATION MODEL:
Construction-time settings are supplied via the functional options
pattern (options.go), layered over defaultConfig(). Options close over a
value Config rather than a concrete *Cache receiver, since Cache is
generic over T and Option cannot close over a *Cache[T] without itself
being generic.

VALIDATION:
SegmentCount must be a power of two (ErrSegmentCountNotPow2) and
ShrinkRatio must lie in (0, 1] (ErrShrinkRatioInvalid); both are checked
before any segment is allocated.

INITIALIZATION STEPS:
1. Resolve Config from defaults + options.
2. Validate SegmentCount and ShrinkRatio.
3. Compute per-segment maxSize = floor(MaxSize / SegmentCount) and
   targetSize = maxSize - floor(maxSize * ShrinkRatio).
4. Construct SegmentCount independent segments.
*/
func New[T any](opts ...Option) (*Cache[T], error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.SegmentCount == 0 || bits.OnesCount32(cfg.SegmentCount) != 1 {
		return nil, ErrSegmentCountNotPow2
	}
	if cfg.ShrinkRatio <= 0 || cfg.ShrinkRatio > 1 {
		return nil, ErrShrinkRatioInvalid
	}

	perSegmentMax := uint64(cfg.MaxSize) / uint64(cfg.SegmentCount)
	targetSize := perSegmentMax - uint64(float64(perSegmentMax)*cfg.ShrinkRatio)

	getsPerPromote := uint64(cfg.GetsPerPromote)
	if getsPerPromote == 0 {
		getsPerPromote = 1
	}

	segments := make([]*segment[T], cfg.SegmentCount)
	for i := range segments {
		segments[i] = newSegment[T](perSegmentMax, targetSize, getsPerPromote, cfg.Logger)
	}

	cfg.Logger.Debug().
		Uint32("segment_count", cfg.SegmentCount).
		Uint64("per_segment_max_size", perSegmentMax).
		Uint64("per_segment_target_size", targetSize).
		Msg("tempuscache: cache constructed")

	return &Cache[T]{
		segments:          segments,
		segmentMask:       uint64(cfg.SegmentCount) - 1,
		perSegmentMaxSize: perSegmentMax,
		segmentCount:      cfg.SegmentCount,
	}, nil
}

// segmentFor returns the segment responsible for key.
func (c *Cache[T]) segmentFor(key string) *segment[T] {
	return c.segments[segmentHash(key)&c.segmentMask]
}

// Contains reports whether key is present, without regard to expiry.
func (c *Cache[T]) Contains(key string) bool {
	return c.segmentFor(key).contains(key)
}

// Get returns a borrowed handle for key, or nil if absent or expired. An
// expired entry found this way is removed as a side effect. The caller
// must call Release on the returned handle exactly once.
func (c *Cache[T]) Get(key string) *Borrowed[T] {
	return c.segmentFor(key).get(key, time.Now())
}

// Peek returns a borrowed handle for key without evicting or promoting an
// expired entry. The caller must call Release on the returned handle
// exactly once.
func (c *Cache[T]) Peek(key string) *Borrowed[T] {
	return c.segmentFor(key).peek(key, time.Now())
}

// Put inserts or replaces key's value and returns a borrowed handle to the
// stored entry. The default TTL is 300 seconds and the default weight is
// 1; both can be overridden with WithTTL/WithWeight, and weight is
// overridden unconditionally if the value implements Weighted. The caller
// must call Release on the returned handle exactly once.
func (c *Cache[T]) Put(key string, value T, opts ...PutOption) *Borrowed[T] {
	o := defaultPutOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return c.segmentFor(key).put(key, value, o.ttl, o.weight, time.Now())
}

// Delete removes key, if present, and reports whether it was found.
func (c *Cache[T]) Delete(key string) bool {
	return c.segmentFor(key).delete(key)
}

// DeletePrefix removes every key currently starting with prefix across all
// segments and returns the total count removed. Keys inserted concurrently
// with the call may or may not survive.
func (c *Cache[T]) DeletePrefix(prefix string) int {
	total := 0
	for _, s := range c.segments {
		total += s.deletePrefix(prefix)
	}
	return total
}

// Loader populates a cache miss for key. It returns (value, true, nil) on
// success, (zero, false, nil) if there is genuinely no value for key, or
// (zero, false, err) on failure.
type Loader[T any] func(state any, key string) (value T, ok bool, err error)

// Fetch returns a borrowed handle for key, invoking loader to populate the
// cache on a miss. There is no duplicate-call suppression: two concurrent
// Fetch calls racing on the same missing key may both invoke loader, and
// the second Put simply replaces the first's entry. Returns (nil, nil) if
// the loader reports no value for key; returns (nil, err) if the loader
// fails, with no mutation to the cache.
func (c *Cache[T]) Fetch(key string, loader Loader[T], state any, opts ...PutOption) (*Borrowed[T], error) {
	if b := c.Get(key); b != nil {
		return b, nil
	}

	value, ok, err := loader(state, key)
	if err != nil {
		return nil, fmt.Errorf("tempuscache: loader: %w", err)
	}
	if !ok {
		return nil, nil
	}

	return c.Put(key, value, opts...), nil
}

// MaxSizeEffective returns the aggregate weight budget actually enforced,
// which may be less than the configured MaxSize because of floor division
// across segments. This is a documented contract, not a bug.
func (c *Cache[T]) MaxSizeEffective() uint64 {
	return c.perSegmentMaxSize * uint64(c.segmentCount)
}

// Close tears down the cache: every segment is drained, unlinking every
// node from its recency list and releasing the cache's reference on every
// entry so removal hooks fire. Safe to call from a defer since closing an
// already-empty segment is a no-op.
func (c *Cache[T]) Close() {
	for _, s := range c.segments {
		s.close()
	}
}
