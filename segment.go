package tempuscache

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// segment is one shard of the cache: its own index, recency list, size
// budget, and lock. All cross-goroutine coordination within a shard funnels
// through segment.lock and segment.list's own mutex. When both are held
// (shrink), segment.lock is taken first; the list's mutex is never held
// while acquiring segment.lock.
type segment[T any] struct {
	lock sync.RWMutex
	// index maps key to the entry currently holding that key. Guarded by
	// lock, like size.
	index map[string]*entry[T]
	size  uint64

	list *recencyList[T]

	maxSize        uint64
	targetSize     uint64
	getsPerPromote uint64

	log zerolog.Logger
}

func newSegment[T any](maxSize, targetSize uint64, getsPerPromote uint64, log zerolog.Logger) *segment[T] {
	return &segment[T]{
		index:          make(map[string]*entry[T]),
		list:           newRecencyList[T](),
		maxSize:        maxSize,
		targetSize:     targetSize,
		getsPerPromote: getsPerPromote,
		log:            log,
	}
}

// contains reports whether key is present in the index. It does not check
// expiry: an expired-but-not-yet-evicted entry still counts as present.
func (s *segment[T]) contains(key string) bool {
	s.lock.RLock()
	_, ok := s.index[key]
	s.lock.RUnlock()
	return ok
}

// get returns a borrowed handle for key, or nil if absent or expired. An
// expired entry is removed as a side effect. The borrow must happen while
// still holding the shared lock, or a concurrent delete could observe
// refcount == 1 and destroy the entry out from under this call.
func (s *segment[T]) get(key string, now time.Time) *Borrowed[T] {
	s.lock.RLock()
	e, ok := s.index[key]
	if !ok {
		s.lock.RUnlock()
		return nil
	}
	e.borrow()
	s.lock.RUnlock()

	if e.expired(now) {
		e.release() // drop the borrow taken above
		s.evictIfCurrent(key, e)
		return nil
	}

	h := e.hit()
	if s.getsPerPromote == 0 || h%s.getsPerPromote == 0 {
		s.list.moveToFront(e.nodeRef)
	}
	return newBorrowed(e)
}

// evictIfCurrent removes key from the index iff it still maps to e, then
// unlinks e's node and releases the cache's reference on it. Used by get
// when it discovers an expired entry.
func (s *segment[T]) evictIfCurrent(key string, e *entry[T]) {
	s.lock.Lock()
	cur, ok := s.index[key]
	removed := ok && cur == e
	if removed {
		delete(s.index, key)
		s.size -= uint64(e.weight)
	}
	s.lock.Unlock()

	if removed {
		s.list.unlink(e.nodeRef)
		e.release()
	}
}

// peek returns a borrowed handle for key, or nil if absent. Unlike get, it
// never evicts or promotes an expired entry: expired entries are left in
// place as eviction candidates.
func (s *segment[T]) peek(key string, now time.Time) *Borrowed[T] {
	s.lock.RLock()
	e, ok := s.index[key]
	if !ok {
		s.lock.RUnlock()
		return nil
	}
	e.borrow()
	s.lock.RUnlock()

	if !e.expired(now) {
		h := e.hit()
		if s.getsPerPromote == 0 || h%s.getsPerPromote == 0 {
			s.list.moveToFront(e.nodeRef)
		}
	}
	return newBorrowed(e)
}

// put inserts or replaces key's value and returns a borrowed handle to the
// new entry. It runs the shrink protocol if the segment's size budget is
// now exceeded.
func (s *segment[T]) put(key string, value T, ttl time.Duration, weight uint32, now time.Time) *Borrowed[T] {
	expiresAt := now.Add(ttl).Unix()
	w := effectiveWeight(value, weight)
	e := newEntry(key, value, expiresAt, w)

	var displaced *entry[T]
	var sizeAfter uint64

	s.lock.Lock()
	if old, ok := s.index[key]; ok {
		displaced = old
		s.size = s.size - uint64(old.weight) + uint64(w)
	} else {
		s.size += uint64(w)
	}
	s.index[key] = e
	sizeAfter = s.size
	s.lock.Unlock()

	if displaced != nil {
		s.list.unlink(displaced.nodeRef)
		displaced.release()
	}

	s.list.insert(e.nodeRef)

	if sizeAfter > s.maxSize {
		s.shrink()
	}

	e.borrow() // the caller's reference; cache already holds its own
	return newBorrowed(e)
}

// shrink evicts tail entries until the segment's size is at or under its
// target size, or the list runs dry. Pop-and-release happens under the
// segment's exclusive lock, which is legal because the value's removal
// hook (capabilities.go) is documented as forbidden from re-entering the
// cache; an implementation preferring to defer releases until after the
// lock is dropped would batch the popped entries instead, see DESIGN.md.
func (s *segment[T]) shrink() {
	s.lock.Lock()
	defer s.lock.Unlock()

	evicted := 0
	for s.size > s.targetSize {
		n := s.list.popTail()
		if n == nil {
			break
		}
		e := n.entry
		delete(s.index, e.key)
		s.size -= uint64(e.weight)
		e.release()
		evicted++
	}

	if evicted > 0 && s.log.GetLevel() <= zerolog.DebugLevel {
		s.log.Debug().Int("evicted", evicted).Uint64("size", s.size).Msg("segment shrink")
	}
}

// delete removes key from the index, if present, and releases the cache's
// reference on the removed entry.
func (s *segment[T]) delete(key string) bool {
	s.lock.Lock()
	e, ok := s.index[key]
	if !ok {
		s.lock.Unlock()
		return false
	}
	delete(s.index, key)
	s.size -= uint64(e.weight)
	s.lock.Unlock()

	s.list.unlink(e.nodeRef)
	e.release()
	return true
}

// deletePrefix removes every key currently starting with prefix and
// returns the count removed. It runs as a two-phase scan (collect under a
// shared lock, then remove under an exclusive lock) to minimize exclusive
// lock duration; an entry re-inserted under the same key between the two
// phases is left alone, because phase two only removes a mapping that
// still points at the handle observed in phase one.
func (s *segment[T]) deletePrefix(prefix string) int {
	s.lock.RLock()
	candidates := make([]*entry[T], 0)
	for k, e := range s.index {
		if strings.HasPrefix(k, prefix) {
			candidates = append(candidates, e)
		}
	}
	s.lock.RUnlock()

	if len(candidates) == 0 {
		return 0
	}

	removed := make([]*entry[T], 0, len(candidates))
	s.lock.Lock()
	for _, e := range candidates {
		if cur, ok := s.index[e.key]; ok && cur == e {
			delete(s.index, e.key)
			s.size -= uint64(e.weight)
			removed = append(removed, e)
		}
	}
	s.lock.Unlock()

	for _, e := range removed {
		s.list.unlink(e.nodeRef)
		e.release()
	}
	return len(removed)
}

// snapshotKeys returns every key currently in the index, sorted, for test
// and invariant-checking use only.
func (s *segment[T]) snapshotKeys() []string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	keys := make([]string, 0, len(s.index))
	for k := range s.index {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// close tears the segment down: every entry is unlinked and released so
// its removal hook fires.
func (s *segment[T]) close() {
	s.lock.Lock()
	entries := make([]*entry[T], 0, len(s.index))
	for _, e := range s.index {
		entries = append(entries, e)
	}
	s.index = make(map[string]*entry[T])
	s.size = 0
	s.lock.Unlock()

	for _, e := range entries {
		s.list.unlink(e.nodeRef)
		e.release()
	}
}
