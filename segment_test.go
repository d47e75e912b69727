package tempuscache

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSegment(maxSize, targetSize, getsPerPromote uint64) *segment[string] {
	return newSegment[string](maxSize, targetSize, getsPerPromote, zerolog.Nop())
}

func putW(s *segment[string], key, value string, weight uint32, now time.Time) {
	b := s.put(key, value, 5*time.Minute, weight, now)
	b.Release()
}

// TestSegmentBasicFill verifies straight-line fill-to-capacity eviction.
func TestSegmentBasicFill(t *testing.T) {
	s := newTestSegment(5, 4, 3)
	now := time.Now()

	for _, k := range []string{"k1", "k2", "k3", "k4", "k5"} {
		putW(s, k, k, 1, now)
	}
	assert.Equal(t, []string{"k5", "k4", "k3", "k2", "k1"}, recencyOrder(s.list))
	assert.EqualValues(t, 5, s.size)

	putW(s, "k6", "k6", 1, now)
	assert.Equal(t, []string{"k6", "k5", "k4", "k3"}, recencyOrder(s.list))
	assert.EqualValues(t, 4, s.size)

	putW(s, "k7", "k7", 1, now)
	assert.Equal(t, []string{"k7", "k6", "k5", "k4", "k3"}, recencyOrder(s.list))
	assert.EqualValues(t, 5, s.size)
}

// TestSegmentWeightedInsertForcesMultiEviction verifies that a single
// heavily-weighted insert can evict more than one entry to make room.
func TestSegmentWeightedInsertForcesMultiEviction(t *testing.T) {
	s := newTestSegment(5, 4, 3)
	now := time.Now()

	for _, k := range []string{"k1", "k2", "k3", "k4", "k5"} {
		putW(s, k, k, 1, now)
	}
	putW(s, "k6", "k6", 1, now)
	require.Equal(t, []string{"k6", "k5", "k4", "k3"}, recencyOrder(s.list))

	putW(s, "k8", "k8", 3, now)
	assert.Equal(t, []string{"k8", "k6"}, recencyOrder(s.list))
	assert.EqualValues(t, 4, s.size)
}

// TestSegmentPromotionCadence verifies an entry is promoted to the head of
// the recency list only on every getsPerPromote-th hit, not every hit.
func TestSegmentPromotionCadence(t *testing.T) {
	s := newTestSegment(5, 4, 3)
	now := time.Now()

	putW(s, "k1", "k1", 1, now)
	putW(s, "k2", "k2", 1, now)
	putW(s, "k3", "k3", 1, now)
	require.Equal(t, []string{"k3", "k2", "k1"}, recencyOrder(s.list))

	for _, k := range []string{"k1", "k1", "k2", "k2", "k3"} {
		b := s.get(k, now)
		require.NotNil(t, b)
		b.Release()
	}
	assert.Equal(t, []string{"k3", "k2", "k1"}, recencyOrder(s.list), "no key has reached its 3rd hit yet")

	b := s.get("k1", now) // k1's 3rd hit
	require.NotNil(t, b)
	b.Release()
	assert.Equal(t, []string{"k1", "k3", "k2"}, recencyOrder(s.list))

	b = s.get("k2", now) // k2's 3rd hit
	require.NotNil(t, b)
	b.Release()
	assert.Equal(t, []string{"k2", "k1", "k3"}, recencyOrder(s.list))
}

// TestSegmentExpirySemantics verifies peek leaves an expired entry in
// place while get evicts it and reports a miss.
func TestSegmentExpirySemantics(t *testing.T) {
	s := newTestSegment(5, 4, 3)
	now := time.Now()

	b := s.put("k1", "v1", 0, 1, now)
	b.Release()
	b = s.put("k2", "v2", 5*time.Minute, 1, now)
	b.Release()

	peeked := s.peek("k1", now)
	require.NotNil(t, peeked, "peek must return an expired entry rather than evicting it")
	assert.Equal(t, "v1", peeked.Value())
	peeked.Release()
	assert.True(t, s.contains("k1"))

	got := s.get("k1", now)
	assert.Nil(t, got, "get must evict an expired entry and report a miss")
	assert.False(t, s.contains("k1"))

	assert.True(t, s.contains("k2"))
}

func TestSegmentDeleteReportsPresence(t *testing.T) {
	s := newTestSegment(5, 4, 3)
	now := time.Now()
	putW(s, "k1", "v1", 1, now)

	assert.True(t, s.delete("k1"))
	assert.False(t, s.delete("k1"))
	assert.False(t, s.contains("k1"))
	assert.EqualValues(t, 0, s.size)
}

func TestSegmentDeletePrefixRemovesMatchingKeysOnly(t *testing.T) {
	s := newTestSegment(100, 80, 3)
	now := time.Now()
	for _, k := range []string{"users:1", "users:2", "orders:1"} {
		putW(s, k, k, 1, now)
	}

	n := s.deletePrefix("users:")
	assert.Equal(t, 2, n)
	assert.False(t, s.contains("users:1"))
	assert.False(t, s.contains("users:2"))
	assert.True(t, s.contains("orders:1"))
	assert.EqualValues(t, 1, s.size)
}

// TestSegmentDeletePrefixHandleMatchSkipsStaleCandidate exercises the
// handle-matching rule deletePrefix's second phase relies on directly: a
// candidate collected in phase one that no longer matches the index's
// current entry for that key must be left alone, exactly as if a
// concurrent put had replaced it between the two phases.
func TestSegmentDeletePrefixHandleMatchSkipsStaleCandidate(t *testing.T) {
	s := newTestSegment(100, 80, 3)
	now := time.Now()
	putW(s, "users:1", "old", 1, now)

	s.lock.RLock()
	stale := s.index["users:1"]
	s.lock.RUnlock()

	putW(s, "users:1", "new", 1, now)
	require.True(t, s.contains("users:1"))

	s.lock.Lock()
	cur, ok := s.index["users:1"]
	matches := ok && cur == stale
	s.lock.Unlock()
	assert.False(t, matches, "a replaced key must no longer match the stale handle deletePrefix observed earlier")
}

func TestSegmentPutReplaceUpdatesSizeAndFreesOldBuffer(t *testing.T) {
	s := newSegment[*removableStub](100, 80, 3, zerolog.Nop())
	now := time.Now()

	released := 0
	v1 := &removableStub{onRemoved: func() { released++ }}
	b := s.put("k1", v1, 5*time.Minute, 2, now)
	b.Release()
	require.EqualValues(t, 2, s.size)

	v2 := &removableStub{}
	b = s.put("k1", v2, 5*time.Minute, 5, now)
	b.Release()

	assert.Equal(t, 1, released, "replaced entry's removal hook must fire exactly once")
	assert.EqualValues(t, 5, s.size)
}

func TestSegmentIndexListAgreement(t *testing.T) {
	s := newTestSegment(100, 80, 3)
	now := time.Now()
	for i := 0; i < 20; i++ {
		putW(s, string(rune('a'+i)), "v", 1, now)
	}

	keys := s.snapshotKeys()
	require.Equal(t, 20, len(keys))

	inList := make(map[string]bool)
	for n := s.list.head.next; n != s.list.tail; n = n.next {
		inList[n.entry.key] = true
	}
	assert.Equal(t, len(keys), len(inList))
	for _, k := range keys {
		assert.True(t, inList[k], "key %s present in index but missing from recency list", k)
	}
}
