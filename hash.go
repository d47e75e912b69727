package tempuscache

import "github.com/cespare/xxhash/v2"

// segmentHash returns a fast, non-cryptographic hash of key used only to
// pick a segment. Distribution quality affects shard balance, not
// correctness, so any stable hash works here; xxhash is a common choice for
// this exact seam in sharded, concurrent caches.
func segmentHash(key string) uint64 {
	return xxhash.Sum64String(key)
}
