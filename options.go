package tempuscache

import (
	"time"

	"github.com/rs/zerolog"
)

// Config holds construction-time settings for a Cache. New starts from
// the defaults in defaultConfig and applies each Option to it in order; a
// field an Option sets to zero keeps that zero value.
type Config struct {
	MaxSize        uint32
	SegmentCount   uint32
	GetsPerPromote uint8
	ShrinkRatio    float64
	Logger         zerolog.Logger
}

func defaultConfig() Config {
	return Config{
		MaxSize:        8000,
		SegmentCount:   8,
		GetsPerPromote: 5,
		ShrinkRatio:    0.2,
		Logger:         defaultLogger(),
	}
}

// Option configures a Cache at construction time, using a value-typed
// Config rather than mutating the Cache struct directly: Cache itself is
// generic over T, Config is not, so options stay simple functions of
// Config.
type Option func(*Config)

// WithMaxSize overrides the aggregate weight budget across all segments.
func WithMaxSize(n uint32) Option {
	return func(c *Config) { c.MaxSize = n }
}

// WithSegmentCount overrides the shard count. Must be a power of two.
func WithSegmentCount(n uint32) Option {
	return func(c *Config) { c.SegmentCount = n }
}

// WithGetsPerPromote overrides the number of hits (successful gets, and
// peeks of an unexpired entry) between consecutive promotions of the same
// entry. Zero is treated as 1.
func WithGetsPerPromote(n uint8) Option {
	return func(c *Config) { c.GetsPerPromote = n }
}

// WithShrinkRatio overrides the fraction of a segment's max size freed on
// overflow. Must be in (0, 1].
func WithShrinkRatio(r float64) Option {
	return func(c *Config) { c.ShrinkRatio = r }
}

// WithLogger attaches a structured logger. The default is a no-op logger,
// so a Cache built with zero options never logs anything.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// putOptions holds per-insert overrides for Put and Fetch.
type putOptions struct {
	ttl    time.Duration
	weight uint32
}

func defaultPutOptions() putOptions {
	return putOptions{
		ttl:    300 * time.Second,
		weight: 1,
	}
}

// PutOption overrides a single insertion's TTL or weight.
type PutOption func(*putOptions)

// WithTTL overrides the default 300s time-to-live for one insertion. A ttl
// of zero produces an immediately-expired entry, which remains visible to
// Peek and Contains until Get observes it or it is evicted by a shrink.
func WithTTL(ttl time.Duration) PutOption {
	return func(o *putOptions) { o.ttl = ttl }
}

// WithWeight overrides the default weight of 1 for one insertion. Ignored
// if the value implements Weighted.
func WithWeight(w uint32) PutOption {
	return func(o *putOptions) { o.weight = w }
}
