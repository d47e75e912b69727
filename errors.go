package tempuscache

import "errors"

// Configuration errors, returned synchronously from New.
var (
	// ErrSegmentCountNotPow2 is returned when Config.SegmentCount is not a
	// power of two.
	ErrSegmentCountNotPow2 = errors.New("tempuscache: segment count must be a power of two")

	// ErrShrinkRatioInvalid is returned when Config.ShrinkRatio is outside (0, 1].
	ErrShrinkRatioInvalid = errors.New("tempuscache: shrink ratio must be in (0, 1]")
)

// ErrAllocFail is kept as a sentinel for API parity with manual-allocator
// cache designs. Go's allocator has no recoverable failure path the way a
// manual allocator does, so no operation in this package ever returns it.
var ErrAllocFail = errors.New("tempuscache: allocation failed")

// ErrDoubleRelease is the panic value used when a Borrowed handle's Release
// is called more than once. Refcount underflow is caught with an assertion
// and turned into a panic rather than silently corrupting the refcount.
var ErrDoubleRelease = errors.New("tempuscache: release called more than once on the same borrow")
