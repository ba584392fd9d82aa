package gpucache

import "errors"

// Errors returned by the caches and devices.
//
// ErrCreateFailed and ErrAllocationFailed are fatal: the renderer cannot
// produce correct frames after either and should stop. ErrPoolExhausted and
// ErrPoolFragmented are reported by devices and handled by DescriptorCache
// through pool growth.
var (
	// ErrCreateFailed wraps a driver failure creating a layout, render pass,
	// framebuffer or descriptor pool.
	ErrCreateFailed = errors.New("gpucache: driver object creation failed")

	// ErrAllocationFailed is returned when a descriptor set cannot be
	// allocated even from a freshly grown pool.
	ErrAllocationFailed = errors.New("gpucache: descriptor set allocation failed after pool growth")

	// ErrPoolExhausted is reported by a Device when a pool has no room left.
	ErrPoolExhausted = errors.New("gpucache: descriptor pool exhausted")

	// ErrPoolFragmented is reported by a Device when a pool has room in
	// total but cannot satisfy the request contiguously.
	ErrPoolFragmented = errors.New("gpucache: descriptor pool fragmented")

	// ErrUnknownRenderPass is returned when a FrameBufferKey names a render
	// pass that the paired RenderPassCache does not own.
	ErrUnknownRenderPass = errors.New("gpucache: framebuffer references unknown render pass")

	// ErrInvalidKey is returned for keys that cannot describe a driver object.
	ErrInvalidKey = errors.New("gpucache: invalid key")

	// ErrClosed is returned by operations on a destroyed cache.
	ErrClosed = errors.New("gpucache: cache destroyed")
)

// isPoolFull reports whether err means the pool must be replaced.
func isPoolFull(err error) bool {
	return errors.Is(err, ErrPoolExhausted) || errors.Is(err, ErrPoolFragmented)
}
