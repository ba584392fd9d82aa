package gpucache

import (
	"fmt"

	"github.com/gogpu/gpucache/internal/cache"
)

type frameBufferEntry = cache.Entry[FrameBufferKey, FrameBufferHandle]

// FrameBufferCache deduplicates framebuffers built on the render passes of
// one RenderPassCache.
//
// Each cached framebuffer holds a reference on its render pass, released when
// the framebuffer is pruned. The two caches share one prune clock: Prune on
// either advances it once and sweeps framebuffers, then render passes.
type FrameBufferCache struct {
	device Device
	passes *RenderPassCache
	table  *cache.Table[FrameBufferKey, FrameBufferHandle]
	stats  counters
}

// NewFrameBufferCache creates an empty framebuffer cache attached to passes.
// A RenderPassCache carries at most one framebuffer cache; attaching a second
// replaces the first in the prune sweep.
func NewFrameBufferCache(passes *RenderPassCache) *FrameBufferCache {
	c := &FrameBufferCache{
		device: passes.device,
		passes: passes,
		table:  cache.NewTable[FrameBufferKey, FrameBufferHandle](),
	}
	passes.fbs = c
	return c
}

// GetFrameBuffer returns the framebuffer for key, creating it on first use.
//
// key.RenderPass must be a live handle of the attached RenderPassCache,
// otherwise ErrUnknownRenderPass is returned. Attachments are passed to the
// device as non-null colors in slot order, then non-null resolves, then
// depth. Layers 0 is created as 1.
func (c *FrameBufferCache) GetFrameBuffer(key FrameBufferKey) (FrameBufferHandle, error) {
	if c.passes.closed {
		return 0, ErrClosed
	}
	if e := c.table.Lookup(key); e != nil {
		cache.Touch(&c.passes.clock, e, nil)
		c.stats.hits.Add(1)
		return e.Value, nil
	}
	if !c.passes.owns(key.RenderPass) {
		return 0, fmt.Errorf("%w: %d", ErrUnknownRenderPass, key.RenderPass)
	}

	desc, err := frameBufferDescriptor(&key)
	if err != nil {
		return 0, err
	}
	fb, err := c.device.CreateFrameBuffer(desc)
	if err != nil {
		Logger().Error("gpucache: framebuffer creation failed",
			"width", key.Width, "height", key.Height, "attachments", len(desc.Attachments), "error", err)
		return 0, fmt.Errorf("%w: framebuffer: %w", ErrCreateFailed, err)
	}

	c.passes.acquire(key.RenderPass)
	c.table.Insert(&frameBufferEntry{Key: key, Value: fb, Tick: c.passes.clock.Now()})
	c.stats.misses.Add(1)
	Logger().Debug("gpucache: framebuffer created",
		"width", key.Width, "height", key.Height, "attachments", len(desc.Attachments))
	return fb, nil
}

// Prune runs the shared render-target sweep. See RenderPassCache.Prune.
func (c *FrameBufferCache) Prune() int {
	return c.passes.Prune()
}

// sweep destroys aged framebuffers and releases their render passes.
func (c *FrameBufferCache) sweep() int {
	clock := &c.passes.clock
	n := c.table.Sweep(func(e *frameBufferEntry) bool {
		if !clock.Aged(e.Tick) {
			return false
		}
		c.device.DestroyFrameBuffer(e.Value)
		c.passes.release(e.Key.RenderPass)
		return true
	})
	if n > 0 {
		c.stats.evictions.Add(uint64(n))
		Logger().Debug("gpucache: framebuffers pruned", "count", n, "tick", clock.Now())
	}
	return n
}

// destroyAll destroys every cached framebuffer and releases its references.
func (c *FrameBufferCache) destroyAll() {
	c.table.Range(func(e *frameBufferEntry) bool {
		c.device.DestroyFrameBuffer(e.Value)
		c.passes.release(e.Key.RenderPass)
		return true
	})
	c.table.Clear()
}

// Stats returns framebuffer statistics.
func (c *FrameBufferCache) Stats() Stats {
	return c.stats.snapshot(c.table.Len())
}

func frameBufferDescriptor(key *FrameBufferKey) (*FrameBufferDescriptor, error) {
	if key.Width == 0 || key.Height == 0 {
		return nil, fmt.Errorf("%w: framebuffer extent %dx%d", ErrInvalidKey, key.Width, key.Height)
	}
	desc := &FrameBufferDescriptor{
		RenderPass: key.RenderPass,
		Width:      key.Width,
		Height:     key.Height,
		Layers:     max(key.Layers, 1),
	}
	for _, v := range key.Colors {
		if v != 0 {
			desc.Attachments = append(desc.Attachments, v)
		}
	}
	for _, v := range key.Resolves {
		if v != 0 {
			desc.Attachments = append(desc.Attachments, v)
		}
	}
	if key.Depth != 0 {
		desc.Attachments = append(desc.Attachments, key.Depth)
	}
	if len(desc.Attachments) == 0 {
		return nil, fmt.Errorf("%w: framebuffer with no attachments", ErrInvalidKey)
	}
	return desc, nil
}
