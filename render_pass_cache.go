package gpucache

import (
	"fmt"

	"github.com/gogpu/gpucache/internal/cache"
)

// renderPass is the cached state of one render pass.
type renderPass struct {
	handle RenderPassHandle

	// refs counts live framebuffer entries built on this pass.
	refs int
}

type renderPassEntry = cache.Entry[RenderPassKey, *renderPass]

// RenderPassCache deduplicates render passes.
//
// A render pass is destroyed by Prune only once it has gone unused for more
// than the prune delay and no cached framebuffer references it. The cache
// shares its prune clock with the FrameBufferCache built on it, and Prune
// sweeps framebuffers before render passes so that released references are
// visible in the same sweep.
//
// RenderPassCache is not safe for concurrent use; see Caches for a locked
// aggregate.
type RenderPassCache struct {
	device   Device
	clock    cache.Clock
	table    *cache.Table[RenderPassKey, *renderPass]
	byHandle map[RenderPassHandle]*renderPassEntry
	fbs      *FrameBufferCache
	stats    counters
	closed   bool
}

// NewRenderPassCache creates an empty render pass cache on device.
// WithPruneDelay is the only option it reads.
func NewRenderPassCache(device Device, opts ...Option) *RenderPassCache {
	o := buildOptions(opts)
	return &RenderPassCache{
		device:   device,
		clock:    cache.NewClock(o.pruneDelay),
		table:    cache.NewTable[RenderPassKey, *renderPass](),
		byHandle: make(map[RenderPassHandle]*renderPassEntry),
	}
}

// GetRenderPass returns the render pass for key, creating it on first use.
// A hit renews the entry's prune tick without driver calls.
func (c *RenderPassCache) GetRenderPass(key RenderPassKey) (RenderPassHandle, error) {
	if c.closed {
		return 0, ErrClosed
	}
	if e := c.table.Lookup(key); e != nil {
		cache.Touch(&c.clock, e, nil)
		c.stats.hits.Add(1)
		return e.Value.handle, nil
	}

	desc, err := renderPassDescriptor(&key)
	if err != nil {
		return 0, err
	}
	handle, err := c.device.CreateRenderPass(desc)
	if err != nil {
		Logger().Error("gpucache: render pass creation failed", "attachments", len(desc.Attachments), "error", err)
		return 0, fmt.Errorf("%w: render pass: %w", ErrCreateFailed, err)
	}

	e := &renderPassEntry{
		Key:   key,
		Value: &renderPass{handle: handle},
		Tick:  c.clock.Now(),
	}
	c.table.Insert(e)
	c.byHandle[handle] = e
	c.stats.misses.Add(1)
	Logger().Debug("gpucache: render pass created",
		"attachments", len(desc.Attachments), "depth", key.HasDepth(), "dynamic", key.Dynamic)
	return handle, nil
}

// Prune advances the render-target clock and destroys stale objects:
// first framebuffers (when a FrameBufferCache is attached), then render
// passes that are aged and unreferenced. It returns the number of objects
// destroyed.
func (c *RenderPassCache) Prune() int {
	if c.closed {
		return 0
	}
	c.clock.Advance()

	n := 0
	if c.fbs != nil {
		n += c.fbs.sweep()
	}
	n += c.sweep()
	return n
}

// sweep destroys aged render passes with no framebuffer references.
func (c *RenderPassCache) sweep() int {
	n := c.table.Sweep(func(e *renderPassEntry) bool {
		if e.Value.refs > 0 || !c.clock.Aged(e.Tick) {
			return false
		}
		c.device.DestroyRenderPass(e.Value.handle)
		delete(c.byHandle, e.Value.handle)
		return true
	})
	if n > 0 {
		c.stats.evictions.Add(uint64(n))
		Logger().Debug("gpucache: render passes pruned", "count", n, "tick", c.clock.Now())
	}
	return n
}

// acquire increments the reference count of the pass with handle h.
func (c *RenderPassCache) acquire(h RenderPassHandle) bool {
	e, ok := c.byHandle[h]
	if !ok {
		return false
	}
	e.Value.refs++
	return true
}

// release decrements the reference count of the pass with handle h.
func (c *RenderPassCache) release(h RenderPassHandle) {
	if e, ok := c.byHandle[h]; ok && e.Value.refs > 0 {
		e.Value.refs--
	}
}

// owns reports whether h is a live render pass of this cache.
func (c *RenderPassCache) owns(h RenderPassHandle) bool {
	_, ok := c.byHandle[h]
	return ok
}

// Refs returns the number of cached framebuffers referencing the pass with
// handle h, or -1 if h is not cached.
func (c *RenderPassCache) Refs(h RenderPassHandle) int {
	e, ok := c.byHandle[h]
	if !ok {
		return -1
	}
	return e.Value.refs
}

// Tick returns the current render-target prune tick.
func (c *RenderPassCache) Tick() uint64 {
	return c.clock.Now()
}

// Stats returns render pass statistics.
func (c *RenderPassCache) Stats() Stats {
	return c.stats.snapshot(c.table.Len())
}

// Destroy destroys every cached framebuffer (when attached) and render pass.
// The cache rejects lookups afterwards.
func (c *RenderPassCache) Destroy() {
	if c.closed {
		return
	}
	if c.fbs != nil {
		c.fbs.destroyAll()
	}
	c.table.Range(func(e *renderPassEntry) bool {
		c.device.DestroyRenderPass(e.Value.handle)
		return true
	})
	c.table.Clear()
	clear(c.byHandle)
	c.closed = true
}

// renderPassDescriptor builds the single-subpass description of key.
//
// Attachment order is colors in slot order, then one resolve attachment per
// color slot that requests it, then depth. When any slot resolves,
// ResolveRefs parallels ColorRefs with AttachmentUnused for slots that do not.
func renderPassDescriptor(key *RenderPassKey) (*RenderPassDescriptor, error) {
	desc := &RenderPassDescriptor{}

	type colorSlot struct {
		key                      AttachmentKey
		initial, subpass, final ImageLayout
	}
	var colors []colorSlot

	for i, a := range key.Colors {
		if !a.Used() {
			continue
		}
		initial, subpass, final := a.Layout, a.Layout, a.Layout
		if i == 0 && a.Layout == ImageLayoutPresent {
			initial = ImageLayoutUndefined
			subpass = ImageLayoutColorAttachment
			final = ImageLayoutPresent
		}
		colors = append(colors, colorSlot{key: a, initial: initial, subpass: subpass, final: final})
	}
	if len(colors) == 0 && !key.HasDepth() {
		return nil, fmt.Errorf("%w: render pass with no attachments", ErrInvalidKey)
	}

	resolves := false
	for _, cs := range colors {
		desc.ColorRefs = append(desc.ColorRefs, AttachmentReference{
			Attachment: uint32(len(desc.Attachments)), //nolint:gosec // G115: bounded by MaxColorAttachments
			Layout:     cs.subpass,
		})
		desc.Attachments = append(desc.Attachments, AttachmentDescription{
			Format:        cs.key.Format,
			Samples:       sampleCount(cs.key.Samples, key.Samples),
			LoadOp:        cs.key.Load,
			StoreOp:       cs.key.Store,
			InitialLayout: cs.initial,
			SubpassLayout: cs.subpass,
			FinalLayout:   cs.final,
		})
		resolves = resolves || cs.key.Resolve
	}

	if resolves {
		for _, cs := range colors {
			if !cs.key.Resolve {
				desc.ResolveRefs = append(desc.ResolveRefs, AttachmentReference{
					Attachment: AttachmentUnused,
					Layout:     ImageLayoutUndefined,
				})
				continue
			}
			desc.ResolveRefs = append(desc.ResolveRefs, AttachmentReference{
				Attachment: uint32(len(desc.Attachments)), //nolint:gosec // G115: bounded by 2*MaxColorAttachments
				Layout:     cs.subpass,
			})
			desc.Attachments = append(desc.Attachments, AttachmentDescription{
				Format:        cs.key.Format,
				Samples:       1,
				LoadOp:        cs.key.Load,
				StoreOp:       cs.key.Store,
				InitialLayout: cs.initial,
				SubpassLayout: cs.subpass,
				FinalLayout:   cs.final,
			})
		}
	}

	if key.HasDepth() {
		layout := key.Depth.Layout
		if layout == ImageLayoutUndefined {
			layout = ImageLayoutDepthStencilAttachment
		}
		desc.DepthRef = &AttachmentReference{
			Attachment: uint32(len(desc.Attachments)), //nolint:gosec // G115: bounded by 2*MaxColorAttachments+1
			Layout:     layout,
		}
		desc.Attachments = append(desc.Attachments, AttachmentDescription{
			Format:        key.Depth.Format,
			Samples:       sampleCount(key.Depth.Samples, key.Samples),
			LoadOp:        key.Depth.Load,
			StoreOp:       key.Depth.Store,
			InitialLayout: layout,
			SubpassLayout: layout,
			FinalLayout:   layout,
		})
	}

	desc.Dependencies = renderPassDependencies(key.HasDepth(), key.Dynamic)
	return desc, nil
}

// renderPassDependencies returns the two-barrier scheme: external work
// against this subpass's attachment writes, and for dynamic targets a
// self-dependency from attachment writes to fragment-shader reads.
func renderPassDependencies(depth, dynamic bool) []SubpassDependency {
	external := SubpassDependency{
		SrcSubpass: SubpassExternal,
		DstSubpass: 0,
		SrcStages:  PipelineStageColorAttachmentOutput,
		DstStages:  PipelineStageColorAttachmentOutput,
		SrcAccess:  AccessColorAttachmentWrite,
		DstAccess:  AccessColorAttachmentRead | AccessColorAttachmentWrite,
	}
	if depth {
		tests := PipelineStageEarlyFragmentTests | PipelineStageLateFragmentTests
		external.SrcStages |= tests
		external.DstStages |= tests
		external.SrcAccess |= AccessDepthStencilAttachmentWrite
		external.DstAccess |= AccessDepthStencilAttachmentRead | AccessDepthStencilAttachmentWrite
	}
	deps := []SubpassDependency{external}

	if dynamic {
		deps = append(deps, SubpassDependency{
			SrcSubpass: 0,
			DstSubpass: 0,
			SrcStages:  PipelineStageColorAttachmentOutput,
			DstStages:  PipelineStageFragmentShader,
			SrcAccess:  AccessColorAttachmentWrite,
			DstAccess:  AccessShaderRead | AccessInputAttachmentRead,
			ByRegion:   true,
		})
	}
	return deps
}

// sampleCount picks the attachment's own sample count, then the pass-wide
// count, then 1.
func sampleCount(attachment, pass uint8) uint32 {
	switch {
	case attachment != 0:
		return uint32(attachment)
	case pass != 0:
		return uint32(pass)
	default:
		return 1
	}
}
