package gpucache

import "sync"

// Caches bundles the layout, render-target and descriptor caches of one
// device behind a single mutex.
//
// Use Caches when command recording and pruning run on different
// goroutines. All methods are safe for concurrent use.
//
// Example:
//
//	caches := gpucache.NewCaches(device, gpucache.WithPruneDelay(3))
//	defer caches.Destroy()
//
//	layout, err := caches.GetSetLayout(setKey)
//	...
//	set, err := caches.GetDescriptorSet(layout, bindings, frameFence)
//	...
//	caches.Prune() // once per frame after submission
type Caches struct {
	mu sync.Mutex

	layouts      *LayoutCache
	renderPasses *RenderPassCache
	frameBuffers *FrameBufferCache
	descriptors  *DescriptorCache
}

// NewCaches creates the full cache set on device.
func NewCaches(device Device, opts ...Option) *Caches {
	passes := NewRenderPassCache(device, opts...)
	return &Caches{
		layouts:      NewLayoutCache(device),
		renderPasses: passes,
		frameBuffers: NewFrameBufferCache(passes),
		descriptors:  NewDescriptorCache(device, opts...),
	}
}

// GetSetLayout returns the set layout for key. See LayoutCache.GetSetLayout.
func (c *Caches) GetSetLayout(key SetLayoutKey) (LayoutHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.layouts.GetSetLayout(key)
}

// GetPipelineLayout returns the pipeline layout for key.
// See LayoutCache.GetPipelineLayout.
func (c *Caches) GetPipelineLayout(key PipelineLayoutKey) (LayoutHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.layouts.GetPipelineLayout(key)
}

// GetRenderPass returns the render pass for key.
func (c *Caches) GetRenderPass(key RenderPassKey) (RenderPassHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.renderPasses.GetRenderPass(key)
}

// GetFrameBuffer returns the framebuffer for key.
func (c *Caches) GetFrameBuffer(key FrameBufferKey) (FrameBufferHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frameBuffers.GetFrameBuffer(key)
}

// GetDescriptorSet returns the descriptor set for key under layout.
// See DescriptorCache.GetDescriptorSet.
func (c *Caches) GetDescriptorSet(layout LayoutHandle, key DescriptorSetKey, signal CompletionSignal) (SetHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.descriptors.GetDescriptorSet(layout, key, signal)
}

// InternArray interns a resource array for use in descriptor bindings.
func (c *Caches) InternArray(items []ArrayElement) ArrayHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.descriptors.InternArray(items)
}

// Prune runs one sweep over every cache: framebuffers, then render passes,
// then descriptor pools, sets and arrays. Layouts are never pruned.
// It returns the number of objects released.
func (c *Caches) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.renderPasses.Prune() + c.descriptors.Prune()
}

// CacheStats is a snapshot of every cache's statistics.
type CacheStats struct {
	Layouts      Stats     `yaml:"layouts" json:"layouts" msgpack:"layouts" cbor:"layouts"`
	RenderPasses Stats     `yaml:"render_passes" json:"render_passes" msgpack:"render_passes" cbor:"render_passes"`
	FrameBuffers Stats     `yaml:"framebuffers" json:"framebuffers" msgpack:"framebuffers" cbor:"framebuffers"`
	Descriptors  Stats     `yaml:"descriptors" json:"descriptors" msgpack:"descriptors" cbor:"descriptors"`
	Pool         PoolStats `yaml:"pool" json:"pool" msgpack:"pool" cbor:"pool"`
}

// Stats returns a snapshot of every cache's statistics.
func (c *Caches) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Layouts:      c.layouts.Stats(),
		RenderPasses: c.renderPasses.Stats(),
		FrameBuffers: c.frameBuffers.Stats(),
		Descriptors:  c.descriptors.Stats(),
		Pool:         c.descriptors.PoolStats(),
	}
}

// ResetStats zeroes the hit, miss and eviction counters of every cache.
func (c *Caches) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.layouts.stats.reset()
	c.renderPasses.stats.reset()
	c.frameBuffers.stats.reset()
	c.descriptors.stats.reset()
}

// Destroy destroys every cached object, assuming all GPU work has completed.
// Descriptor pools go first, then framebuffers and render passes, then
// layouts. Every lookup fails with ErrClosed afterwards.
func (c *Caches) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.descriptors.Destroy()
	c.renderPasses.Destroy()
	c.layouts.Destroy()
}
