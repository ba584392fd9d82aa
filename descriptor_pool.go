package gpucache

import (
	"fmt"

	"github.com/gogpu/gpucache/internal/cache"
	"github.com/gogpu/gpucache/internal/slots"
)

// descriptorPool is one driver pool generation.
type descriptorPool struct {
	handle     PoolHandle
	generation uint32
	maxSets    uint32

	// live counts sets allocated from this pool and not yet freed.
	live int
}

// extinctPool is a retired pool waiting for the GPU to finish with it.
// Its sets left the lookup table at retirement and are only reachable
// through entries.
type extinctPool struct {
	pool    *descriptorPool
	signal  CompletionSignal
	retired uint64
	entries []slots.Index
}

// poolDescriptor returns the description of pool generation g: the base
// capacity scaled by g+1 in every size category.
func poolDescriptor(o *options, g uint32) *PoolDescriptor {
	scale := g + 1
	desc := &PoolDescriptor{
		MaxSets: o.poolMaxSets * scale,
		Sizes:   make([]PoolSize, len(o.poolSizes)),
	}
	for i, s := range o.poolSizes {
		desc.Sizes[i] = PoolSize{Type: s.Type, Count: s.Count * scale}
	}
	return desc
}

// createPool creates pool generation g on the device.
func (c *DescriptorCache) createPool(g uint32) (*descriptorPool, error) {
	desc := poolDescriptor(&c.opts, g)
	handle, err := c.device.CreateDescriptorPool(desc)
	if err != nil {
		Logger().Error("gpucache: descriptor pool creation failed",
			"generation", g, "max_sets", desc.MaxSets, "error", err)
		return nil, fmt.Errorf("%w: descriptor pool: %w", ErrCreateFailed, err)
	}
	return &descriptorPool{handle: handle, generation: g, maxSets: desc.MaxSets}, nil
}

// currentPool returns the active pool, creating the first generation lazily.
func (c *DescriptorCache) currentPool() (*descriptorPool, error) {
	if c.current != nil {
		return c.current, nil
	}
	p, err := c.createPool(0)
	if err != nil {
		return nil, err
	}
	c.current = p
	return p, nil
}

// allocate allocates a set for layout from the current pool. When the pool
// is full it grows once, retiring the full pool under signal, and retries.
func (c *DescriptorCache) allocate(layout LayoutHandle, variableCount uint32, signal CompletionSignal) (SetHandle, error) {
	pool, err := c.currentPool()
	if err != nil {
		return 0, err
	}
	set, err := c.device.AllocateDescriptorSet(pool.handle, layout, variableCount)
	if err == nil {
		return set, nil
	}
	if !isPoolFull(err) {
		Logger().Error("gpucache: descriptor set allocation failed", "pool", pool.generation, "error", err)
		return 0, fmt.Errorf("%w: %w", ErrAllocationFailed, err)
	}

	if err := c.grow(signal); err != nil {
		return 0, err
	}
	set, err = c.device.AllocateDescriptorSet(c.current.handle, layout, variableCount)
	if err != nil {
		Logger().Error("gpucache: descriptor set allocation failed after growth",
			"pool", c.current.generation, "variable_count", variableCount, "error", err)
		return 0, fmt.Errorf("%w: %w", ErrAllocationFailed, err)
	}
	return set, nil
}

// grow replaces the current pool with the next generation. The old pool
// moves to the extinct list, taking its cached sets out of the lookup table.
// It is guarded by signal and by the last signal stamped on each of its sets.
func (c *DescriptorCache) grow(signal CompletionSignal) error {
	old := c.current
	next, err := c.createPool(old.generation + 1)
	if err != nil {
		return err
	}

	ex := &extinctPool{
		pool:    old,
		retired: c.clock.Now(),
	}
	guards := []CompletionSignal{signal}
	c.table.Sweep(func(e *descriptorEntry) bool {
		ex.entries = append(ex.entries, e.Value)
		if e.Signal != nil {
			guards = append(guards, e.Signal)
		}
		return true
	})
	ex.signal = AllSignals(guards...)
	c.extinct = append(c.extinct, ex)
	c.current = next
	c.growths.Add(1)

	Logger().Info("gpucache: descriptor pool grown",
		"generation", next.generation, "max_sets", next.maxSets,
		"retired_sets", len(ex.entries), "extinct", len(c.extinct))
	if c.opts.extinctWarn > 0 && len(c.extinct) > c.opts.extinctWarn {
		Logger().Warn("gpucache: extinct descriptor pool backlog",
			"extinct", len(c.extinct), "threshold", c.opts.extinctWarn)
	}
	return nil
}

// reclaimExtinct destroys retired pools whose signal is complete and whose
// retirement tick is aged. Their sets are released with the pool.
func (c *DescriptorCache) reclaimExtinct() int {
	kept := c.extinct[:0]
	n := 0
	for _, ex := range c.extinct {
		if !c.clock.Aged(ex.retired) || !cache.Complete(ex.signal) {
			kept = append(kept, ex)
			continue
		}
		for _, idx := range ex.entries {
			c.releaseSet(idx)
		}
		c.device.DestroyDescriptorPool(ex.pool.handle)
		n++
	}
	for i := len(kept); i < len(c.extinct); i++ {
		c.extinct[i] = nil
	}
	c.extinct = kept
	if n > 0 {
		c.reclaimed.Add(uint64(n))
		Logger().Debug("gpucache: extinct descriptor pools reclaimed", "count", n, "remaining", len(kept))
	}
	return n
}
