package gpucache

import (
	"fmt"

	"github.com/gogpu/gpucache/internal/cache"
)

// LayoutCache deduplicates set layouts and pipeline layouts.
//
// Layouts are never pruned: their number is bounded by the distinct shader
// resource signatures of the program. They live until Destroy.
//
// LayoutCache is not safe for concurrent use; see Caches for a locked
// aggregate.
type LayoutCache struct {
	device    Device
	sets      *cache.Table[SetLayoutKey, LayoutHandle]
	pipelines *cache.Table[PipelineLayoutKey, LayoutHandle]
	stats     counters
	closed    bool
}

// NewLayoutCache creates an empty layout cache on device.
func NewLayoutCache(device Device) *LayoutCache {
	return &LayoutCache{
		device:    device,
		sets:      cache.NewTable[SetLayoutKey, LayoutHandle](),
		pipelines: cache.NewTable[PipelineLayoutKey, LayoutHandle](),
	}
}

// GetSetLayout returns the set layout for key, creating it on first use.
//
// A slot whose Count is at least UnboundedCount is created variable-length
// and partially bound. Driver failure is fatal and wraps ErrCreateFailed.
func (c *LayoutCache) GetSetLayout(key SetLayoutKey) (LayoutHandle, error) {
	if c.closed {
		return 0, ErrClosed
	}
	if e := c.sets.Lookup(key); e != nil {
		c.stats.hits.Add(1)
		return e.Value, nil
	}

	desc, err := setLayoutDescriptor(&key)
	if err != nil {
		return 0, err
	}
	layout, err := c.device.CreateSetLayout(desc)
	if err != nil {
		Logger().Error("gpucache: set layout creation failed", "bindings", len(desc.Bindings), "error", err)
		return 0, fmt.Errorf("%w: set layout: %w", ErrCreateFailed, err)
	}

	c.sets.Insert(&cache.Entry[SetLayoutKey, LayoutHandle]{Key: key, Value: layout})
	c.stats.misses.Add(1)
	Logger().Debug("gpucache: set layout created", "bindings", len(desc.Bindings), "stages", uint32(key.Stages))
	return layout, nil
}

// GetPipelineLayout returns the pipeline layout for key, creating it and any
// missing set layouts on first use.
func (c *LayoutCache) GetPipelineLayout(key PipelineLayoutKey) (LayoutHandle, error) {
	if c.closed {
		return 0, ErrClosed
	}
	if e := c.pipelines.Lookup(key); e != nil {
		c.stats.hits.Add(1)
		return e.Value, nil
	}
	if int(key.SetCount) > MaxBindingSets {
		return 0, fmt.Errorf("%w: %d sets exceeds %d", ErrInvalidKey, key.SetCount, MaxBindingSets)
	}
	for i := int(key.SetCount); i < MaxBindingSets; i++ {
		if !key.Sets[i].Empty() {
			return 0, fmt.Errorf("%w: set %d is beyond SetCount %d", ErrInvalidKey, i, key.SetCount)
		}
	}

	desc := &PipelineLayoutDescriptor{
		SetLayouts: make([]LayoutHandle, key.SetCount),
	}
	for i := range desc.SetLayouts {
		layout, err := c.GetSetLayout(key.Sets[i])
		if err != nil {
			return 0, err
		}
		desc.SetLayouts[i] = layout
	}
	if key.PushConstants.Size > 0 {
		desc.PushConstants = []PushConstantRange{key.PushConstants}
	}

	layout, err := c.device.CreatePipelineLayout(desc)
	if err != nil {
		Logger().Error("gpucache: pipeline layout creation failed", "sets", key.SetCount, "error", err)
		return 0, fmt.Errorf("%w: pipeline layout: %w", ErrCreateFailed, err)
	}

	c.pipelines.Insert(&cache.Entry[PipelineLayoutKey, LayoutHandle]{Key: key, Value: layout})
	c.stats.misses.Add(1)
	Logger().Debug("gpucache: pipeline layout created", "sets", key.SetCount, "push_constants", key.PushConstants.Size)
	return layout, nil
}

// Stats returns lookup statistics over both layout kinds.
func (c *LayoutCache) Stats() Stats {
	return c.stats.snapshot(c.sets.Len() + c.pipelines.Len())
}

// Destroy destroys every cached layout. Pipeline layouts go first because
// they reference set layouts. The cache rejects lookups afterwards.
func (c *LayoutCache) Destroy() {
	if c.closed {
		return
	}
	c.pipelines.Range(func(e *cache.Entry[PipelineLayoutKey, LayoutHandle]) bool {
		c.device.DestroyPipelineLayout(e.Value)
		return true
	})
	c.sets.Range(func(e *cache.Entry[SetLayoutKey, LayoutHandle]) bool {
		c.device.DestroySetLayout(e.Value)
		return true
	})
	c.pipelines.Clear()
	c.sets.Clear()
	c.closed = true
}

// setLayoutDescriptor builds the driver description of key, one binding per
// used slot in slot order.
func setLayoutDescriptor(key *SetLayoutKey) (*SetLayoutDescriptor, error) {
	desc := &SetLayoutDescriptor{}
	for slot, b := range key.Bindings {
		if b.Count == 0 {
			continue
		}
		if b.Type == BindingNone || b.Type >= bindingTypeCount {
			return nil, fmt.Errorf("%w: slot %d has count %d but type %s", ErrInvalidKey, slot, b.Count, b.Type)
		}
		lb := LayoutBindingDescriptor{
			Slot:   uint32(slot), //nolint:gosec // G115: slot < MaxSetBindings
			Type:   b.Type,
			Count:  b.Count,
			Stages: key.Stages,
		}
		if b.Count >= UnboundedCount {
			lb.Count = UnboundedCount
			lb.VariableCount = true
			lb.PartiallyBound = true
		}
		desc.Bindings = append(desc.Bindings, lb)
	}
	return desc, nil
}
