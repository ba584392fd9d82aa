package gpucache

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/gpucache/internal/cache"
	"github.com/gogpu/gpucache/internal/slots"
)

// descriptorSet is the arena record of one cached set.
type descriptorSet struct {
	set    SetHandle
	pool   *descriptorPool
	arrays []ArrayHandle
}

type descriptorEntry = cache.Entry[setKey, slots.Index]

// DescriptorCache deduplicates descriptor sets and manages the pools they
// are allocated from.
//
// Sets are allocated from a single current pool. When the device reports
// the pool full, the cache creates a larger pool and retires the full one
// together with every set allocated from it; the retired pool is destroyed
// by a later Prune once the signal supplied with the triggering lookup has
// completed. Live sets are freed back to the current pool by Prune once
// they have gone unused for longer than the prune delay and their most
// recent signal has completed.
//
// DescriptorCache is not safe for concurrent use; see Caches for a locked
// aggregate.
type DescriptorCache struct {
	device Device
	opts   options
	clock  cache.Clock
	table  *cache.Table[setKey, slots.Index]
	sets   slots.Arena[descriptorSet]

	current *descriptorPool
	extinct []*extinctPool

	arrays arrayTable

	// update is reused scratch space for descriptor writes.
	update DescriptorUpdate

	stats     counters
	growths   atomic.Uint64
	reclaimed atomic.Uint64
	closed    bool
}

// NewDescriptorCache creates an empty descriptor cache on device. The first
// pool is created on the first miss.
func NewDescriptorCache(device Device, opts ...Option) *DescriptorCache {
	o := buildOptions(opts)
	return &DescriptorCache{
		device: device,
		opts:   o,
		clock:  cache.NewClock(o.pruneDelay),
		table:  cache.NewTable[setKey, slots.Index](),
		arrays: newArrayTable(),
	}
}

// GetDescriptorSet returns the set binding key's resources under layout,
// allocating and writing it on first use.
//
// signal represents the in-flight work that will use the set. A hit stamps
// it on the entry and renews the entry's prune tick without driver calls; a
// nil signal keeps the previous one. On a miss that finds the pool full,
// signal also guards the retired pool.
func (c *DescriptorCache) GetDescriptorSet(layout LayoutHandle, key DescriptorSetKey, signal CompletionSignal) (SetHandle, error) {
	if c.closed {
		return 0, ErrClosed
	}
	k := setKey{Layout: layout, Set: key}
	if e := c.table.Lookup(k); e != nil {
		cache.Touch(&c.clock, e, signal)
		c.stats.hits.Add(1)
		return c.sets.At(e.Value).set, nil
	}

	if layout == 0 {
		return 0, fmt.Errorf("%w: descriptor set without layout", ErrInvalidKey)
	}
	arrays, err := c.resolveArrays(&key)
	if err != nil {
		return 0, err
	}

	set, err := c.allocate(layout, key.VariableCount(), signal)
	if err != nil {
		return 0, err
	}
	c.write(set, &key, &arrays)

	rec := descriptorSet{set: set, pool: c.current}
	for _, b := range key.Active() {
		if b.IsArray() {
			c.arrays.acquire(b.Array)
			rec.arrays = append(rec.arrays, b.Array)
		}
	}
	c.current.live++
	idx := c.sets.Alloc(rec)
	c.table.Insert(&descriptorEntry{Key: k, Value: idx, Tick: c.clock.Now(), Signal: signal})
	c.stats.misses.Add(1)
	Logger().Debug("gpucache: descriptor set allocated",
		"bindings", key.Len(), "pool", c.current.generation, "live", c.current.live)
	return set, nil
}

// resolveArrays validates the bindings of key and returns the interned
// array backing each array binding, indexed like key.Bindings.
func (c *DescriptorCache) resolveArrays(key *DescriptorSetKey) ([MaxSetBindings]*internedArray, error) {
	var out [MaxSetBindings]*internedArray
	for i, b := range key.Active() {
		if b.Type == BindingNone || b.Type >= bindingTypeCount {
			return out, fmt.Errorf("%w: binding %d has type %s", ErrInvalidKey, b.Slot, b.Type)
		}
		if !b.IsArray() {
			if b.Count != 1 {
				return out, fmt.Errorf("%w: binding %d has count %d without an array", ErrInvalidKey, b.Slot, b.Count)
			}
			continue
		}
		arr := c.arrays.get(b.Array)
		if arr == nil {
			return out, fmt.Errorf("%w: binding %d references unknown array %d", ErrInvalidKey, b.Slot, b.Array)
		}
		if int(b.Count) > len(arr.items) {
			return out, fmt.Errorf("%w: binding %d count %d exceeds array length %d",
				ErrInvalidKey, b.Slot, b.Count, len(arr.items))
		}
		out[i] = arr
	}
	return out, nil
}

// write records one DescriptorWrite per binding of key and submits them in
// a single UpdateDescriptorSets call.
func (c *DescriptorCache) write(set SetHandle, key *DescriptorSetKey, arrays *[MaxSetBindings]*internedArray) {
	u := &c.update
	u.Reset()

	var single [1]ArrayElement
	for i, b := range key.Active() {
		elems := single[:]
		if arr := arrays[i]; arr != nil {
			elems = arr.items[:b.Count]
		} else {
			single[0] = ArrayElement{Buffer: b.Buffer, Image: b.Image, Acceleration: b.Acceleration}
		}

		w := DescriptorWrite{
			Set:   set,
			Slot:  b.Slot,
			Type:  b.Type,
			Count: uint32(len(elems)), //nolint:gosec // G115: bounded by UnboundedCount
		}
		switch {
		case b.Type.IsBuffer():
			w.First = uint32(len(u.Buffers)) //nolint:gosec // G115: scratch length is bounded by one set
			for _, e := range elems {
				u.Buffers = append(u.Buffers, BufferInfo(e.Buffer))
			}
		case b.Type.IsImage():
			w.First = uint32(len(u.Images)) //nolint:gosec // G115: scratch length is bounded by one set
			for _, e := range elems {
				u.Images = append(u.Images, ImageInfo(e.Image))
			}
		default:
			w.First = uint32(len(u.Accelerations)) //nolint:gosec // G115: scratch length is bounded by one set
			for _, e := range elems {
				u.Accelerations = append(u.Accelerations, AccelerationInfo{Structure: e.Acceleration})
			}
		}
		u.Writes = append(u.Writes, w)
	}
	if len(u.Writes) > 0 {
		c.device.UpdateDescriptorSets(u)
	}
}

// Prune advances the descriptor clock and reclaims what the GPU can no
// longer reference: first retired pools, then live sets that are aged and
// signal-complete, then unreferenced aged arrays. It returns the number of
// pools, sets and arrays released.
func (c *DescriptorCache) Prune() int {
	if c.closed {
		return 0
	}
	c.clock.Advance()

	n := c.reclaimExtinct()
	freed := c.table.Sweep(func(e *descriptorEntry) bool {
		if !cache.Reclaimable(&c.clock, e) {
			return false
		}
		rec := c.sets.At(e.Value)
		if rec.pool == c.current {
			c.device.FreeDescriptorSet(rec.pool.handle, rec.set)
		}
		c.releaseSet(e.Value)
		return true
	})
	if freed > 0 {
		c.stats.evictions.Add(uint64(freed))
		Logger().Debug("gpucache: descriptor sets pruned", "count", freed, "tick", c.clock.Now())
	}
	n += freed
	n += c.arrays.prune(&c.clock)
	return n
}

// releaseSet drops the arena record at idx and its array references.
func (c *DescriptorCache) releaseSet(idx slots.Index) {
	rec := c.sets.At(idx)
	if rec == nil {
		return
	}
	for _, a := range rec.arrays {
		c.arrays.release(a)
	}
	rec.pool.live--
	c.sets.Free(idx)
}

// InternArray returns the handle of the resource array with the given
// elements, interning a copy on first use. Identical contents share one
// handle. An empty array returns the null handle.
//
// An interned array stays alive while any cached set references it and is
// pruned once unreferenced for longer than the prune delay.
func (c *DescriptorCache) InternArray(items []ArrayElement) ArrayHandle {
	if c.closed || len(items) == 0 {
		return 0
	}
	return c.arrays.intern(items, c.clock.Now())
}

// Tick returns the current descriptor prune tick.
func (c *DescriptorCache) Tick() uint64 {
	return c.clock.Now()
}

// Stats returns lookup statistics. Len counts sets reachable by lookup.
func (c *DescriptorCache) Stats() Stats {
	return c.stats.snapshot(c.table.Len())
}

// PoolStats returns descriptor pool statistics.
func (c *DescriptorCache) PoolStats() PoolStats {
	ps := PoolStats{
		Extinct:   len(c.extinct),
		Growths:   c.growths.Load(),
		Reclaimed: c.reclaimed.Load(),
		Arrays:    c.arrays.count(),
	}
	if c.current != nil {
		ps.CurrentSets = c.current.live
		ps.CurrentCapacity = c.current.maxSets
	}
	return ps
}

// Destroy destroys every pool, retired or current, which releases all sets.
// All outstanding GPU work must have completed. The cache rejects lookups
// afterwards.
func (c *DescriptorCache) Destroy() {
	if c.closed {
		return
	}
	for _, ex := range c.extinct {
		c.device.DestroyDescriptorPool(ex.pool.handle)
	}
	if c.current != nil {
		c.device.DestroyDescriptorPool(c.current.handle)
	}
	c.extinct = nil
	c.current = nil
	c.table.Clear()
	c.sets.Reset()
	c.arrays.reset()
	c.closed = true
}
