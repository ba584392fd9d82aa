package software

import (
	"cmp"
	"slices"

	"github.com/gogpu/gpucache"
)

// block is a contiguous range of descriptors in one type range.
type block struct {
	offset uint32
	size   uint32
}

// typeRange allocates descriptors of one binding type. Allocation is
// first-fit over freed blocks, then bump from top. Freed blocks are
// coalesced, and a freed block touching top lowers it.
type typeRange struct {
	capacity uint32
	top      uint32
	free     []block
}

// alloc reserves n descriptors. It reports ErrPoolFragmented when enough
// descriptors are free in total but no single range can hold n.
func (r *typeRange) alloc(n uint32) (uint32, error) {
	for i, b := range r.free {
		if b.size < n {
			continue
		}
		off := b.offset
		if b.size == n {
			r.free = slices.Delete(r.free, i, i+1)
		} else {
			r.free[i] = block{offset: b.offset + n, size: b.size - n}
		}
		return off, nil
	}
	if r.top+n <= r.capacity {
		off := r.top
		r.top += n
		return off, nil
	}
	if r.available() >= n {
		return 0, gpucache.ErrPoolFragmented
	}
	return 0, gpucache.ErrPoolExhausted
}

// release returns [off, off+n) to the range.
func (r *typeRange) release(off, n uint32) {
	if n == 0 {
		return
	}
	r.free = append(r.free, block{offset: off, size: n})
	slices.SortFunc(r.free, func(a, b block) int {
		return cmp.Compare(a.offset, b.offset)
	})

	merged := r.free[:1]
	for _, b := range r.free[1:] {
		last := &merged[len(merged)-1]
		if last.offset+last.size == b.offset {
			last.size += b.size
			continue
		}
		merged = append(merged, b)
	}
	r.free = merged

	if n := len(r.free); n > 0 && r.free[n-1].offset+r.free[n-1].size == r.top {
		r.top = r.free[n-1].offset
		r.free = r.free[:n-1]
	}
}

// available returns the number of free descriptors.
func (r *typeRange) available() uint32 {
	n := r.capacity - r.top
	for _, b := range r.free {
		n += b.size
	}
	return n
}

// reservation is the descriptors held by one set in one type range.
type reservation struct {
	typ    gpucache.BindingType
	offset uint32
	size   uint32
}

// pool is a fixed-capacity descriptor pool.
type pool struct {
	maxSets uint32
	ranges  map[gpucache.BindingType]*typeRange
	sets    map[gpucache.SetHandle]struct{}
}

func newPool(desc *gpucache.PoolDescriptor) *pool {
	p := &pool{
		maxSets: desc.MaxSets,
		ranges:  make(map[gpucache.BindingType]*typeRange, len(desc.Sizes)),
		sets:    make(map[gpucache.SetHandle]struct{}),
	}
	for _, s := range desc.Sizes {
		if r, ok := p.ranges[s.Type]; ok {
			r.capacity += s.Count
			continue
		}
		p.ranges[s.Type] = &typeRange{capacity: s.Count}
	}
	return p
}

// reserve takes descriptors for every requirement, or none of them.
func (p *pool) reserve(need []reservation) ([]reservation, error) {
	if uint32(len(p.sets)) >= p.maxSets { //nolint:gosec // G115: set count bounded by maxSets
		return nil, gpucache.ErrPoolExhausted
	}
	held := make([]reservation, 0, len(need))
	for _, n := range need {
		r := p.ranges[n.typ]
		if r == nil {
			p.unreserve(held)
			return nil, gpucache.ErrPoolExhausted
		}
		off, err := r.alloc(n.size)
		if err != nil {
			p.unreserve(held)
			return nil, err
		}
		held = append(held, reservation{typ: n.typ, offset: off, size: n.size})
	}
	return held, nil
}

func (p *pool) unreserve(held []reservation) {
	for _, h := range held {
		p.ranges[h.typ].release(h.offset, h.size)
	}
}
