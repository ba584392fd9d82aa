package gpucache

import (
	"slices"

	"github.com/gogpu/gpucache/internal/cache"
	"github.com/gogpu/gpucache/internal/keyhash"
)

// ArrayElement is one element of an interned resource array. The binding
// type of the referencing DescriptorBinding selects the meaningful field.
type ArrayElement struct {
	Buffer       BufferBinding
	Image        ImageBinding
	Acceleration ResourceHandle
}

// BufferElement returns an array element for a buffer range.
func BufferElement(buf ResourceHandle, offset, size uint64) ArrayElement {
	return ArrayElement{Buffer: BufferBinding{Buffer: buf, Offset: offset, Range: size}}
}

// ImageElement returns an array element for an image view and sampler.
func ImageElement(sampler, view ResourceHandle, layout ImageLayout) ArrayElement {
	return ArrayElement{Image: ImageBinding{Sampler: sampler, View: view, Layout: layout}}
}

type internedArray struct {
	handle ArrayHandle
	hash   uint64
	items  []ArrayElement
	refs   int
	tick   uint64
}

// arrayTable interns resource arrays by content.
type arrayTable struct {
	byHandle map[ArrayHandle]*internedArray
	byHash   map[uint64][]*internedArray
	next     ArrayHandle
}

func newArrayTable() arrayTable {
	return arrayTable{
		byHandle: make(map[ArrayHandle]*internedArray),
		byHash:   make(map[uint64][]*internedArray),
	}
}

func hashElements(items []ArrayElement) uint64 {
	return keyhash.Sum(func(h *keyhash.Hasher) {
		h.Uint32(uint32(len(items))) //nolint:gosec // G115: array length fits uint32
		for i := range items {
			e := &items[i]
			h.Uint64(uint64(e.Buffer.Buffer))
			h.Uint64(e.Buffer.Offset)
			h.Uint64(e.Buffer.Range)
			h.Uint64(uint64(e.Image.Sampler))
			h.Uint64(uint64(e.Image.View))
			h.Uint8(uint8(e.Image.Layout))
			h.Uint64(uint64(e.Acceleration))
		}
	})
}

func (t *arrayTable) intern(items []ArrayElement, now uint64) ArrayHandle {
	h := hashElements(items)
	for _, a := range t.byHash[h] {
		if slices.Equal(a.items, items) {
			a.tick = now
			return a.handle
		}
	}
	t.next++
	a := &internedArray{
		handle: t.next,
		hash:   h,
		items:  slices.Clone(items),
		tick:   now,
	}
	t.byHandle[a.handle] = a
	t.byHash[h] = append(t.byHash[h], a)
	return a.handle
}

func (t *arrayTable) get(h ArrayHandle) *internedArray {
	return t.byHandle[h]
}

func (t *arrayTable) acquire(h ArrayHandle) {
	if a := t.byHandle[h]; a != nil {
		a.refs++
	}
}

func (t *arrayTable) release(h ArrayHandle) {
	if a := t.byHandle[h]; a != nil && a.refs > 0 {
		a.refs--
	}
}

// prune drops arrays with no references whose last intern is aged.
func (t *arrayTable) prune(c *cache.Clock) int {
	n := 0
	for h, a := range t.byHandle {
		if a.refs > 0 || !c.Aged(a.tick) {
			continue
		}
		delete(t.byHandle, h)
		bucket := slices.DeleteFunc(t.byHash[a.hash], func(b *internedArray) bool { return b == a })
		if len(bucket) == 0 {
			delete(t.byHash, a.hash)
		} else {
			t.byHash[a.hash] = bucket
		}
		n++
	}
	return n
}

func (t *arrayTable) count() int {
	return len(t.byHandle)
}

func (t *arrayTable) reset() {
	clear(t.byHandle)
	clear(t.byHash)
}
