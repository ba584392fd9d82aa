// Package slots provides a slot allocator with stable indices.
//
// Bookkeeping that must survive container growth (for example the list of
// entries a descriptor pool backs) refers to arena slots by index rather than
// by pointer. An index stays valid until it is freed; freed indices are reused
// by later allocations.
package slots

// Index identifies an arena slot.
type Index uint32

type slot[T any] struct {
	value T
	used  bool
}

// Arena is a growable slot allocator.
//
// Arena is not safe for concurrent use.
type Arena[T any] struct {
	slots []slot[T]
	free  []Index
	live  int
}

// Alloc stores v in a free slot and returns its index.
func (a *Arena[T]) Alloc(v T) Index {
	a.live++
	if n := len(a.free); n > 0 {
		i := a.free[n-1]
		a.free = a.free[:n-1]
		a.slots[i] = slot[T]{value: v, used: true}
		return i
	}
	a.slots = append(a.slots, slot[T]{value: v, used: true})
	//nolint:gosec // G115: slot count is bounded by descriptor pool capacity
	return Index(len(a.slots) - 1)
}

// At returns a pointer to the value at i, or nil if i is not allocated.
// The pointer is invalidated by the next Alloc; hold the index instead.
func (a *Arena[T]) At(i Index) *T {
	if !a.Valid(i) {
		return nil
	}
	return &a.slots[i].value
}

// Valid reports whether i refers to an allocated slot.
func (a *Arena[T]) Valid(i Index) bool {
	return int(i) < len(a.slots) && a.slots[i].used
}

// Free releases slot i. Freeing an unallocated index is a no-op and
// returns false.
func (a *Arena[T]) Free(i Index) bool {
	if !a.Valid(i) {
		return false
	}
	var zero T
	a.slots[i] = slot[T]{value: zero}
	a.free = append(a.free, i)
	a.live--
	return true
}

// Len returns the number of allocated slots.
func (a *Arena[T]) Len() int {
	return a.live
}

// Cap returns the number of slots ever created (allocated or free).
func (a *Arena[T]) Cap() int {
	return len(a.slots)
}

// Range calls fn for every allocated slot in index order until fn
// returns false. fn must not call Alloc.
func (a *Arena[T]) Range(fn func(i Index, v *T) bool) {
	for i := range a.slots {
		if !a.slots[i].used {
			continue
		}
		if !fn(Index(i), &a.slots[i].value) {
			return
		}
	}
}

// Reset frees every slot.
func (a *Arena[T]) Reset() {
	a.slots = nil
	a.free = nil
	a.live = 0
}
