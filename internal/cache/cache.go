package cache

// Key is a fixed-layout cache key. Equality is Go == over every declared
// field; Hash must be derived from the same fields so that equal keys hash
// equally.
type Key interface {
	comparable
	Hash() uint64
}

// Signal reports whether the GPU has finished consuming work that used an
// object. Signals are polled, never awaited.
type Signal interface {
	IsComplete() bool
}

// Complete reports whether s is finished. A nil signal is complete.
func Complete(s Signal) bool {
	return s == nil || s.IsComplete()
}

// Entry is a cached driver object together with its eviction state.
type Entry[K Key, V any] struct {
	Key   K
	Value V

	// Tick is the clock value at the last lookup that returned this entry.
	Tick uint64

	// Signal is the completion signal stamped at the most recent access.
	Signal Signal
}

// Table is a hash-bucketed map of entries.
//
// Keys are bucketed by Hash and compared with ==, so two distinct keys that
// collide never share an entry.
//
// Table is not safe for concurrent use.
type Table[K Key, V any] struct {
	buckets map[uint64][]*Entry[K, V]
	n       int
}

// NewTable creates an empty table.
func NewTable[K Key, V any]() *Table[K, V] {
	return &Table[K, V]{
		buckets: make(map[uint64][]*Entry[K, V]),
	}
}

// Lookup returns the entry for key, or nil.
func (t *Table[K, V]) Lookup(key K) *Entry[K, V] {
	for _, e := range t.buckets[key.Hash()] {
		if e.Key == key {
			return e
		}
	}
	return nil
}

// Insert adds e to the table. An existing entry with the same key is
// replaced and returned.
func (t *Table[K, V]) Insert(e *Entry[K, V]) *Entry[K, V] {
	h := e.Key.Hash()
	bucket := t.buckets[h]
	for i, old := range bucket {
		if old.Key == e.Key {
			bucket[i] = e
			return old
		}
	}
	t.buckets[h] = append(bucket, e)
	t.n++
	return nil
}

// Remove deletes the entry for key and returns it, or nil if absent.
func (t *Table[K, V]) Remove(key K) *Entry[K, V] {
	h := key.Hash()
	bucket := t.buckets[h]
	for i, e := range bucket {
		if e.Key != key {
			continue
		}
		last := len(bucket) - 1
		bucket[i] = bucket[last]
		bucket[last] = nil
		if last == 0 {
			delete(t.buckets, h)
		} else {
			t.buckets[h] = bucket[:last]
		}
		t.n--
		return e
	}
	return nil
}

// Len returns the number of entries.
func (t *Table[K, V]) Len() int {
	return t.n
}

// Range calls fn for every entry until fn returns false.
// fn must not modify the table.
func (t *Table[K, V]) Range(fn func(e *Entry[K, V]) bool) {
	for _, bucket := range t.buckets {
		for _, e := range bucket {
			if !fn(e) {
				return
			}
		}
	}
}

// Sweep removes every entry for which evict returns true and returns the
// number removed. evict runs before removal, so it may release the entry's
// driver object.
func (t *Table[K, V]) Sweep(evict func(e *Entry[K, V]) bool) int {
	removed := 0
	for h, bucket := range t.buckets {
		kept := bucket[:0]
		for _, e := range bucket {
			if evict(e) {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		for i := len(kept); i < len(bucket); i++ {
			bucket[i] = nil
		}
		if len(kept) == 0 {
			delete(t.buckets, h)
		} else {
			t.buckets[h] = kept
		}
	}
	t.n -= removed
	return removed
}

// Clear removes all entries.
func (t *Table[K, V]) Clear() {
	t.buckets = make(map[uint64][]*Entry[K, V])
	t.n = 0
}
