// Package cache provides the shared mechanics of the gpucache caches.
//
// # Table[K, V]
//
// A hash-bucketed entry map keyed by fixed-layout comparable keys. Each entry
// carries the tick of its last use and the completion signal stamped at that
// use.
//
//	t := cache.NewTable[myKey, handle]()
//	e := t.Lookup(k)
//	if e == nil {
//	    e = &cache.Entry[myKey, handle]{Key: k, Value: create(k)}
//	    t.Insert(e)
//	}
//
// # Clock
//
// The logical prune clock. A sweep advances it once; entries whose last-use
// tick falls behind by more than the prune delay are aged. Reclaimable adds
// the completion-signal check used for objects the GPU may still read.
//
//	clock.Advance()
//	t.Sweep(func(e *cache.Entry[myKey, handle]) bool {
//	    if !cache.Reclaimable(&clock, e) {
//	        return false
//	    }
//	    destroy(e.Value)
//	    return true
//	})
//
// # Thread Safety
//
// Neither type is safe for concurrent use. Callers serialize access.
package cache
