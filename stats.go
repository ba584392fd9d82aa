package gpucache

import "sync/atomic"

// Stats contains cache statistics.
type Stats struct {
	// Len is the current number of cached objects.
	Len int `yaml:"len" json:"len" msgpack:"len" cbor:"len"`
	// Hits is the number of lookups served from the cache.
	Hits uint64 `yaml:"hits" json:"hits" msgpack:"hits" cbor:"hits"`
	// Misses is the number of lookups that created a driver object.
	Misses uint64 `yaml:"misses" json:"misses" msgpack:"misses" cbor:"misses"`
	// HitRate is Hits / (Hits + Misses), 0.0 to 1.0.
	HitRate float64 `yaml:"hit_rate" json:"hit_rate" msgpack:"hit_rate" cbor:"hit_rate"`
	// Evictions is the number of objects destroyed by pruning.
	Evictions uint64 `yaml:"evictions" json:"evictions" msgpack:"evictions" cbor:"evictions"`
}

// PoolStats contains descriptor pool statistics.
type PoolStats struct {
	// CurrentSets is the number of live sets allocated from the current pool.
	CurrentSets int `yaml:"current_sets" json:"current_sets" msgpack:"current_sets" cbor:"current_sets"`
	// CurrentCapacity is the set capacity of the current pool.
	CurrentCapacity uint32 `yaml:"current_capacity" json:"current_capacity" msgpack:"current_capacity" cbor:"current_capacity"`
	// Extinct is the number of retired pools awaiting GPU completion.
	Extinct int `yaml:"extinct" json:"extinct" msgpack:"extinct" cbor:"extinct"`
	// Growths is the number of pool growth events.
	Growths uint64 `yaml:"growths" json:"growths" msgpack:"growths" cbor:"growths"`
	// Reclaimed is the number of retired pools destroyed.
	Reclaimed uint64 `yaml:"reclaimed" json:"reclaimed" msgpack:"reclaimed" cbor:"reclaimed"`
	// Arrays is the number of interned resource arrays.
	Arrays int `yaml:"arrays" json:"arrays" msgpack:"arrays" cbor:"arrays"`
}

// counters holds lookup statistics (atomic so Stats may be read from any
// goroutine).
type counters struct {
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

func (c *counters) snapshot(n int) Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Len:       n,
		Hits:      hits,
		Misses:    misses,
		HitRate:   hitRate,
		Evictions: c.evictions.Load(),
	}
}

func (c *counters) reset() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.evictions.Store(0)
}
