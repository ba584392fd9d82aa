package cache

import "testing"

func BenchmarkTableLookupHit(b *testing.B) {
	tb := NewTable[testKey, int]()
	for i := uint32(0); i < 100; i++ {
		tb.Insert(&Entry[testKey, int]{Key: testKey{id: i, hash: uint64(i) * 2654435761}})
	}
	k := testKey{id: 50, hash: 50 * 2654435761}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tb.Lookup(k)
	}
}

func BenchmarkTableLookupMiss(b *testing.B) {
	tb := NewTable[testKey, int]()
	for i := uint32(0); i < 100; i++ {
		tb.Insert(&Entry[testKey, int]{Key: testKey{id: i, hash: uint64(i)}})
	}
	k := testKey{id: 1000, hash: 1000}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tb.Lookup(k)
	}
}

func BenchmarkTableSweepNoop(b *testing.B) {
	tb := NewTable[testKey, int]()
	for i := uint32(0); i < 1000; i++ {
		tb.Insert(&Entry[testKey, int]{Key: testKey{id: i, hash: uint64(i)}})
	}
	c := NewClock(1 << 32)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Advance()
		tb.Sweep(func(e *Entry[testKey, int]) bool {
			return Reclaimable(&c, e)
		})
	}
}
