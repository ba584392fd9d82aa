package cache

// Clock is the logical prune clock shared by the entries of one cache.
//
// Every prune sweep advances the clock by one. An entry stamped at tick t is
// aged once t + delay < now, i.e. once it has gone unused for more than
// delay sweeps.
type Clock struct {
	now   uint64
	delay uint64
}

// NewClock creates a clock at tick zero with the given prune delay.
func NewClock(delay uint64) Clock {
	return Clock{delay: delay}
}

// Now returns the current tick.
func (c *Clock) Now() uint64 {
	return c.now
}

// Delay returns the prune delay in ticks.
func (c *Clock) Delay() uint64 {
	return c.delay
}

// Advance increments the clock and returns the new tick.
func (c *Clock) Advance() uint64 {
	c.now++
	return c.now
}

// Aged reports whether an entry last used at tick last is older than
// now - delay.
func (c *Clock) Aged(last uint64) bool {
	return last+c.delay < c.now
}

// Reclaimable reports whether e is both aged and signal-complete. The
// signal is only polled for aged entries.
func Reclaimable[K Key, V any](c *Clock, e *Entry[K, V]) bool {
	return c.Aged(e.Tick) && Complete(e.Signal)
}

// Touch renews e at the current tick and, when s is non-nil, replaces its
// completion signal.
func Touch[K Key, V any](c *Clock, e *Entry[K, V], s Signal) {
	e.Tick = c.now
	if s != nil {
		e.Signal = s
	}
}
