package software

import (
	"sync/atomic"

	"github.com/gogpu/gpucache"
)

// Timeline is a monotonically increasing completion counter, the CPU-side
// analogue of a timeline semaphore. Each submission takes the next value;
// the consumer reports progress with Complete.
//
// Timeline is safe for concurrent use.
type Timeline struct {
	next      atomic.Uint64
	completed atomic.Uint64
}

// NewTimeline creates a timeline with nothing submitted.
func NewTimeline() *Timeline {
	return &Timeline{}
}

// Next reserves the next value and returns its signal.
func (t *Timeline) Next() Signal {
	return Signal{timeline: t, value: t.next.Add(1)}
}

// Signal returns the signal for value v.
func (t *Timeline) Signal(v uint64) Signal {
	return Signal{timeline: t, value: v}
}

// Complete marks every value up to and including v as finished. Completion
// never moves backwards.
func (t *Timeline) Complete(v uint64) {
	for {
		cur := t.completed.Load()
		if v <= cur || t.completed.CompareAndSwap(cur, v) {
			return
		}
	}
}

// CompleteAll marks every value reserved so far as finished.
func (t *Timeline) CompleteAll() {
	t.Complete(t.next.Load())
}

// Completed returns the highest finished value.
func (t *Timeline) Completed() uint64 {
	return t.completed.Load()
}

// Pending returns the most recently reserved value.
func (t *Timeline) Pending() uint64 {
	return t.next.Load()
}

// Signal is complete once its timeline reaches its value.
type Signal struct {
	timeline *Timeline
	value    uint64
}

var _ gpucache.CompletionSignal = Signal{}

// IsComplete reports whether the timeline has reached the signal's value.
// The zero Signal is complete.
func (s Signal) IsComplete() bool {
	return s.timeline == nil || s.timeline.completed.Load() >= s.value
}

// Value returns the timeline value the signal waits for.
func (s Signal) Value() uint64 {
	return s.value
}
