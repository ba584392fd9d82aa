package native

import (
	"fmt"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpucache"
)

// SubmissionSignal is complete once the queue reports a submission index
// as finished. IsComplete calls PollCompleted and never blocks.
type SubmissionSignal struct {
	queue hal.Queue
	index uint64
}

var _ gpucache.CompletionSignal = SubmissionSignal{}

// NewSubmissionSignal returns a signal for submission index on queue.
func NewSubmissionSignal(queue hal.Queue, index uint64) SubmissionSignal {
	return SubmissionSignal{queue: queue, index: index}
}

// IsComplete implements gpucache.CompletionSignal. The zero
// SubmissionSignal is complete.
func (s SubmissionSignal) IsComplete() bool {
	if s.queue == nil {
		return true
	}
	return s.queue.PollCompleted() >= s.index
}

// Index returns the submission index the signal waits for.
func (s SubmissionSignal) Index() uint64 {
	return s.index
}

// Submit submits command buffers on the queue and returns the signal for
// the submission index the queue assigns.
func (d *Device) Submit(buffers []hal.CommandBuffer) (SubmissionSignal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.queue == nil {
		return SubmissionSignal{}, fmt.Errorf("native: device has no queue")
	}
	index, err := d.queue.Submit(buffers)
	if err != nil {
		return SubmissionSignal{}, fmt.Errorf("native: submit: %w", err)
	}
	return NewSubmissionSignal(d.queue, index), nil
}
