package gpucache

import "github.com/gogpu/gpucache/internal/cache"

// CompletionSignal reports whether the GPU has finished consuming every
// submission that could reference an object as of the signal's creation.
//
// Signals are read-only, copyable values produced by the submission layer.
// The caches poll IsComplete and never wait on it. A nil signal is treated
// as complete.
type CompletionSignal interface {
	IsComplete() bool
}

var _ cache.Signal = CompletionSignal(nil)

// completed is a signal that is always finished.
type completed struct{}

func (completed) IsComplete() bool { return true }

// Completed is a CompletionSignal that always reports complete. Use it for
// objects that were never submitted to the GPU.
var Completed CompletionSignal = completed{}

// AllSignals returns a signal that is complete once every non-nil signal in
// signals is complete.
func AllSignals(signals ...CompletionSignal) CompletionSignal {
	out := make(allSignals, 0, len(signals))
	for _, s := range signals {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

type allSignals []CompletionSignal

func (a allSignals) IsComplete() bool {
	for _, s := range a {
		if !s.IsComplete() {
			return false
		}
	}
	return true
}
