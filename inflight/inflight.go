// Package inflight implements a one-shot broadcast rendezvous used to
// collapse concurrent fetches of the same page into a single I/O: many
// callers can wait on one InflightFetch and all observe the same
// result, whether it was produced by the worker that performed the
// load or by a pre-emption that decided the page is moot.
package inflight

import (
	"sync"
	"sync/atomic"
)

// Fetch is a one-shot rendezvous cell. It starts Pending and transitions
// exactly once to Completed; every Wait call, no matter how many there
// are or when they arrive, observes the same completed value.
//
// Fetch also carries an explicit "outside referent" counter, since the
// garbage collector exposes no reference count of its own. The fetch
// worker checks Outstanding() before incurring store I/O, so that a
// fetch the cache has already pre-empted (no remaining referent besides
// the worker's own hold) can skip the load entirely. This is advisory
// only and never affects when the Fetch value itself becomes
// collectible.
type Fetch[T any] struct {
	mu    sync.Mutex
	ready sync.Cond
	done  bool
	value T

	refs int32
}

// New creates a Pending Fetch.
func New[T any]() *Fetch[T] {
	f := &Fetch[T]{}
	f.ready.L = &f.mu
	return f
}

// CompleteAndNotify transitions Pending -> Completed and wakes every
// waiter. A second call is a no-op: the pre-emption path and the
// background worker can both race to complete the same Fetch, and only
// the first arrival should count.
func (f *Fetch[T]) CompleteAndNotify(value T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done {
		return
	}
	f.value = value
	f.done = true
	f.ready.Broadcast()
}

// Wait blocks until the Fetch is Completed and returns its value. It
// tolerates spurious wakeups by re-checking the done flag in a loop.
func (f *Fetch[T]) Wait() T {
	f.mu.Lock()
	defer f.mu.Unlock()
	for !f.done {
		f.ready.Wait()
	}
	return f.value
}

// Retain registers an outside referent (the cache's map entry, or a
// worker task about to run) and returns the new count.
func (f *Fetch[T]) Retain() int32 {
	return atomic.AddInt32(&f.refs, 1)
}

// Release removes an outside referent and returns the new count.
func (f *Fetch[T]) Release() int32 {
	return atomic.AddInt32(&f.refs, -1)
}

// Outstanding returns the current referent count. A worker about to
// perform a load calls this while the task's own hold (retained when
// the task was queued) is still counted: a count of 1 means every other referent (normally the cache's map
// entry) is already gone, so the fetch has been pre-empted and the
// load can be skipped.
func (f *Fetch[T]) Outstanding() int32 {
	return atomic.LoadInt32(&f.refs)
}
