// Package evictqueue implements the eviction-nomination queue: the
// advisor pushes candidate page ids in, and the cache's drain loop pops
// them out. Producers and consumers run on arbitrary goroutines, so the
// underlying ring-buffer deque is wrapped with a mutex.
package evictqueue

import (
	"sync"

	"github.com/gammazero/deque"
)

// Queue is a thread-safe FIFO of nominated ids.
type Queue[T any] struct {
	mu sync.Mutex
	q  deque.Deque[T]
}

// New returns an empty Queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Push enqueues id for eviction consideration.
func (eq *Queue[T]) Push(id T) {
	eq.mu.Lock()
	defer eq.mu.Unlock()
	eq.q.PushBack(id)
}

// Pop removes and returns the oldest nomination, or ok=false if empty.
func (eq *Queue[T]) Pop() (id T, ok bool) {
	eq.mu.Lock()
	defer eq.mu.Unlock()
	if eq.q.Len() == 0 {
		return id, false
	}
	return eq.q.PopFront(), true
}

// Len reports the number of pending nominations.
func (eq *Queue[T]) Len() int {
	eq.mu.Lock()
	defer eq.mu.Unlock()
	return eq.q.Len()
}
