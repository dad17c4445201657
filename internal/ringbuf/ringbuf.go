// Package ringbuf provides a bounded lock-free queue for one producer and
// one consumer. The trade history uses it to hand records from the ledger to
// its background writer without blocking the tick.
package ringbuf

import "sync/atomic"

const cacheLine = 64

// counter is an atomic index alone on its cache line, so the producer and
// consumer do not false-share.
type counter struct {
	atomic.Uint64
	_ [cacheLine - 8]byte
}

// Ring is a bounded SPSC queue. Callers with several producers or
// consumers must serialize each side themselves.
type Ring[T any] struct {
	slots []T
	mask  uint64

	_        [cacheLine]byte
	head     counter // next write, owned by the producer
	tail     counter // next read, owned by the consumer
	rejected atomic.Uint64
}

// New creates a ring holding at least capacity items. The size is rounded
// up to a power of two, minimum 2.
func New[T any](capacity int) *Ring[T] {
	size := 2
	for size < capacity {
		size <<= 1
	}
	return &Ring[T]{slots: make([]T, size), mask: uint64(size - 1)}
}

// Push enqueues v. It reports false, leaving the ring unchanged, when full.
func (r *Ring[T]) Push(v T) bool {
	head := r.head.Load()
	if head-r.tail.Load() == uint64(len(r.slots)) {
		r.rejected.Add(1)
		return false
	}
	r.slots[head&r.mask] = v
	r.head.Store(head + 1)
	return true
}

// Pop dequeues the oldest item.
func (r *Ring[T]) Pop() (T, bool) {
	var zero T
	tail := r.tail.Load()
	if tail == r.head.Load() {
		return zero, false
	}
	i := tail & r.mask
	v := r.slots[i]
	r.slots[i] = zero
	r.tail.Store(tail + 1)
	return v, true
}

// Drain pops every item queued at the time of the call, oldest first, and
// passes each to fn. It returns the number of items drained.
func (r *Ring[T]) Drain(fn func(T)) int {
	var zero T
	tail := r.tail.Load()
	head := r.head.Load()
	for t := tail; t != head; t++ {
		i := t & r.mask
		v := r.slots[i]
		r.slots[i] = zero
		r.tail.Store(t + 1)
		fn(v)
	}
	return int(head - tail)
}

// Len returns the number of queued items.
func (r *Ring[T]) Len() int {
	return int(r.head.Load() - r.tail.Load())
}

// Cap returns the ring size.
func (r *Ring[T]) Cap() int {
	return len(r.slots)
}

// Overflow returns how many pushes were rejected because the ring was full.
func (r *Ring[T]) Overflow() uint64 {
	return r.rejected.Load()
}
