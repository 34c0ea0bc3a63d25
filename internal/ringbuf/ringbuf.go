// Package ringbuf provides a fixed-capacity FIFO ring buffer that overwrites
// its oldest element once full. It backs rolling windows of per-bar values.
//
// Ring is not safe for concurrent use; it is owned by a single goroutine.
package ringbuf

// Ring is a fixed-capacity circular buffer. Pushing into a full ring evicts
// the oldest element, so Len never exceeds Cap.
type Ring[T any] struct {
	buf   []T
	head  int // index of the oldest element
	count int

	// Evicted counter (for metrics)
	evicted uint64
}

// New creates a ring buffer holding at most capacity elements.
// Minimum capacity is 1.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v as the newest element. Returns true if the oldest element
// was evicted to make room.
func (r *Ring[T]) Push(v T) bool {
	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = v
		r.count++
		return false
	}

	// Full: overwrite oldest and advance head.
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	r.evicted++
	return true
}

// At returns the i-th element, 0 being the oldest. Panics if i is out of range.
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.count {
		panic("ringbuf: index out of range")
	}
	return r.buf[(r.head+i)%len(r.buf)]
}

// Last returns the newest element. Returns false if the ring is empty.
func (r *Ring[T]) Last() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	return r.At(r.count - 1), true
}

// Values returns a copy of the buffered elements, oldest first.
func (r *Ring[T]) Values() []T {
	out := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// Len returns the current number of items in the buffer.
func (r *Ring[T]) Len() int {
	return r.count
}

// Cap returns the buffer capacity.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Full reports whether the next Push will evict.
func (r *Ring[T]) Full() bool {
	return r.count == len(r.buf)
}

// Evicted returns the total number of elements dropped by Push.
func (r *Ring[T]) Evicted() uint64 {
	return r.evicted
}

// Reset empties the ring without releasing its storage.
func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.head = 0
	r.count = 0
}
