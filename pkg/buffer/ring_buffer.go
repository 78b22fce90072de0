package buffer

import (
	"sync"
)

// RingBuffer is a thread-safe fixed-capacity sliding window. Push
// overwrites the oldest element once the buffer is full, so the buffer
// always holds the most recent Cap() elements.
type RingBuffer[T any] struct {
	mu         sync.Mutex
	buf        []T
	head, tail int64
}

// RingN creates a new RingBuffer holding at most size elements.
func RingN[T any](size int) *RingBuffer[T] {
	if size <= 0 {
		panic("buffer: ring size must be positive")
	}
	return &RingBuffer[T]{buf: make([]T, size)}
}

// Push appends t, evicting the oldest element when full. It reports
// whether an element was evicted.
func (rb *RingBuffer[T]) Push(t T) (evicted bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.buf[rb.tail%int64(len(rb.buf))] = t
	rb.tail++
	if rb.tail-rb.head > int64(len(rb.buf)) {
		rb.head++
		return true
	}
	return false
}

// Len returns the number of elements currently in the buffer.
func (rb *RingBuffer[T]) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return int(rb.tail - rb.head)
}

// Cap returns the capacity.
func (rb *RingBuffer[T]) Cap() int {
	return len(rb.buf)
}

// Full reports whether Len() == Cap().
func (rb *RingBuffer[T]) Full() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return int(rb.tail-rb.head) == len(rb.buf)
}

// Items returns the buffered elements, oldest first. The returned slice is
// a copy.
func (rb *RingBuffer[T]) Items() []T {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	n := int(rb.tail - rb.head)
	out := make([]T, n)
	h := int(rb.head % int64(len(rb.buf)))
	c := copy(out, rb.buf[h:min(h+n, len(rb.buf))])
	copy(out[c:], rb.buf[:n-c])
	return out
}
