package core

import "sync/atomic"

// Queue is a fixed-capacity single-producer/single-consumer ring.
// Push and Pop never block; the producer and the consumer may run on
// different cores or in interrupt context.
type Queue[T any] struct {
	buf  []T
	head atomic.Uint32 // Next slot to read, owned by the consumer
	tail atomic.Uint32 // Next slot to write, owned by the producer
}

// NewQueue creates a queue holding up to capacity entries
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue[T]{buf: make([]T, capacity)}
}

// Push appends v. Returns false if the queue is full.
func (q *Queue[T]) Push(v T) bool {
	tail := q.tail.Load()
	if tail-q.head.Load() >= uint32(len(q.buf)) {
		return false
	}
	q.buf[tail%uint32(len(q.buf))] = v
	q.tail.Store(tail + 1)
	return true
}

// Pop removes the oldest entry. Returns false if the queue is empty.
func (q *Queue[T]) Pop() (T, bool) {
	var zero T
	head := q.head.Load()
	if head == q.tail.Load() {
		return zero, false
	}
	v := q.buf[head%uint32(len(q.buf))]
	q.buf[head%uint32(len(q.buf))] = zero
	q.head.Store(head + 1)
	return v, true
}

// Peek returns the oldest entry without removing it
func (q *Queue[T]) Peek() (T, bool) {
	var zero T
	head := q.head.Load()
	if head == q.tail.Load() {
		return zero, false
	}
	return q.buf[head%uint32(len(q.buf))], true
}

// Len returns the number of queued entries
func (q *Queue[T]) Len() int {
	return int(q.tail.Load() - q.head.Load())
}

func (q *Queue[T]) Cap() int {
	return len(q.buf)
}

func (q *Queue[T]) IsEmpty() bool {
	return q.Len() == 0
}

func (q *Queue[T]) IsFull() bool {
	return q.Len() >= len(q.buf)
}
