// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package queue implements the bounded single-producer/single-consumer
// handoff of spec §4.B, with startup/shutdown gates so a receiver
// thread's blocked push unblocks cleanly when the contributor tears
// down.
package queue // import "github.com/robertu94/lcls2/internal/queue"

import (
	"sync"
)

// Queue is a bounded SPSC ring. Capacity should be a power of two;
// any positive capacity is accepted. It is safe for exactly one
// producer and one consumer to use concurrently; it gives no MPMC
// guarantees.
type Queue[T any] struct {
	mu   sync.Mutex
	cond *sync.Cond

	buf  []T
	head int
	tail int
	n    int

	up bool // startup/shutdown gate

	pushes, pops uint64
}

// New creates a queue with the given capacity.
func New[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	q := &Queue[T]{buf: make([]T, capacity), up: true}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Startup (re-)enables push/pop after a Shutdown.
func (q *Queue[T]) Startup() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.up = true
	q.cond.Broadcast()
}

// Shutdown disables the queue: any push currently blocked unblocks
// with a false return, and subsequent Peek/TryPop return false until
// the next Startup.
func (q *Queue[T]) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.up = false
	q.cond.Broadcast()
}

// Push blocks while the queue is full, returning false if Shutdown is
// called while waiting (or was already called).
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.up && q.n == len(q.buf) {
		q.cond.Wait()
	}
	if !q.up {
		return false
	}

	q.buf[q.tail] = v
	q.tail = (q.tail + 1) % len(q.buf)
	q.n++
	q.pushes++
	q.cond.Broadcast()
	return true
}

// TryPop pops the head element into out without blocking. It returns
// false if the queue is empty or shut down.
func (q *Queue[T]) TryPop(out *T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.up || q.n == 0 {
		return false
	}
	*out = q.buf[q.head]
	var zero T
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.n--
	q.pops++
	q.cond.Broadcast()
	return true
}

// Peek copies the head element into out without removing it. It
// returns false if the queue is empty or shut down.
func (q *Queue[T]) Peek(out *T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.up || q.n == 0 {
		return false
	}
	*out = q.buf[q.head]
	return true
}

// GuessSize returns a snapshot of the current depth. It is a
// statistic, not a synchronization primitive.
func (q *Queue[T]) GuessSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

// Stats returns the lifetime push/pop counts.
func (q *Queue[T]) Stats() (pushes, pops uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pushes, q.pops
}
