// Package queue provides a goroutine-safe blocking FIFO used to hand values
// from producers to consumers.
package queue

import (
	"context"
	"sync"
)

// HandoffQueue is an unbounded FIFO with a non-blocking Put and a blocking
// Take. Each value is delivered to exactly one taker, in insertion order.
//
// A HandoffQueue consumes what it delivers: several consumers draining the
// same queue split its values between them, none of them sees all of them.
type HandoffQueue[T any] struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items []T
}

// New creates an empty queue
func New[T any]() *HandoffQueue[T] {
	q := &HandoffQueue[T]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Put appends v at the tail and wakes at most one blocked taker.
// It never blocks.
func (q *HandoffQueue[T]) Put(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.cond.Signal()
	q.mu.Unlock()
}

// Take blocks until the queue is non-empty, then removes and returns the head.
func (q *HandoffQueue[T]) Take() T {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 {
		q.cond.Wait()
	}
	return q.pop()
}

// TakeContext is Take with cancellation. It returns ctx.Err() if the context
// is done while the queue is empty.
func (q *HandoffQueue[T]) TakeContext(ctx context.Context) (T, error) {
	var zero T
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	// a queued value wins over a cancelled context, so a wake-up from Put is
	// never swallowed by a taker that is about to give up
	for len(q.items) == 0 {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		q.cond.Wait()
	}
	return q.pop(), nil
}

// TryTake removes and returns the head without blocking.
func (q *HandoffQueue[T]) TryTake() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	return q.pop(), true
}

// Len returns the number of queued values
func (q *HandoffQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// pop removes the head; caller holds q.mu and guarantees len(q.items) > 0.
func (q *HandoffQueue[T]) pop() T {
	var zero T
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return v
}
